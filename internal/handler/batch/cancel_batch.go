package batch

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CancelBatch 取消批次
// @Summary      取消批次
// @Description  取消在途批次，未到终态的条目标记为失败。重复取消是幂等的。
// @Tags         批次管理
// @Produce      json
// @Param        id   path      string  true  "批次ID"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      404  {object}  ErrorResponse  "批次不存在"
// @Router       /api/v1/batches/{id}/cancel [post]
func (h *Handler) CancelBatch(c *gin.Context) {
	batchID := c.Param("id")

	if err := h.pipeline.CancelBatch(c.Request.Context(), batchID); err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "批次已取消",
	})
}
