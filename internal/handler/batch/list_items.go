package batch

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// ListItems 查询批次全部条目
// @Summary      查询批次条目
// @Description  返回批次内每个条目的阶段、尝试次数与产物信息。
// @Tags         批次管理
// @Produce      json
// @Param        id   path      string  true  "批次ID"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      404  {object}  ErrorResponse  "批次不存在"
// @Router       /api/v1/batches/{id}/items [get]
func (h *Handler) ListItems(c *gin.Context) {
	batchID := c.Param("id")

	_, items, err := h.pipeline.BatchReport(c.Request.Context(), batchID)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data": gin.H{
			"items": toItemInfoList(items),
			"total": len(items),
		},
	})
}
