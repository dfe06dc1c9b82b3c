package batch

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CreateBatchRequest 提交批次请求
type CreateBatchRequest struct {
	Topics []string `json:"topics" binding:"required"` // 话题列表（必填）
}

// CreateBatchResponseData 提交批次响应数据
type CreateBatchResponseData struct {
	BatchID string `json:"batch_id"` // 批次ID
	Total   int    `json:"total"`    // 条目总数
}

// CreateBatch 提交一批话题开始生产
// @Summary      提交生产批次
// @Description  提交一批话题，立即返回批次ID，视频生产在后台进行。
// @Tags         批次管理
// @Accept       json
// @Produce      json
// @Param        request  body      CreateBatchRequest  true  "提交批次请求"
// @Success      202      {object}  map[string]interface{}  "成功响应"
// @Failure      400      {object}  ErrorResponse  "请求参数错误"
// @Failure      500      {object}  ErrorResponse  "服务器内部错误"
// @Router       /api/v1/batches [post]
func (h *Handler) CreateBatch(c *gin.Context) {
	var req CreateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid request body",
			Detail:  err.Error(),
		})
		return
	}

	ctx := c.Request.Context()

	batchID, err := h.pipeline.SubmitBatch(ctx, req.Topics)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"code":    0,
		"message": "批次已提交",
		"data": CreateBatchResponseData{
			BatchID: batchID,
			Total:   len(req.Topics),
		},
	})
}
