package batch

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// BatchResponseData 批次进度响应数据
type BatchResponseData struct {
	BatchID     string `json:"batch_id"`               // 批次ID
	Status      string `json:"status"`                 // running/completed/cancelled
	Total       int    `json:"total"`                  // 条目总数
	Queued      int    `json:"queued"`                 // 等待中
	InFlight    int    `json:"in_flight"`              // 生产中
	Done        int    `json:"done"`                   // 成功
	Failed      int    `json:"failed"`                 // 失败
	CreatedAt   string `json:"created_at"`             // 创建时间
	CompletedAt string `json:"completed_at,omitempty"` // 结束时间
}

// GetBatch 查询批次进度
// @Summary      查询批次进度
// @Description  返回批次各阶段条目的聚合计数。
// @Tags         批次管理
// @Produce      json
// @Param        id   path      string  true  "批次ID"
// @Success      200  {object}  map[string]interface{}  "成功响应"
// @Failure      404  {object}  ErrorResponse  "批次不存在"
// @Router       /api/v1/batches/{id} [get]
func (h *Handler) GetBatch(c *gin.Context) {
	batchID := c.Param("id")
	ctx := c.Request.Context()

	batch, _, err := h.pipeline.BatchReport(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}

	progress, err := h.pipeline.PollProgress(ctx, batchID)
	if err != nil {
		writeError(c, err)
		return
	}

	data := BatchResponseData{
		BatchID:   batch.ID,
		Status:    string(batch.Status),
		Total:     batch.Total,
		Queued:    progress.Queued,
		InFlight:  progress.InFlight,
		Done:      progress.Done,
		Failed:    progress.Failed,
		CreatedAt: batch.CreatedAt.Format(time.RFC3339),
	}
	if batch.CompletedAt != nil {
		data.CompletedAt = batch.CompletedAt.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}
