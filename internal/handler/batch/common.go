package batch

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.mongodb.org/mongo-driver/mongo"

	"lime/internal/model/pipeline"
	httputil "lime/internal/pkg/http"
)

// ErrorResponse 错误响应类型别名（使用共用的 http.ErrorResponse）
type ErrorResponse = httputil.ErrorResponse

// ItemInfo 条目信息（用于响应）
type ItemInfo struct {
	ID            string         `json:"id"`                       // 条目ID
	Topic         string         `json:"topic"`                    // 话题
	Stage         string         `json:"stage"`                    // 当前阶段
	Attempts      map[string]int `json:"attempts,omitempty"`       // 各阶段尝试次数
	Title         string         `json:"title,omitempty"`          // 文案标题
	MediaDuration float64        `json:"media_duration,omitempty"` // 成片时长（秒）
	ArchiveURL    string         `json:"archive_url,omitempty"`    // 归档地址
	PublishedURL  string         `json:"published_url,omitempty"`  // 发布地址
	FailureKind   string         `json:"failure_kind,omitempty"`   // 失败分类
	FailureReason string         `json:"failure_reason,omitempty"` // 失败原因
	CreatedAt     string         `json:"created_at"`               // 创建时间
	CompletedAt   string         `json:"completed_at,omitempty"`   // 终态时间
}

// toItemInfo 将ContentItem实体转换为ItemInfo
func toItemInfo(item *pipeline.ContentItem) ItemInfo {
	info := ItemInfo{
		ID:            item.ID,
		Topic:         item.Topic,
		Stage:         string(item.Stage),
		Attempts:      item.Attempts,
		MediaDuration: item.MediaDuration,
		ArchiveURL:    item.ArchiveURL,
		PublishedURL:  item.PublishedURL,
		FailureKind:   item.FailureKind,
		FailureReason: item.FailureReason,
		CreatedAt:     item.CreatedAt.Format(time.RFC3339),
	}
	if item.Script != nil {
		info.Title = item.Script.Title
	}
	if item.CompletedAt != nil {
		info.CompletedAt = item.CompletedAt.Format(time.RFC3339)
	}
	return info
}

// toItemInfoList 将ContentItem列表转换为ItemInfo列表
func toItemInfoList(items []*pipeline.ContentItem) []ItemInfo {
	infos := make([]ItemInfo, 0, len(items))
	for _, item := range items {
		infos = append(infos, toItemInfo(item))
	}
	return infos
}

// writeError 将Service层错误映射为HTTP响应
func writeError(c *gin.Context, err error) {
	var ibe *pipeline.InvalidBatchError
	if errors.As(err, &ibe) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    40001,
			Message: "Invalid batch",
			Detail:  ibe.Reason,
		})
		return
	}

	if errors.Is(err, mongo.ErrNoDocuments) || strings.Contains(err.Error(), "不存在") {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    40401,
			Message: "Batch not found",
		})
		return
	}

	c.JSON(http.StatusInternalServerError, ErrorResponse{
		Code:    50001,
		Message: err.Error(),
	})
}
