package batch

import (
	"lime/internal/pkg/storage"
	"lime/internal/service"
)

// Handler 批次处理器
// 所有批次相关的Handler方法都通过这个结构体访问编排器
type Handler struct {
	pipeline service.PipelineService
	archive  storage.Storage // 可为 nil，成片下载接口返回未启用
}

// NewHandler 创建批次处理器
func NewHandler(pipeline service.PipelineService, archive storage.Storage) *Handler {
	return &Handler{
		pipeline: pipeline,
		archive:  archive,
	}
}
