package pipeline

import (
	"errors"
	"fmt"
	"time"
)

// 错误分类：编排器只关心"可重试/不可重试"两类，
// 各阶段适配器负责把外部失败映射为下面的类型化错误。

// GenerationErrorKind 文案生成错误分类
type GenerationErrorKind string

const (
	GenerationUnavailable GenerationErrorKind = "unavailable" // 模型服务不可用/调用失败
	GenerationMalformed   GenerationErrorKind = "malformed"   // 模型返回内容无法解析或字段缺失
	GenerationTimeout     GenerationErrorKind = "timeout"     // 单次调用超时
)

// GenerationError 文案生成失败（整体视为可重试，由编排器统一计数）
type GenerationError struct {
	Kind    GenerationErrorKind
	Message string
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("generation %s: %s", e.Kind, e.Message)
}

// RenderErrorKind 渲染错误分类
type RenderErrorKind string

const (
	RenderOutOfMemory   RenderErrorKind = "out_of_memory" // 显存/内存不足
	RenderAssetMissing  RenderErrorKind = "asset_missing" // 引用的素材不存在
	RenderEncodeFailure RenderErrorKind = "encode_failure" // 编码失败
)

// RenderError 渲染失败
type RenderError struct {
	Kind    RenderErrorKind
	Message string
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s", e.Kind, e.Message)
}

// Retryable 素材缺失不重试（重试不会让素材出现），其余可重试
func (e *RenderError) Retryable() bool {
	return e.Kind != RenderAssetMissing
}

// UploadErrorKind 上传错误分类
type UploadErrorKind string

const (
	UploadQuotaExceeded   UploadErrorKind = "quota_exceeded"   // 配额超限（可重试）
	UploadAuthInvalid     UploadErrorKind = "auth_invalid"     // 凭证无效（不可重试）
	UploadContentRejected UploadErrorKind = "content_rejected" // 内容被拒（不可重试）
	UploadTransient       UploadErrorKind = "transient"        // 瞬时网络错误（可重试）
)

// UploadError 上传失败
type UploadError struct {
	Kind       UploadErrorKind
	Message    string
	RetryAfter time.Duration // 发布端建议的重试间隔（可为 0）
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("upload %s: %s", e.Kind, e.Message)
}

// Retryable 只有配额超限和瞬时错误触发重试路径
func (e *UploadError) Retryable() bool {
	return e.Kind == UploadQuotaExceeded || e.Kind == UploadTransient
}

// ResourceTimeoutError 等待资源槽位超时
type ResourceTimeoutError struct {
	Message string
}

func (e *ResourceTimeoutError) Error() string {
	return fmt.Sprintf("resource timeout: %s", e.Message)
}

// InvalidBatchError 批次提交参数非法（同步返回给调用方）
type InvalidBatchError struct {
	Reason string
}

func (e *InvalidBatchError) Error() string {
	return fmt.Sprintf("invalid batch: %s", e.Reason)
}

// ErrDuplicateUpload 同一条目重复发布（幂等保护触发）
var ErrDuplicateUpload = errors.New("duplicate upload for item")

// Retryable 判断阶段错误是否应进入重试路径
// 超时（context.DeadlineExceeded 包装后）与未分类错误按可重试处理，
// 不可重试的只有 RenderAssetMissing 和 Fatal 类上传错误
func Retryable(err error) bool {
	var re *RenderError
	if errors.As(err, &re) {
		return re.Retryable()
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		return ue.Retryable()
	}
	return true
}

// FailureKind 提取错误分类标识，用于落库记录
func FailureKind(err error) string {
	var ge *GenerationError
	if errors.As(err, &ge) {
		return "generation_" + string(ge.Kind)
	}
	var re *RenderError
	if errors.As(err, &re) {
		return "render_" + string(re.Kind)
	}
	var ue *UploadError
	if errors.As(err, &ue) {
		return "upload_" + string(ue.Kind)
	}
	var rt *ResourceTimeoutError
	if errors.As(err, &rt) {
		return "resource_timeout"
	}
	return "unknown"
}
