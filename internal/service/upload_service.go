package service

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
	"google.golang.org/api/googleapi"

	"lime/internal/config"
	"lime/internal/model/pipeline"
	"lime/internal/pkg/cache"
	"lime/internal/pkg/storage"
	"lime/internal/pkg/youtube"
)

// UploadRequest 上传请求
// PriorRemoteID 来自条目落库状态：已发布过的条目直接走回执路径
type UploadRequest struct {
	ItemID        string
	MediaPath     string
	Title         string
	Description   string
	Tags          []string
	PriorRemoteID string
	PriorURL      string
}

// UploadOutcome 上传结果
type UploadOutcome struct {
	ArchiveURL   string // 归档存储地址
	RemoteID     string // 平台视频 ID
	PublishedURL string // 公开访问 URL
}

// Publisher 视频发布接口，便于测试替换
type Publisher interface {
	Publish(ctx context.Context, videoPath, title, description string, tags []string) (*youtube.PublishResult, error)
}

// ReceiptStore 发布回执存储接口，RedisCache 实现
type ReceiptStore interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) error
	Get(ctx context.Context, key string, dest any) error
}

// UploadService 上传分发服务接口
// 成片 -> 归档 + 发布回执 或 类型化的 UploadError
// 同一条目重复提交时返回已有回执，不会产生第二次发布
type UploadService interface {
	Upload(ctx context.Context, req *UploadRequest) (*UploadOutcome, error)
}

type uploadService struct {
	publisher Publisher
	archive   storage.Storage
	receipts  ReceiptStore // 可为 nil，幂等退回条目状态判断
	limiter   *rate.Limiter
	cfg       *config.UploadConfig
}

// NewUploadService 创建上传分发服务
// publisher 为 nil 且非 DryRun 时报错；receipts 为 nil 时幂等仅依赖条目状态
func NewUploadService(
	publisher Publisher,
	archive storage.Storage,
	receipts ReceiptStore,
	cfg *config.UploadConfig,
) (UploadService, error) {
	if publisher == nil && !cfg.DryRun {
		return nil, fmt.Errorf("未配置发布客户端且未开启 dry_run")
	}

	perMinute := cfg.QuotaPerMinute
	if perMinute <= 0 {
		perMinute = 6
	}
	burst := cfg.QuotaBurst
	if burst <= 0 {
		burst = 1
	}

	return &uploadService{
		publisher: publisher,
		archive:   archive,
		receipts:  receipts,
		limiter:   rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMinute)), burst),
		cfg:       cfg,
	}, nil
}

// Upload 归档并发布一条成片
// 配额限流通过等待实现：超出配额的请求排队而不是失败
// 幂等由双重回执保证：Redis 缓存回执 + 条目落库的 RemoteID
func (s *uploadService) Upload(ctx context.Context, req *UploadRequest) (*UploadOutcome, error) {
	if prev := s.loadReceipt(ctx, req.ItemID); prev != nil {
		log.Info().Str("item_id", req.ItemID).Str("remote_id", prev.RemoteID).
			Msg("条目已有发布回执，跳过重复上传")
		return prev, nil
	}
	if req.PriorRemoteID != "" {
		log.Info().Str("item_id", req.ItemID).Str("remote_id", req.PriorRemoteID).
			Msg("条目已记录发布结果，跳过重复上传")
		return &UploadOutcome{RemoteID: req.PriorRemoteID, PublishedURL: req.PriorURL}, nil
	}

	archiveURL, err := s.archiveMedia(ctx, req)
	if err != nil {
		return nil, err
	}

	if s.cfg.DryRun {
		outcome := &UploadOutcome{
			ArchiveURL:   archiveURL,
			RemoteID:     "dry-" + req.ItemID,
			PublishedURL: archiveURL,
		}
		s.storeReceipt(ctx, req.ItemID, outcome)
		return outcome, nil
	}

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, &pipeline.UploadError{
			Kind:    pipeline.UploadTransient,
			Message: fmt.Sprintf("等待上传配额被中断: %v", err),
		}
	}

	result, err := s.publisher.Publish(ctx, req.MediaPath, req.Title, req.Description, req.Tags)
	if err != nil {
		return nil, classifyUploadError(err)
	}

	outcome := &UploadOutcome{
		ArchiveURL:   archiveURL,
		RemoteID:     result.RemoteID,
		PublishedURL: result.PublishedURL,
	}
	s.storeReceipt(ctx, req.ItemID, outcome)
	return outcome, nil
}

// 重试路径上复用已归档成片时，下载链接的有效期
const archiveLinkTTL = 24 * time.Hour

// archiveMedia 将成片归档到对象存储
// 未配置存储时跳过归档，只发布；上次尝试已归档的成片不再重复上传
func (s *uploadService) archiveMedia(ctx context.Context, req *UploadRequest) (string, error) {
	if s.archive == nil {
		return "", nil
	}

	key := path.Join("shorts", req.ItemID+".mp4")
	if exists, err := s.archive.Exists(ctx, key); err == nil && exists {
		url, err := s.archive.GetPresignedDownloadURL(ctx, key, archiveLinkTTL)
		if err == nil {
			log.Debug().Str("item_id", req.ItemID).Msg("成片已归档，复用归档地址")
			return url, nil
		}
	}

	f, err := os.Open(req.MediaPath)
	if err != nil {
		return "", &pipeline.UploadError{
			Kind:    pipeline.UploadContentRejected,
			Message: fmt.Sprintf("成片文件不可读: %v", err),
		}
	}
	defer f.Close()

	url, err := s.archive.Upload(ctx, key, f, "video/mp4")
	if err != nil {
		return "", &pipeline.UploadError{
			Kind:    pipeline.UploadTransient,
			Message: fmt.Sprintf("成片归档失败: %v", err),
		}
	}
	return url, nil
}

func (s *uploadService) loadReceipt(ctx context.Context, itemID string) *UploadOutcome {
	if s.receipts == nil {
		return nil
	}
	var outcome UploadOutcome
	if err := s.receipts.Get(ctx, cache.UploadReceiptKey(itemID), &outcome); err != nil {
		return nil
	}
	if outcome.RemoteID == "" {
		return nil
	}
	return &outcome
}

func (s *uploadService) storeReceipt(ctx context.Context, itemID string, outcome *UploadOutcome) {
	if s.receipts == nil {
		return
	}
	ttl := s.cfg.ReceiptTTL
	if ttl <= 0 {
		ttl = cache.UploadReceiptTTL
	}
	if err := s.receipts.Set(ctx, cache.UploadReceiptKey(itemID), outcome, ttl); err != nil {
		log.Warn().Err(err).Str("item_id", itemID).Msg("写入发布回执缓存失败")
	}
}

// classifyUploadError 对平台返回的错误分类
// 配额与瞬时错误可重试，凭证与内容问题直接终结
func classifyUploadError(err error) error {
	var ue *pipeline.UploadError
	if errors.As(err, &ue) {
		return ue
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		for _, item := range apiErr.Errors {
			switch item.Reason {
			case "quotaExceeded", "rateLimitExceeded", "userRateLimitExceeded", "uploadLimitExceeded":
				return &pipeline.UploadError{
					Kind:       pipeline.UploadQuotaExceeded,
					Message:    apiErr.Message,
					RetryAfter: time.Minute,
				}
			}
		}
		switch {
		case apiErr.Code == 401 || apiErr.Code == 403:
			return &pipeline.UploadError{Kind: pipeline.UploadAuthInvalid, Message: apiErr.Message}
		case apiErr.Code == 400 || apiErr.Code == 422:
			return &pipeline.UploadError{Kind: pipeline.UploadContentRejected, Message: apiErr.Message}
		case apiErr.Code >= 500:
			return &pipeline.UploadError{Kind: pipeline.UploadTransient, Message: apiErr.Message}
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) || strings.Contains(err.Error(), "connection reset") {
		return &pipeline.UploadError{Kind: pipeline.UploadTransient, Message: err.Error()}
	}

	return &pipeline.UploadError{Kind: pipeline.UploadTransient, Message: err.Error()}
}
