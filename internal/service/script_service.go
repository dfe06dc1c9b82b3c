package service

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"lime/internal/ai"
	"lime/internal/config"
	"lime/internal/model/pipeline"
	"lime/internal/pkg/shorttools"
)

// ScriptService 文案生成服务接口
// 包装文案生成模型：话题 -> 结构化文案 或 类型化的 GenerationError
// 适配器内部不做重试，重试策略统一由编排器管理
type ScriptService interface {
	Generate(ctx context.Context, topic string) (*pipeline.Script, error)
}

type scriptService struct {
	chain    *ai.ScriptChain
	timeline *shorttools.CaptionTimeline
	duration float64
}

// NewScriptService 创建文案生成服务
func NewScriptService(ctx context.Context, aiCfg *config.AIConfig, videoCfg *config.VideoConfig) (ScriptService, error) {
	chain, err := ai.NewScriptChain(ctx, aiCfg)
	if err != nil {
		return nil, err
	}

	return &scriptService{
		chain:    chain,
		timeline: shorttools.NewCaptionTimeline(shorttools.NewCaptionSplitter(0)),
		duration: videoCfg.Duration,
	}, nil
}

// Generate 为话题生成结构化文案
// 模型输出经过提取与校验，并补全字幕时间轴
func (s *scriptService) Generate(ctx context.Context, topic string) (*pipeline.Script, error) {
	resp, err := s.chain.Run(ctx, &ai.ScriptRequest{
		Topic:    topic,
		Duration: s.duration,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, &pipeline.GenerationError{
				Kind:    pipeline.GenerationTimeout,
				Message: err.Error(),
			}
		}
		return nil, &pipeline.GenerationError{
			Kind:    pipeline.GenerationUnavailable,
			Message: err.Error(),
		}
	}

	log.Debug().Str("topic", topic).
		Int("prompt_tokens", resp.PromptTokens).Int("output_tokens", resp.OutputTokens).
		Msg("文案生成完成")

	script, err := shorttools.ExtractScript(resp.Content)
	if err != nil {
		return nil, err
	}

	script.CaptionCues = s.timeline.Build(script.NarrationLines, s.duration)
	return script, nil
}
