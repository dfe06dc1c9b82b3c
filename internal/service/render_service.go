package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"lime/internal/config"
	"lime/internal/model/pipeline"
	"lime/internal/pkg/ark"
	"lime/internal/pkg/assets"
	"lime/internal/pkg/ffmpeg"
)

// RenderInput 渲染输入
type RenderInput struct {
	ItemID string
	Script *pipeline.Script
}

// MediaArtifact 渲染产物
type MediaArtifact struct {
	Path     string  // 本地成片路径
	Duration float64 // 成片时长（秒）
}

// RenderService 视频渲染服务接口
// 文案 + 素材 -> 本地成片 或 类型化的 RenderError
// 渲染槽位的获取与释放由编排器负责，服务本身只做合成
type RenderService interface {
	Render(ctx context.Context, input *RenderInput) (*MediaArtifact, error)
	Cleanup(itemID string)
}

type renderService struct {
	ffmpeg      *ffmpeg.Client
	assets      *assets.Store
	imageClient *ark.ImageClient // 可为 nil，AI 背景图生成
	ttsClient   *ark.TTSClient   // 可为 nil，旁白配音
	videoCfg    *config.VideoConfig
	workDir     string
}

// NewRenderService 创建视频渲染服务
// imageClient/ttsClient 为可选依赖，传 nil 则跳过对应环节
func NewRenderService(
	store *assets.Store,
	imageClient *ark.ImageClient,
	ttsClient *ark.TTSClient,
	videoCfg *config.VideoConfig,
	workDir string,
) (RenderService, error) {
	if workDir == "" {
		workDir = filepath.Join(os.TempDir(), "lime")
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return nil, fmt.Errorf("创建工作目录失败: %w", err)
	}

	return &renderService{
		ffmpeg:      ffmpeg.NewClient(),
		assets:      store,
		imageClient: imageClient,
		ttsClient:   ttsClient,
		videoCfg:    videoCfg,
		workDir:     workDir,
	}, nil
}

// Render 渲染一条短视频
// 素材缺失返回 RenderAssetMissing（不可重试），其余失败按 stderr 分类
func (s *renderService) Render(ctx context.Context, input *RenderInput) (*MediaArtifact, error) {
	if input.Script == nil || input.Script.Empty() {
		return nil, &pipeline.RenderError{
			Kind:    pipeline.RenderAssetMissing,
			Message: "文案为空，无法渲染",
		}
	}

	itemDir := filepath.Join(s.workDir, input.ItemID)
	if err := os.MkdirAll(itemDir, 0o755); err != nil {
		return nil, &pipeline.RenderError{
			Kind:    pipeline.RenderEncodeFailure,
			Message: fmt.Sprintf("创建条目工作目录失败: %v", err),
		}
	}

	background, err := s.resolveBackground(ctx, input, itemDir)
	if err != nil {
		return nil, err
	}

	// 静态素材校验：引用了但不存在 -> 不可重试
	if err := s.assets.Verify(background, s.assets.Music(), s.assets.Font()); err != nil {
		return nil, &pipeline.RenderError{
			Kind:    pipeline.RenderAssetMissing,
			Message: err.Error(),
		}
	}

	duration := s.videoCfg.Duration
	narration, narrDur, err := s.synthesizeNarration(ctx, input, itemDir)
	if err != nil {
		return nil, err
	}
	// 旁白比默认时长更长时，视频跟随旁白
	if narrDur+1 > duration {
		duration = narrDur + 1
	}

	outputPath := filepath.Join(itemDir, "short.mp4")
	composeErr := s.ffmpeg.ComposeShort(ctx, &ffmpeg.ComposeRequest{
		BackgroundPath: background,
		Title:          input.Script.Title,
		Captions:       toCaptions(input.Script.CaptionCues),
		NarrationPath:  narration,
		MusicPath:      s.assets.Music(),
		FontPath:       s.assets.Font(),
		OutputPath:     outputPath,
		Width:          s.videoCfg.Width,
		Height:         s.videoCfg.Height,
		FPS:            s.videoCfg.FPS,
		Duration:       duration,
		Bitrate:        s.videoCfg.Bitrate,
	})
	if composeErr != nil {
		return nil, classifyComposeError(ctx, composeErr)
	}

	info, err := s.ffmpeg.Probe(ctx, outputPath)
	if err != nil {
		log.Warn().Err(err).Str("item_id", input.ItemID).Msg("成片探测失败，使用目标时长")
		return &MediaArtifact{Path: outputPath, Duration: duration}, nil
	}

	return &MediaArtifact{Path: outputPath, Duration: info.Duration}, nil
}

// Cleanup 清理条目的渲染中间产物
// 上传完成或条目终结后由编排器调用
func (s *renderService) Cleanup(itemID string) {
	if itemID == "" {
		return
	}
	if err := os.RemoveAll(filepath.Join(s.workDir, itemID)); err != nil {
		log.Warn().Err(err).Str("item_id", itemID).Msg("清理渲染工作目录失败")
	}
}

// resolveBackground 解析背景图
// 优先静态背景；未配置且开启生成时调用文生图，生成失败降级为纯色背景
func (s *renderService) resolveBackground(ctx context.Context, input *RenderInput, itemDir string) (string, error) {
	if bg := s.assets.Background(); bg != "" {
		return bg, nil
	}
	if s.imageClient == nil {
		return "", nil
	}

	bgPath := filepath.Join(itemDir, "background.png")
	prompt := fmt.Sprintf("Vertical background illustration for a short video titled %q, cinematic, no text", input.Script.Title)
	size := fmt.Sprintf("%dx%d", s.videoCfg.Width, s.videoCfg.Height)
	if err := s.imageClient.GenerateBackground(ctx, prompt, size, bgPath); err != nil {
		if ctx.Err() != nil {
			return "", &pipeline.RenderError{
				Kind:    pipeline.RenderEncodeFailure,
				Message: fmt.Sprintf("背景图生成超时: %v", err),
			}
		}
		log.Warn().Err(err).Str("item_id", input.ItemID).Msg("背景图生成失败，降级为纯色背景")
		return "", nil
	}
	return bgPath, nil
}

// synthesizeNarration 合成旁白配音，返回音频路径与时长
func (s *renderService) synthesizeNarration(ctx context.Context, input *RenderInput, itemDir string) (string, float64, error) {
	if s.ttsClient == nil {
		return "", 0, nil
	}

	audioPath := filepath.Join(itemDir, "narration.mp3")
	text := strings.Join(input.Script.NarrationLines, "。")
	if err := s.ttsClient.Synthesize(ctx, text, audioPath, 1.0); err != nil {
		return "", 0, &pipeline.RenderError{
			Kind:    pipeline.RenderEncodeFailure,
			Message: fmt.Sprintf("旁白配音合成失败: %v", err),
		}
	}

	info, err := s.ffmpeg.Probe(ctx, audioPath)
	if err != nil {
		log.Warn().Err(err).Str("item_id", input.ItemID).Msg("旁白音频探测失败")
		return audioPath, 0, nil
	}
	return audioPath, info.Duration, nil
}

func toCaptions(cues []pipeline.CaptionCue) []ffmpeg.Caption {
	captions := make([]ffmpeg.Caption, 0, len(cues))
	for _, cue := range cues {
		captions = append(captions, ffmpeg.Caption{
			Text:      cue.Text,
			StartTime: cue.StartTime,
			EndTime:   cue.EndTime,
		})
	}
	return captions
}

// classifyComposeError 根据 FFmpeg 输出对合成失败分类
func classifyComposeError(ctx context.Context, err error) error {
	msg := err.Error()
	lower := strings.ToLower(msg)

	switch {
	case strings.Contains(lower, "cannot allocate memory"),
		strings.Contains(lower, "out of memory"),
		strings.Contains(lower, "cuda error"):
		return &pipeline.RenderError{Kind: pipeline.RenderOutOfMemory, Message: msg}
	case strings.Contains(lower, "no such file or directory"):
		return &pipeline.RenderError{Kind: pipeline.RenderAssetMissing, Message: msg}
	default:
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			msg = "渲染超时: " + msg
		}
		return &pipeline.RenderError{Kind: pipeline.RenderEncodeFailure, Message: msg}
	}
}
