package assets

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"lime/internal/config"
)

// Store 素材库
// 只读注册表：背景图、背景音乐、字幕字体
// 初始化后不再修改，可被多个渲染协程无锁共享
type Store struct {
	backgroundPath string
	musicPath      string
	fontPath       string
}

// 默认字体候选路径，按顺序探测
var defaultFontPaths = []string{
	"assets/arial.ttf",
	"/usr/share/fonts/truetype/dejavu/DejaVuSansMono.ttf",
	"/System/Library/Fonts/Menlo.ttc",
	"C:\\Windows\\Fonts\\consola.ttf",
}

// NewStore 创建素材库
// 背景图/音乐缺失时降级（纯色背景/无声视频），字体缺失时使用 FFmpeg 内置字体
func NewStore(cfg *config.AssetsConfig) (*Store, error) {
	s := &Store{}

	if cfg.BackgroundPath != "" {
		if _, err := os.Stat(cfg.BackgroundPath); err != nil {
			log.Warn().Str("path", cfg.BackgroundPath).Msg("background image not found, falling back to plain background")
		} else {
			s.backgroundPath = cfg.BackgroundPath
		}
	}

	if cfg.MusicPath != "" {
		if _, err := os.Stat(cfg.MusicPath); err != nil {
			log.Warn().Str("path", cfg.MusicPath).Msg("music file not found, videos will have no music bed")
		} else {
			s.musicPath = cfg.MusicPath
		}
	}

	candidates := cfg.FontPaths
	if len(candidates) == 0 {
		candidates = defaultFontPaths
	}
	s.fontPath = probeFont(candidates)

	return s, nil
}

// probeFont 按顺序探测候选字体，返回第一个存在的路径
func probeFont(candidates []string) string {
	for _, path := range candidates {
		if info, err := os.Stat(path); err == nil && !info.IsDir() {
			log.Debug().Str("font", path).Msg("using font")
			return path
		}
	}
	log.Warn().Msg("no usable font found in candidate paths, captions will use default font")
	return ""
}

// Background 背景图路径（可能为空）
func (s *Store) Background() string { return s.backgroundPath }

// Music 背景音乐路径（可能为空）
func (s *Store) Music() string { return s.musicPath }

// Font 字幕字体路径（可能为空）
func (s *Store) Font() string { return s.fontPath }

// Verify 校验条目引用的素材是否存在
// 渲染前调用，缺失的显式引用按 AssetMissing 处理
func (s *Store) Verify(refs ...string) error {
	for _, ref := range refs {
		if ref == "" {
			continue
		}
		if _, err := os.Stat(ref); err != nil {
			return fmt.Errorf("asset %s: %w", ref, err)
		}
	}
	return nil
}
