package ffmpeg

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// Client FFmpeg 客户端
// 封装短视频合成所需的 FFmpeg/FFprobe 命令调用
type Client struct {
	ffmpegPath  string // FFmpeg 可执行文件路径（默认: ffmpeg）
	ffprobePath string // FFprobe 可执行文件路径（默认: ffprobe）
}

// NewClient 创建 FFmpeg 客户端
func NewClient() *Client {
	ffmpegPath := os.Getenv("FFMPEG_PATH")
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	ffprobePath := os.Getenv("FFPROBE_PATH")
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}

	return &Client{
		ffmpegPath:  ffmpegPath,
		ffprobePath: ffprobePath,
	}
}

// MediaInfo 媒体信息
type MediaInfo struct {
	Width    int     // 宽度（音频为 0）
	Height   int     // 高度（音频为 0）
	Duration float64 // 时长（秒）
}

// probeOutput ffprobe -of json 输出结构
type probeOutput struct {
	Streams []struct {
		Width  int `json:"width"`
		Height int `json:"height"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// Probe 获取媒体文件信息
func (c *Client) Probe(ctx context.Context, path string) (*MediaInfo, error) {
	cmd := exec.CommandContext(ctx, c.ffprobePath,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=width,height",
		"-show_entries", "format=duration",
		"-of", "json",
		path,
	)

	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed: %w", err)
	}

	var parsed probeOutput
	if err := json.Unmarshal(output, &parsed); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	info := &MediaInfo{}
	if len(parsed.Streams) > 0 {
		info.Width = parsed.Streams[0].Width
		info.Height = parsed.Streams[0].Height
	}
	if parsed.Format.Duration != "" {
		if d, err := strconv.ParseFloat(parsed.Format.Duration, 64); err == nil {
			info.Duration = d
		}
	}
	return info, nil
}

// Caption 叠加到画面上的一条字幕
type Caption struct {
	Text      string
	StartTime float64 // 秒
	EndTime   float64 // 秒
}

// ComposeRequest 短视频合成请求
// 背景图循环铺满画面，字幕按时间窗叠加，旁白配音与音乐混音
type ComposeRequest struct {
	BackgroundPath string  // 背景图（为空时使用纯色背景）
	Title          string  // 顶部标题
	Captions       []Caption
	NarrationPath  string  // 旁白配音音频（可为空）
	MusicPath      string  // 背景音乐（可为空，自动循环到视频时长）
	FontPath       string  // 字体文件（可为空，使用默认字体）
	OutputPath     string
	Width          int
	Height         int
	FPS            int
	Duration       float64 // 秒
	Bitrate        string  // 如 "5000k"
}

// ComposeShort 合成一条竖屏短视频
// 返回的 error 包含 FFmpeg stderr 输出，供上层分类（OOM/编码失败）
func (c *Client) ComposeShort(ctx context.Context, req *ComposeRequest) error {
	args := []string{"-y"}

	// 视频输入：背景图循环 或 纯色背景
	if req.BackgroundPath != "" {
		args = append(args, "-loop", "1", "-i", req.BackgroundPath)
	} else {
		args = append(args, "-f", "lavfi",
			"-i", fmt.Sprintf("color=c=0x1e1e32:s=%dx%d:r=%d", req.Width, req.Height, req.FPS))
	}

	// 音频输入
	audioInputs := 0
	if req.NarrationPath != "" {
		args = append(args, "-i", req.NarrationPath)
		audioInputs++
	}
	if req.MusicPath != "" {
		args = append(args, "-stream_loop", "-1", "-i", req.MusicPath)
		audioInputs++
	}

	// 视频滤镜链：缩放裁剪到目标分辨率 + 标题 + 字幕
	filters := []string{
		fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase", req.Width, req.Height),
		fmt.Sprintf("crop=%d:%d", req.Width, req.Height),
	}
	if req.Title != "" {
		filters = append(filters, c.drawtext(req.FontPath, req.Title,
			"(w-text_w)/2", "120", 64, "white", ""))
	}
	for _, cap := range req.Captions {
		enable := fmt.Sprintf("between(t\\,%.2f\\,%.2f)", cap.StartTime, cap.EndTime)
		filters = append(filters, c.drawtext(req.FontPath, cap.Text,
			"(w-text_w)/2", "h-420", 56, "yellow", enable))
	}
	args = append(args, "-vf", strings.Join(filters, ","))

	// 音频处理：旁白 + 音乐混音（音乐压低音量），单路直接输出
	switch audioInputs {
	case 2:
		args = append(args,
			"-filter_complex",
			"[2:a]volume=0.25[bgm];[1:a][bgm]amix=inputs=2:duration=first:dropout_transition=2[aout]",
			"-map", "0:v", "-map", "[aout]")
	case 1:
		args = append(args, "-map", "0:v", "-map", "1:a")
	}

	args = append(args,
		"-t", fmt.Sprintf("%.2f", req.Duration),
		"-c:v", "libx264",
		"-pix_fmt", "yuv420p",
		"-r", strconv.Itoa(req.FPS),
	)
	if req.Bitrate != "" {
		args = append(args, "-b:v", req.Bitrate)
	}
	if audioInputs > 0 {
		args = append(args, "-c:a", "aac", "-shortest")
	}
	args = append(args, "-movflags", "+faststart", req.OutputPath)

	cmd := exec.CommandContext(ctx, c.ffmpegPath, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg failed: %w: %s", err, tail(stderr.String(), 500))
	}

	log.Debug().
		Str("output", req.OutputPath).
		Float64("duration", req.Duration).
		Int("captions", len(req.Captions)).
		Msg("short video composed")

	return nil
}

// drawtext 构建 drawtext 滤镜表达式
func (c *Client) drawtext(fontPath, text, x, y string, size int, color, enable string) string {
	parts := []string{
		"drawtext=text='" + escapeDrawtext(text) + "'",
		"x=" + x,
		"y=" + y,
		"fontsize=" + strconv.Itoa(size),
		"fontcolor=" + color,
		"borderw=3",
		"bordercolor=black",
	}
	if fontPath != "" {
		parts = append(parts, "fontfile="+escapeDrawtext(fontPath))
	}
	if enable != "" {
		parts = append(parts, "enable='"+enable+"'")
	}
	return strings.Join(parts, ":")
}

// escapeDrawtext 转义 drawtext 文本中的特殊字符
func escapeDrawtext(text string) string {
	replacer := strings.NewReplacer(
		"\\", "\\\\",
		"'", "\\'",
		":", "\\:",
		"%", "\\%",
	)
	return replacer.Replace(text)
}

// tail 截取字符串末尾 n 个字节（FFmpeg 错误信息通常在末尾）
func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
