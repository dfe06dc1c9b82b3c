package ark

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"lime/internal/pkg/id"
)

// TTSConfig TTS 配置
type TTSConfig struct {
	APIURL      string // API 地址，默认: https://openspeech.bytedance.com/api/v1/tts
	AccessToken string // 访问令牌（必需）
	AppID       string // 应用ID（可选）
	Cluster     string // 集群名称，默认: volcano_tts
	VoiceType   string // 语音类型，默认: BV115_streaming
	SampleRate  int    // 采样率，默认: 44100
}

// TTSConfigFromEnv 从环境变量创建 TTSConfig
// 支持的环境变量：
//   - TTS_ACCESS_TOKEN: 访问令牌（必需）
//   - TTS_APP_ID: 应用ID（可选）
//   - TTS_VOICE_TYPE: 语音类型（可选）
//   - TTS_CLUSTER: 集群名称（可选）
//   - TTS_SAMPLE_RATE: 采样率（可选）
//   - TTS_API_URL: API 地址（可选）
func TTSConfigFromEnv() TTSConfig {
	cfg := TTSConfig{
		APIURL:      os.Getenv("TTS_API_URL"),
		AccessToken: os.Getenv("TTS_ACCESS_TOKEN"),
		AppID:       os.Getenv("TTS_APP_ID"),
		Cluster:     os.Getenv("TTS_CLUSTER"),
		VoiceType:   os.Getenv("TTS_VOICE_TYPE"),
	}
	if s := os.Getenv("TTS_SAMPLE_RATE"); s != "" {
		if parsed, err := strconv.Atoi(s); err == nil {
			cfg.SampleRate = parsed
		}
	}
	return cfg
}

// TTSClient TTS 客户端封装
// 调用火山引擎 openspeech TTS API 为旁白生成配音
type TTSClient struct {
	apiURL      string
	accessToken string
	appID       string
	cluster     string
	voiceType   string
	sampleRate  int
	httpClient  *http.Client
}

// NewTTSClient 创建 TTS 客户端
func NewTTSClient(config TTSConfig) (*TTSClient, error) {
	if config.AccessToken == "" {
		return nil, fmt.Errorf("TTS access token is required")
	}

	if config.APIURL == "" {
		config.APIURL = "https://openspeech.bytedance.com/api/v1/tts"
	}
	if config.Cluster == "" {
		config.Cluster = "volcano_tts"
	}
	if config.VoiceType == "" {
		config.VoiceType = "BV115_streaming"
	}
	if config.SampleRate == 0 {
		config.SampleRate = 44100
	}

	return &TTSClient{
		apiURL:      config.APIURL,
		accessToken: config.AccessToken,
		appID:       config.AppID,
		cluster:     config.Cluster,
		voiceType:   config.VoiceType,
		sampleRate:  config.SampleRate,
		httpClient: &http.Client{
			Timeout: 60 * time.Second,
		},
	}, nil
}

// ttsResponse TTS API 响应
type ttsResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data"` // base64 音频数据
}

// Synthesize 合成语音并保存到 audioPath（mp3）
func (c *TTSClient) Synthesize(ctx context.Context, text, audioPath string, speedRatio float64) error {
	if speedRatio <= 0 {
		speedRatio = 1.0
	}

	requestID := id.New()
	payload := map[string]interface{}{
		"app": map[string]interface{}{
			"appid":   c.appID,
			"token":   c.accessToken,
			"cluster": c.cluster,
		},
		"user": map[string]interface{}{
			"uid": "lime",
		},
		"audio": map[string]interface{}{
			"voice_type":  c.voiceType,
			"encoding":    "mp3",
			"rate":        c.sampleRate,
			"speed_ratio": speedRatio,
		},
		"request": map[string]interface{}{
			"reqid":     requestID,
			"text":      text,
			"operation": "query",
		},
	}

	reqBody, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal tts request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.apiURL, bytes.NewReader(reqBody))
	if err != nil {
		return fmt.Errorf("create tts request: %w", err)
	}
	req.Header.Set("Authorization", fmt.Sprintf("Bearer; %s", c.accessToken))
	req.Header.Set("Content-Type", "application/json")

	log.Debug().Str("request_id", requestID).Str("audio_path", audioPath).Msg("sending TTS request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("tts request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read tts response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("tts request failed: status %d, body: %s", resp.StatusCode, respBody)
	}

	var parsed ttsResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return fmt.Errorf("parse tts response: %w", err)
	}
	if parsed.Code != 3000 {
		return fmt.Errorf("tts api error: %s (code: %d)", parsed.Message, parsed.Code)
	}
	if parsed.Data == "" {
		return fmt.Errorf("tts response has no audio data")
	}

	audioData, err := base64.StdEncoding.DecodeString(parsed.Data)
	if err != nil {
		return fmt.Errorf("decode audio data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(audioPath), 0755); err != nil {
		return fmt.Errorf("create audio dir: %w", err)
	}
	return os.WriteFile(audioPath, audioData, 0644)
}
