package ark

import (
	"context"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/volcengine/volcengine-go-sdk/service/arkruntime"
	arkmodel "github.com/volcengine/volcengine-go-sdk/service/arkruntime/model"
)

// ImageConfig Ark 图片生成配置
type ImageConfig struct {
	APIKey  string // API Key（必需）
	BaseURL string // API 基础 URL（可选，默认: https://ark.cn-beijing.volces.com/api/v3）
	Model   string // 模型名称（可选，默认: doubao-seedream-3-0-t2i-250415）
}

// ImageConfigFromEnv 从环境变量创建图片生成配置
// 支持的环境变量：
//   - ARK_API_KEY: API Key（必需）
//   - ARK_IMAGE_MODEL: 图片生成模型名称（可选）
//   - ARK_BASE_URL: API 基础 URL（可选）
func ImageConfigFromEnv() *ImageConfig {
	model := os.Getenv("ARK_IMAGE_MODEL")
	baseURL := os.Getenv("ARK_BASE_URL")

	if model == "" {
		model = "doubao-seedream-3-0-t2i-250415"
	}
	if baseURL == "" {
		baseURL = "https://ark.cn-beijing.volces.com/api/v3"
	}

	return &ImageConfig{
		APIKey:  os.Getenv("ARK_API_KEY"),
		BaseURL: baseURL,
		Model:   model,
	}
}

// ImageClient Ark 图片生成客户端
// 用于为没有静态背景素材的条目生成竖屏背景图
type ImageClient struct {
	client *arkruntime.Client
	model  string
}

// NewImageClient 创建图片生成客户端
func NewImageClient(config *ImageConfig) (*ImageClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("ARK_API_KEY is required")
	}

	var opts []arkruntime.ConfigOption
	if config.BaseURL != "" {
		opts = append(opts, arkruntime.WithBaseUrl(config.BaseURL))
	}

	return &ImageClient{
		client: arkruntime.NewClientWithApiKey(config.APIKey, opts...),
		model:  config.Model,
	}, nil
}

// GenerateBackground 生成背景图并保存到 outputPath
// size 为空时默认竖屏 720x1280
func (c *ImageClient) GenerateBackground(ctx context.Context, prompt, size, outputPath string) error {
	if size == "" {
		size = "720x1280"
	}

	responseFormat := "b64_json"
	watermark := false

	input := arkmodel.GenerateImagesRequest{
		Model:          c.model,
		Prompt:         prompt,
		Size:           &size,
		ResponseFormat: &responseFormat,
		Watermark:      &watermark,
	}

	output, err := c.client.GenerateImages(ctx, input)
	if err != nil {
		return fmt.Errorf("ark GenerateImages: %w", err)
	}

	if len(output.Data) == 0 || output.Data[0].B64Json == nil {
		return fmt.Errorf("no image data in response")
	}

	data, err := base64.StdEncoding.DecodeString(*output.Data[0].B64Json)
	if err != nil {
		return fmt.Errorf("decode image data: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outputPath), 0755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	if err := os.WriteFile(outputPath, data, 0644); err != nil {
		return fmt.Errorf("write image: %w", err)
	}

	log.Debug().Str("path", outputPath).Str("size", size).Msg("background image generated")
	return nil
}
