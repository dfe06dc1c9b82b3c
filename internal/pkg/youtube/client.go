package youtube

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"

	"lime/internal/config"
)

// Client YouTube Data API v3 客户端
// 封装 OAuth 认证和视频上传
type Client struct {
	svc        *youtube.Service
	privacy    string
	categoryID string
}

// PublishResult 发布结果
type PublishResult struct {
	RemoteID     string // 发布端视频ID
	PublishedURL string // 视频访问地址
}

// NewClient 创建 YouTube 客户端
// 需要 OAuth client secret 文件和已授权的 token 文件
func NewClient(ctx context.Context, cfg *config.UploadConfig) (*Client, error) {
	secret, err := os.ReadFile(cfg.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}

	oauthCfg, err := google.ConfigFromJSON(secret, youtube.YoutubeUploadScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials: %w", err)
	}

	token, err := tokenFromFile(cfg.TokenFile)
	if err != nil {
		return nil, fmt.Errorf("load oauth token: %w", err)
	}

	httpClient := oauthCfg.Client(ctx, token)
	svc, err := youtube.NewService(ctx, option.WithHTTPClient(httpClient))
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}

	privacy := cfg.Privacy
	if privacy == "" {
		privacy = "unlisted"
	}
	categoryID := cfg.CategoryID
	if categoryID == "" {
		categoryID = "27" // Education
	}

	return &Client{
		svc:        svc,
		privacy:    privacy,
		categoryID: categoryID,
	}, nil
}

// tokenFromFile 从文件加载 OAuth token
func tokenFromFile(path string) (*oauth2.Token, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, err
	}
	return token, nil
}

// Publish 上传并发布一条视频
// 使用 resumable upload（大于 5MB 的文件必须）
func (c *Client) Publish(ctx context.Context, videoPath, title, description string, tags []string) (*PublishResult, error) {
	video := &youtube.Video{
		Snippet: &youtube.VideoSnippet{
			Title:       title,
			Description: description,
			Tags:        tags,
			CategoryId:  c.categoryID,
		},
		Status: &youtube.VideoStatus{
			PrivacyStatus: c.privacy,
		},
	}

	f, err := os.Open(videoPath)
	if err != nil {
		return nil, fmt.Errorf("open video file: %w", err)
	}
	defer f.Close()

	call := c.svc.Videos.Insert([]string{"snippet", "status"}, video)
	call.Media(f)
	call.Context(ctx)

	uploaded, err := call.Do()
	if err != nil {
		return nil, err
	}

	result := &PublishResult{
		RemoteID:     uploaded.Id,
		PublishedURL: "https://youtube.com/shorts/" + uploaded.Id,
	}

	log.Info().
		Str("remote_id", result.RemoteID).
		Str("title", title).
		Msg("video published")

	return result, nil
}
