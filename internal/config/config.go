package config

import (
	"errors"
	"time"
)

// Config 应用配置根结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	AI       AIConfig       `mapstructure:"ai"`
	Log      LogConfig      `mapstructure:"log"`
	Mongo    MongoConfig    `mapstructure:"mongo"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Assets   AssetsConfig   `mapstructure:"assets"`
	Video    VideoConfig    `mapstructure:"video"`
	Upload   UploadConfig   `mapstructure:"upload"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Host         string        `mapstructure:"host"`
	Port         int           `mapstructure:"port"`
	Mode         string        `mapstructure:"mode"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// AIConfig AI 服务配置（文案生成模型）
type AIConfig struct {
	Provider string          `mapstructure:"provider"`
	APIKey   string          `mapstructure:"api_key"`
	Model    string          `mapstructure:"model"`
	BaseURL  string          `mapstructure:"base_url"`
	Options  AIOptionsConfig `mapstructure:"options"`
}

// AIOptionsConfig AI 模型参数
type AIOptionsConfig struct {
	Temperature float64 `mapstructure:"temperature"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	TopP        float64 `mapstructure:"top_p"`
}

// LogConfig 日志配置 (Zerolog)
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	FilePath   string `mapstructure:"file_path"`
	TimeFormat string `mapstructure:"time_format"`
}

// MongoConfig MongoDB 配置
type MongoConfig struct {
	URI         string `mapstructure:"uri"`
	Database    string `mapstructure:"database"`
	MaxPoolSize uint64 `mapstructure:"max_pool_size"`
	MinPoolSize uint64 `mapstructure:"min_pool_size"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// StorageConfig 存储配置（成品归档）
type StorageConfig struct {
	Type  string       `mapstructure:"type"` // local, oss
	Local *LocalConfig `mapstructure:"local,omitempty"`
	OSS   *OSSConfig   `mapstructure:"oss,omitempty"`
}

// LocalConfig 本地文件系统配置
type LocalConfig struct {
	BasePath      string `mapstructure:"base_path"`      // 基础路径
	BaseURL       string `mapstructure:"base_url"`       // 基础URL（用于生成访问URL）
	PresignExpiry int    `mapstructure:"presign_expiry"` // 预签名URL过期时间（秒）
}

// OSSConfig 阿里云OSS配置
type OSSConfig struct {
	Endpoint        string `mapstructure:"endpoint"`          // OSS端点
	Bucket          string `mapstructure:"bucket"`            // Bucket名称
	AccessKeyID     string `mapstructure:"access_key_id"`     // AccessKey ID
	AccessKeySecret string `mapstructure:"access_key_secret"` // AccessKey Secret
	PresignExpiry   int    `mapstructure:"presign_expiry"`    // 预签名URL过期时间（秒）
}

// PipelineConfig 批次编排配置
type PipelineConfig struct {
	MaxBatchSize      int           `mapstructure:"max_batch_size"`     // 单批次最大条目数
	RenderCapacity    int64         `mapstructure:"render_capacity"`    // 渲染并发容量（GPU 槽位数）
	ScriptConcurrency int           `mapstructure:"script_concurrency"` // 文案生成并发数
	UploadConcurrency int           `mapstructure:"upload_concurrency"` // 上传并发数
	ScriptRetries     int           `mapstructure:"script_retries"`     // 文案阶段重试次数
	RenderRetries     int           `mapstructure:"render_retries"`     // 渲染阶段重试次数
	UploadRetries     int           `mapstructure:"upload_retries"`     // 上传阶段重试次数
	ScriptTimeout     time.Duration `mapstructure:"script_timeout"`     // 文案阶段单次超时
	RenderTimeout     time.Duration `mapstructure:"render_timeout"`     // 渲染阶段单次超时
	UploadTimeout     time.Duration `mapstructure:"upload_timeout"`     // 上传阶段单次超时
	AcquireTimeout    time.Duration `mapstructure:"acquire_timeout"`    // 渲染槽位等待超时
	BackoffInitial    time.Duration `mapstructure:"backoff_initial"`    // 重试退避初始间隔
	BackoffMultiplier float64       `mapstructure:"backoff_multiplier"` // 重试退避倍数
	BackoffMax        time.Duration `mapstructure:"backoff_max"`        // 重试退避上限
	WorkDir           string        `mapstructure:"work_dir"`           // 渲染中间产物目录
	ResumeOnStart     bool          `mapstructure:"resume_on_start"`    // 启动时恢复未完成批次
}

// AssetsConfig 素材库配置
type AssetsConfig struct {
	BackgroundPath string   `mapstructure:"background_path"` // 背景图路径（可为空）
	MusicPath      string   `mapstructure:"music_path"`      // 背景音乐路径（可为空，缺失时生成无声视频）
	FontPaths      []string `mapstructure:"font_paths"`      // 字体候选路径，按顺序探测
	GenerateBG     bool     `mapstructure:"generate_bg"`     // 无静态背景时是否用 AI 生成背景图
	TTSEnabled     bool     `mapstructure:"tts_enabled"`     // 是否为旁白生成 TTS 配音
}

// VideoConfig 视频输出参数
type VideoConfig struct {
	Width    int     `mapstructure:"width"`
	Height   int     `mapstructure:"height"`
	FPS      int     `mapstructure:"fps"`
	Duration float64 `mapstructure:"duration"` // 默认时长（秒）
	Bitrate  string  `mapstructure:"bitrate"`
}

// UploadConfig 发布端配置（YouTube Data API）
type UploadConfig struct {
	CredentialsFile string        `mapstructure:"credentials_file"` // OAuth client secret 文件
	TokenFile       string        `mapstructure:"token_file"`       // OAuth token 文件
	Privacy         string        `mapstructure:"privacy"`          // public/unlisted/private
	CategoryID      string        `mapstructure:"category_id"`
	QuotaPerMinute  int           `mapstructure:"quota_per_minute"` // 每分钟最大提交数
	QuotaBurst      int           `mapstructure:"quota_burst"`      // 突发量
	ReceiptTTL      time.Duration `mapstructure:"receipt_ttl"`      // 幂等回执缓存时间
	DryRun          bool          `mapstructure:"dry_run"`          // 只归档不发布
}

// Validate 验证配置有效性
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("invalid server port")
	}

	validModes := map[string]bool{"debug": true, "release": true, "test": true}
	if !validModes[c.Server.Mode] {
		return errors.New("invalid server mode, must be debug/release/test")
	}

	if c.Pipeline.MaxBatchSize <= 0 {
		return errors.New("pipeline.max_batch_size must be positive")
	}
	if c.Pipeline.RenderCapacity <= 0 {
		return errors.New("pipeline.render_capacity must be positive")
	}
	if c.Pipeline.BackoffMultiplier < 1 {
		return errors.New("pipeline.backoff_multiplier must be >= 1")
	}
	if c.Video.Width <= 0 || c.Video.Height <= 0 {
		return errors.New("invalid video dimensions")
	}

	return nil
}
