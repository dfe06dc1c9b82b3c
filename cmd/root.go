package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lime/internal/config"
	"lime/internal/pkg/logger"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "lime",
	Short: "Lime - batch short-video production service",
	Long: `Lime turns a batch of topic seeds into published short videos.
Each topic goes through AI script generation, vertical video rendering
and upload publishing, orchestrated as an independent pipeline item.`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default: ./configs/config.yaml)")

	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./configs")
		viper.AddConfigPath(".")
		viper.AddConfigPath("$HOME/.lime")
	}

	// 环境变量设置
	viper.SetEnvPrefix("LIME")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// 设置默认值
	setDefaults()

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if errors.As(err, &configFileNotFoundError) {
			fmt.Fprintln(os.Stderr, "No config file found, using defaults and environment variables")
		} else {
			fmt.Fprintf(os.Stderr, "Failed to read config: %v\n", err)
			os.Exit(1)
		}
	}

	// 反序列化到结构体
	cfg = &config.Config{}
	if err := viper.Unmarshal(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to unmarshal config: %v\n", err)
		os.Exit(1)
	}

	// 初始化日志
	if err := logger.Init(&cfg.Log); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to init logger: %v\n", err)
		os.Exit(1)
	}

	log.Debug().Str("config_file", viper.ConfigFileUsed()).Msg("configuration loaded")
}

func setDefaults() {
	// Server
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("server.read_timeout", "30s")
	viper.SetDefault("server.write_timeout", "30s")

	// AI
	viper.SetDefault("ai.provider", "openai")
	viper.SetDefault("ai.model", "gpt-4o-mini")
	viper.SetDefault("ai.options.temperature", 0.7)
	viper.SetDefault("ai.options.max_tokens", 4096)
	viper.SetDefault("ai.options.top_p", 1.0)

	// Log
	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.time_format", "RFC3339")

	// MongoDB
	viper.SetDefault("mongo.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongo.database", "lime")
	viper.SetDefault("mongo.max_pool_size", 100)
	viper.SetDefault("mongo.min_pool_size", 10)

	// Redis
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	// Pipeline
	viper.SetDefault("pipeline.max_batch_size", 50)
	viper.SetDefault("pipeline.render_capacity", 2)
	viper.SetDefault("pipeline.script_concurrency", 4)
	viper.SetDefault("pipeline.upload_concurrency", 2)
	viper.SetDefault("pipeline.script_retries", 3)
	viper.SetDefault("pipeline.render_retries", 2)
	viper.SetDefault("pipeline.upload_retries", 5)
	viper.SetDefault("pipeline.script_timeout", "60s")
	viper.SetDefault("pipeline.render_timeout", "5m")
	viper.SetDefault("pipeline.upload_timeout", "2m")
	viper.SetDefault("pipeline.acquire_timeout", "2m")
	viper.SetDefault("pipeline.backoff_initial", "500ms")
	viper.SetDefault("pipeline.backoff_multiplier", 2.0)
	viper.SetDefault("pipeline.backoff_max", "30s")
	viper.SetDefault("pipeline.resume_on_start", true)

	// Video
	viper.SetDefault("video.width", 1080)
	viper.SetDefault("video.height", 1920)
	viper.SetDefault("video.fps", 30)
	viper.SetDefault("video.duration", 15.0)
	viper.SetDefault("video.bitrate", "5000k")

	// Upload
	viper.SetDefault("upload.privacy", "unlisted")
	viper.SetDefault("upload.category_id", "27")
	viper.SetDefault("upload.quota_per_minute", 6)
	viper.SetDefault("upload.quota_burst", 1)
	viper.SetDefault("upload.receipt_ttl", "168h")
}

// GetConfig returns the global configuration
func GetConfig() *config.Config {
	return cfg
}
