package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"lime/internal/config"
	"lime/internal/handler"
	batchHandler "lime/internal/handler/batch"
	"lime/internal/pkg/ark"
	"lime/internal/pkg/assets"
	"lime/internal/pkg/cache"
	"lime/internal/pkg/mongodb"
	"lime/internal/pkg/storage"
	"lime/internal/pkg/storagefactory"
	"lime/internal/pkg/youtube"
	pipelineRepo "lime/internal/repository/pipeline"
	"lime/internal/server/middleware"
	"lime/internal/service"
)

// Server HTTP 服务器
type Server struct {
	cfg      *config.Config
	engine   *gin.Engine
	mongo    *mongodb.Client
	redis    *cache.RedisCache
	archive  storage.Storage
	pipeline service.PipelineService
}

// Pipeline 装配完成的生产流水线及其底层连接
type Pipeline struct {
	Service service.PipelineService
	Mongo   *mongodb.Client
	Redis   *cache.RedisCache
	Archive storage.Storage
}

// Close 停止编排器并关闭底层连接
func (p *Pipeline) Close() {
	p.Service.Stop()
	if p.Mongo != nil {
		if err := p.Mongo.Close(context.Background()); err != nil {
			log.Error().Err(err).Msg("failed to close MongoDB connection")
		}
	}
	if p.Redis != nil {
		if err := p.Redis.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close Redis connection")
		}
	}
}

// New 创建服务器实例
// 装配整条生产流水线：文案 -> 渲染 -> 上传，以及批次编排器
func New(ctx context.Context, cfg *config.Config) (*Server, error) {
	// 设置 Gin 模式
	switch cfg.Server.Mode {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	engine := gin.New()

	pipeline, err := NewPipeline(ctx, cfg)
	if err != nil {
		return nil, err
	}

	srv := &Server{
		cfg:      cfg,
		engine:   engine,
		mongo:    pipeline.Mongo,
		redis:    pipeline.Redis,
		archive:  pipeline.Archive,
		pipeline: pipeline.Service,
	}

	srv.setupRoutes()

	// 恢复上次进程退出时未完成的批次
	if cfg.Pipeline.ResumeOnStart {
		if err := pipeline.Service.Resume(ctx); err != nil {
			log.Error().Err(err).Msg("failed to resume unfinished batches")
		}
	}

	return srv, nil
}

// NewPipeline 装配批次编排器及三个阶段适配器
// serve 与 run 两个入口共用这一套装配
func NewPipeline(ctx context.Context, cfg *config.Config) (*Pipeline, error) {
	// 初始化 MongoDB（批次与条目状态的持久层，必需）
	mongoClient, err := mongodb.New(&cfg.Mongo)
	if err != nil {
		return nil, err
	}
	log.Info().Str("database", cfg.Mongo.Database).Msg("connected to MongoDB")

	if err := mongodb.EnsureIndexes(mongoClient.Database()); err != nil {
		log.Warn().Err(err).Msg("failed to ensure indexes")
	}

	// 初始化 Redis（发布回执幂等缓存，可选）
	var redisCache *cache.RedisCache
	if cfg.Redis.Addr != "" {
		rc, err := cache.NewRedisCache(&cfg.Redis)
		if err != nil {
			log.Warn().Err(err).Msg("failed to connect to Redis, continuing without it")
		} else {
			redisCache = rc
			log.Info().Str("addr", cfg.Redis.Addr).Msg("connected to Redis")
		}
	}

	// 归档存储（可选）
	var archive storage.Storage
	if cfg.Storage.Type != "" {
		archive, err = storagefactory.NewStorage(ctx, &cfg.Storage)
		if err != nil {
			log.Warn().Err(err).Msg("archive storage disabled")
			archive = nil
		}
	}

	svc, err := buildOrchestrator(ctx, cfg, mongoClient, redisCache, archive)
	if err != nil {
		_ = mongoClient.Close(context.Background())
		return nil, err
	}

	return &Pipeline{Service: svc, Mongo: mongoClient, Redis: redisCache, Archive: archive}, nil
}

// buildOrchestrator 装配三个阶段适配器与编排器
func buildOrchestrator(ctx context.Context, cfg *config.Config, mongoClient *mongodb.Client, redisCache *cache.RedisCache, archive storage.Storage) (service.PipelineService, error) {
	scriptSvc, err := service.NewScriptService(ctx, &cfg.AI, &cfg.Video)
	if err != nil {
		return nil, err
	}

	assetStore, err := assets.NewStore(&cfg.Assets)
	if err != nil {
		return nil, err
	}

	// 文生图与 TTS 为可选增强，未配置时降级
	var imageClient *ark.ImageClient
	if cfg.Assets.GenerateBG {
		imageClient, err = ark.NewImageClient(ark.ImageConfigFromEnv())
		if err != nil {
			log.Warn().Err(err).Msg("image generation disabled")
			imageClient = nil
		}
	}
	var ttsClient *ark.TTSClient
	if cfg.Assets.TTSEnabled {
		ttsClient, err = ark.NewTTSClient(ark.TTSConfigFromEnv())
		if err != nil {
			log.Warn().Err(err).Msg("narration TTS disabled")
			ttsClient = nil
		}
	}

	renderSvc, err := service.NewRenderService(assetStore, imageClient, ttsClient, &cfg.Video, cfg.Pipeline.WorkDir)
	if err != nil {
		return nil, err
	}

	// 发布客户端：未配置凭证时回退为 dry_run（只归档不发布）
	uploadCfg := cfg.Upload
	var publisher service.Publisher
	if uploadCfg.CredentialsFile != "" {
		yt, err := youtube.NewClient(ctx, &uploadCfg)
		if err != nil {
			return nil, err
		}
		publisher = yt
	} else if !uploadCfg.DryRun {
		log.Warn().Msg("upload credentials not configured, falling back to dry_run")
		uploadCfg.DryRun = true
	}

	var receipts service.ReceiptStore
	if redisCache != nil {
		receipts = redisCache
	}
	uploadSvc, err := service.NewUploadService(publisher, archive, receipts, &uploadCfg)
	if err != nil {
		return nil, err
	}

	itemRepo := pipelineRepo.NewItemRepo(mongoClient.Database())
	batchRepo := pipelineRepo.NewBatchRepo(mongoClient.Database())

	return service.NewPipelineService(
		&cfg.Pipeline,
		scriptSvc,
		renderSvc,
		uploadSvc,
		itemRepo,
		batchRepo,
	), nil
}

// setupRoutes 设置路由
func (s *Server) setupRoutes() {
	// 全局中间件
	s.engine.Use(middleware.Recovery())
	s.engine.Use(middleware.RequestID())
	s.engine.Use(middleware.Logger())
	s.engine.Use(middleware.CORS())

	// 健康检查
	healthHandler := handler.NewHealthHandler()
	s.engine.GET("/health", healthHandler.Health)
	s.engine.GET("/ready", healthHandler.Ready)

	// API v1
	v1 := s.engine.Group("/api/v1")
	{
		batchHdl := batchHandler.NewHandler(s.pipeline, s.archive)

		v1.POST("/batches", batchHdl.CreateBatch)
		v1.GET("/batches/:id", batchHdl.GetBatch)
		v1.POST("/batches/:id/cancel", batchHdl.CancelBatch)
		v1.GET("/batches/:id/items", batchHdl.ListItems)
		v1.GET("/batches/:id/items/:item_id/media", batchHdl.DownloadMedia)
	}
}

// Run 启动服务器
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	// 启动服务器
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// 等待关闭信号或错误
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server...")

		// 停止编排器，再关闭连接
		s.pipeline.Stop()
		if s.mongo != nil {
			if err := s.mongo.Close(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to close MongoDB connection")
			}
		}
		if s.redis != nil {
			if err := s.redis.Close(); err != nil {
				log.Error().Err(err).Msg("failed to close Redis connection")
			}
		}

		return srv.Shutdown(context.Background())
	case err := <-errCh:
		return err
	}
}
