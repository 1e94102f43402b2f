// Package main runs the dual-stream recording HTTP server with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dualcast/backend/config"
	"github.com/dualcast/backend/internal/auth"
	"github.com/dualcast/backend/internal/editor"
	"github.com/dualcast/backend/internal/middleware"
	"github.com/dualcast/backend/internal/recordings"
	"github.com/dualcast/backend/internal/transcoder"
	"github.com/dualcast/backend/internal/worker"
	"github.com/dualcast/backend/pkg/database"
	"github.com/dualcast/backend/pkg/queue"
	"github.com/dualcast/backend/pkg/redis"
	"github.com/dualcast/backend/pkg/response"
	"github.com/dualcast/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	rdb, err := redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
	if err != nil {
		logger.Fatal("redis", zap.Error(err))
	}
	defer rdb.Close()

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			Bucket:               cfg.AWS.Bucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 archival disabled", zap.Error(err))
		}
	}

	if err := os.MkdirAll(filepath.Join(cfg.Media.DataDir, "edited"), 0o755); err != nil {
		logger.Fatal("create data dir", zap.Error(err))
	}

	// Token authority
	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.AccessTTL)
	authRepo := auth.NewRepository(pool)
	authority := auth.NewService(authRepo, jwtService, cfg.JWT.RefreshTTL, cfg.JWT.MaxSessions, logger)
	authHandler := auth.NewHandler(authRepo, authority, cfg.JWT.RefreshTTL, cfg.Server.CookieSecure, logger)

	// Recordings
	ffmpeg := transcoder.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, logger)
	recordingRepo := recordings.NewRepository(pool)
	recordingHandler := recordings.NewHandler(recordingRepo, ffmpeg, s3Client, cfg.Media.DataDir, logger)

	// Edit pipeline
	jobQueue := queue.NewQueue(rdb.Client, logger)
	editorSvc := editor.NewService(recordingRepo, jobQueue, ffmpeg, cfg.Media.DataDir, cfg.Media.TranscodeTimeout, logger)
	editorHandler := editor.NewHandler(editorSvc, logger)
	transcodeWorker := worker.NewTranscodeProcessor(recordingRepo, ffmpeg, jobQueue, s3Client, cfg.Media.TranscodeTimeout, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.MaxMultipartMemory = cfg.Media.MaxUploadMB << 20

	// Health
	router.GET("/health", func(c *gin.Context) { response.OK(c, gin.H{"status": "ok"}) })

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/register", authHandler.Register)
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/refresh-token", authHandler.Refresh)
		authGroup.POST("/logout", authHandler.Logout)
	}

	// Protected API (access token required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService))
	{
		api.POST("/auth/logout-all", authHandler.LogoutAll)

		api.POST("/recordings", recordingHandler.Upload)
		api.GET("/recordings", recordingHandler.List)
		api.GET("/recordings/:id", recordingHandler.GetByID)
		api.GET("/recordings/:id/video/:variant", recordingHandler.Stream)
		api.GET("/recordings/:id/download-url", recordingHandler.GenerateDownloadURL)

		api.POST("/edit-video", editorHandler.EditVideo)
		api.POST("/merge-videos", editorHandler.MergeVideos)
		api.GET("/edit-status/:recordingId", editorHandler.EditStatus)
	}

	srv := &http.Server{
		Addr:        ":" + cfg.Server.Port,
		Handler:     router,
		ReadTimeout: time.Duration(cfg.Server.ReadTimeout) * time.Second,
		// WriteTimeout stays unset by default: range streaming of large assets
		// must not be cut off mid-response.
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background work: transcode jobs and refresh token eviction.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	go transcodeWorker.Run(workerCtx)
	go authority.SweepExpired(workerCtx, cfg.JWT.SweepInterval)
	logger.Info("transcode worker started")

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
