// Package main runs the standalone transcode worker.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/dualcast/backend/config"
	"github.com/dualcast/backend/internal/recordings"
	"github.com/dualcast/backend/internal/transcoder"
	"github.com/dualcast/backend/internal/worker"
	"github.com/dualcast/backend/pkg/database"
	"github.com/dualcast/backend/pkg/queue"
	"github.com/dualcast/backend/pkg/redis"
	"github.com/dualcast/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

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

	store := recordings.NewRepository(pool)
	ffmpeg := transcoder.NewFFmpeg(cfg.Media.FFmpegPath, cfg.Media.FFprobePath, logger)
	jobQueue := queue.NewQueue(rdb.Client, logger)
	processor := worker.NewTranscodeProcessor(store, ffmpeg, jobQueue, s3Client, cfg.Media.TranscodeTimeout, logger)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("shutting down worker")
		cancel()
	}()

	logger.Info("transcode worker started")
	processor.Run(ctx)
	logger.Info("worker stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
