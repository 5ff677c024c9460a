package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/myoussoffi-svg/athena-portal-sub002/internal/config"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/events"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/logger"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/repository"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/service"
	"github.com/myoussoffi-svg/athena-portal-sub002/internal/storage"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize logger
	logger.SetDefaultLogger(logger.New(&logger.Config{
		Level:       cfg.Logging.Level,
		Format:      cfg.Logging.Format,
		ServiceName: cfg.Logging.ServiceName + "-worker",
		LogFile:     cfg.Logging.File,
		LogFileOnly: cfg.Logging.FileOnly,
		MaxSize:     cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAge:      cfg.Logging.MaxAgeDays,
		Compress:    cfg.Logging.Compress,
	}))
	defer logger.Sync()

	// Initialize database
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		logger.Fatal("Failed to initialize database: %v", err)
	}

	// Initialize storage
	objectStorage, err := storage.NewS3Storage(&storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
		PublicURL: cfg.Storage.PublicURL,
	})
	if err != nil {
		logger.Fatal("Failed to initialize storage: %v", err)
	}

	// Initialize Redis and the event consumer
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.Fatal("Failed to connect to Redis: %v", err)
	}

	// Initialize the processing pipeline
	evaluator := service.NewEvaluatorService(&service.EvaluatorConfig{
		Provider: cfg.LLM.Provider,
		Model:    cfg.LLM.Model,
		APIKey:   cfg.LLM.APIKey,
		BaseURL:  cfg.LLM.BaseURL,
	})
	pipeline := service.NewPipelineService(db, objectStorage, evaluator, &cfg.Interview)

	consumer := events.NewConsumer(rdb, cfg.Redis.Queue)
	pipeline.Register(consumer)

	go func() {
		if err := consumer.Run(ctx); err != nil && err != context.Canceled {
			logger.Error("Consumer stopped: %v", err)
		}
	}()

	// Schedule background sweeps
	sweeper := service.NewSweeperService(db, objectStorage, &cfg.Interview)

	scheduler := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err = scheduler.AddFunc(cfg.Sweeps.AbandonmentSchedule, func() {
		if _, err := sweeper.SweepAbandoned(ctx); err != nil {
			logger.Error("Abandonment sweep failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatal("Invalid abandonment schedule: %v", err)
	}
	_, err = scheduler.AddFunc(cfg.Sweeps.MediaExpirySchedule, func() {
		if _, err := sweeper.SweepExpiredMedia(ctx); err != nil {
			logger.Error("Media expiry sweep failed: %v", err)
		}
	})
	if err != nil {
		logger.Fatal("Invalid media expiry schedule: %v", err)
	}
	scheduler.Start()

	logger.Info("Worker started: queue=%s", cfg.Redis.Queue)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down worker...")
	cancel()
	<-scheduler.Stop().Done()

	logger.Info("Worker exited")
}
