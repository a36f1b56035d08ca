package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"portfolio/internal/logger"
	"portfolio/internal/models"
	"portfolio/internal/pipeline"
	"portfolio/internal/queue"
	"portfolio/internal/server"
	"portfolio/internal/session"
	"portfolio/internal/storage"
)

func main() {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	cfg, err := models.LoadConfig(path)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	lg, err := logger.New(cfg.Log)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	if err := run(cfg, lg); err != nil {
		lg.Fatal("service stopped", zap.Error(err))
	}
}

func run(cfg *models.Config, lg *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := openRepository(ctx, cfg, lg)
	if err != nil {
		return err
	}
	defer repo.Close()

	pipe, err := pipeline.New(server.PipelineConfig(cfg), lg.Named("pipeline"))
	if err != nil {
		return err
	}

	var sessions session.Store = session.NewMemoryStore(cfg.Auth.SessionTTL)
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping: %w", err)
		}
		sessions = session.NewRedisStore(rdb, cfg.Auth.SessionTTL)
	} else {
		lg.Warn("redis not configured, sessions are kept in memory")
	}

	var producer queue.Producer
	if len(cfg.Kafka.Brokers) > 0 {
		kp := queue.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer kp.Close()
		producer = kp
	}

	srv := server.NewServer(cfg, repo, pipe, sessions, producer, lg.Named("http"))

	if producer != nil {
		consumer := queue.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.Topic, cfg.Kafka.GroupID,
			cfg.Image.ProcessTimeout, srv.RegenerateThumbnails, lg.Named("queue"))
		defer consumer.Close()
		go consumer.Run(ctx)
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("listening", zap.String("addr", cfg.ServerAddr))
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}

func openRepository(ctx context.Context, cfg *models.Config, lg *zap.Logger) (storage.Repository, error) {
	switch cfg.Storage.Driver {
	case "json":
		return storage.NewJSONStore(cfg.Storage.DataDir)
	case "postgres":
		return storage.NewPostgres(ctx, cfg.Storage.DatabaseURL, lg.Named("storage"))
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}
