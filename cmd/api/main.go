package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepwater-mud/economy/internal/catalog"
	"github.com/deepwater-mud/economy/internal/config"
	"github.com/deepwater-mud/economy/internal/infra"
	"github.com/deepwater-mud/economy/internal/logging"
	"github.com/deepwater-mud/economy/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	in, closeInfra, err := connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("connect infrastructure", "error", err)
		os.Exit(1)
	}
	defer closeInfra()

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		logger.Error("load catalog", "path", cfg.CatalogPath, "error", err)
		os.Exit(1)
	}

	srv, err := server.New(ctx, cfg, in, cat, logger)
	if err != nil {
		logger.Error("build server", "error", err)
		os.Exit(1)
	}

	srvErrCh := make(chan error, 1)
	go func() {
		srvErrCh <- srv.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-srvErrCh:
		if err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownPeriod)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server exited cleanly")
}

// connect dials every configured backend. Unset URLs leave the client nil;
// the server decides whether that is acceptable for the environment.
func connect(ctx context.Context, cfg config.Config, logger *slog.Logger) (server.Infra, func(), error) {
	var (
		in      server.Infra
		closers []func()
	)
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.DatabaseURL != "" {
		db, err := infra.NewPostgresPool(ctx, cfg.DatabaseURL, infra.PoolOptions{
			AppName:  cfg.AppName,
			MaxConns: int32(cfg.DBMaxConns),
		})
		if err != nil {
			return in, func() {}, err
		}
		in.DB = db
		closers = append(closers, db.Close)
	}

	if cfg.RedisURL != "" {
		cache, err := infra.NewRedisClient(ctx, cfg.RedisURL, cfg.AppName, cfg.RedisPoolSize)
		if err != nil {
			closeAll()
			return in, func() {}, err
		}
		in.Cache = cache
		closers = append(closers, func() {
			if err := cache.Close(); err != nil {
				logger.Warn("close redis", "error", err)
			}
		})
	}

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := infra.NewKafkaProducer(cfg.KafkaBrokers)
		if err != nil {
			closeAll()
			return in, func() {}, err
		}
		in.Kafka = producer
		closers = append(closers, func() {
			if err := producer.Close(); err != nil {
				logger.Warn("close kafka producer", "error", err)
			}
		})
	}

	if cfg.ElasticsearchURL != "" {
		search, err := infra.NewElasticsearch(ctx, cfg.ElasticsearchURL)
		if err != nil {
			closeAll()
			return in, func() {}, err
		}
		in.Search = search
	}

	return in, closeAll, nil
}
