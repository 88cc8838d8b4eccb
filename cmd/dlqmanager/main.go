package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/config"
	"github.com/itsnirmal/cheatcodeapp/internal/logging"
	"github.com/itsnirmal/cheatcodeapp/internal/outbox"
	httptransport "github.com/itsnirmal/cheatcodeapp/internal/transport/http"
)

const (
	defaultDLQBatchSize = 50
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("failed to connect to postgres", zap.Error(err))
	}
	defer pool.Close()

	manager := outbox.NewDLQManager(pool, cfg.DLQMaxRetries, cfg.DLQBaseDelay, logger.Named("dlq"))

	metricsDone := make(chan struct{})
	if cfg.MetricsAddress != "" {
		metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress, logger.Named("metrics"))
		go func() {
			defer close(metricsDone)
			if err := metricsSrv.Run(ctx); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	} else {
		close(metricsDone)
	}

	ticker := time.NewTicker(cfg.DLQPollInterval)
	defer ticker.Stop()

	logger.Info("dlq manager started",
		zap.Duration("interval", cfg.DLQPollInterval),
		zap.Int("max_retries", cfg.DLQMaxRetries))

	for {
		select {
		case <-ctx.Done():
			logger.Info("dlq manager received shutdown signal")
			<-metricsDone
			return
		case <-ticker.C:
			processed, err := manager.RunOnce(ctx, defaultDLQBatchSize)
			if err != nil {
				logger.Error("dlq manager error", zap.Error(err))
			} else if processed > 0 {
				logger.Info("dlq manager processed entries", zap.Int("count", processed))
			}
		}
	}
}
