package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	"github.com/itsnirmal/cheatcodeapp/internal/config"
	"github.com/itsnirmal/cheatcodeapp/internal/consumer"
	"github.com/itsnirmal/cheatcodeapp/internal/logging"
	httptransport "github.com/itsnirmal/cheatcodeapp/internal/transport/http"
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

	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal("invalid redis url", zap.Error(err))
	}
	rdb := redis.NewClient(redisOpts)
	defer rdb.Close()

	broker := changefeed.NewRedisBroker(rdb, logger.Named("changefeed"))
	handler := consumer.Chain(
		consumer.NewAuditHandler(pool),
		consumer.NewFanoutHandler(broker, logger.Named("fanout")),
	)

	var wg sync.WaitGroup
	if cfg.MetricsAddress != "" {
		metricsSrv := httptransport.NewMetricsServer(cfg.MetricsAddress, logger.Named("metrics"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := metricsSrv.Run(ctx); err != nil {
				logger.Error("metrics server error", zap.Error(err))
			}
		}()
	}

	for _, topic := range cfg.ConsumerTopics {
		reader := kafka.NewReader(kafka.ReaderConfig{
			Brokers:         cfg.KafkaBrokers,
			GroupID:         cfg.ConsumerGroupID,
			Topic:           topic,
			MinBytes:        1,
			MaxBytes:        10e6,
			MaxWait:         250 * time.Millisecond,
			CommitInterval:  time.Second,
			RetentionTime:   24 * time.Hour,
			ReadLagInterval: -1,
		})

		proc := consumer.NewProcessor(reader, handler, consumer.WithLogger(logger.With(zap.String("topic", topic))))

		wg.Add(1)
		go func(topic string, r *kafka.Reader) {
			defer wg.Done()
			defer r.Close()

			logger.Info("consumer started", zap.String("topic", topic), zap.String("group", cfg.ConsumerGroupID))
			if err := proc.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("consumer stopped with error", zap.String("topic", topic), zap.Error(err))
			}
		}(topic, reader)
	}

	<-ctx.Done()
	logger.Info("consumer shutdown requested")
	wg.Wait()
}
