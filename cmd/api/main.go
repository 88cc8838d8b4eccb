package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/itsnirmal/cheatcodeapp/internal/api"
	"github.com/itsnirmal/cheatcodeapp/internal/auth"
	"github.com/itsnirmal/cheatcodeapp/internal/changefeed"
	"github.com/itsnirmal/cheatcodeapp/internal/config"
	"github.com/itsnirmal/cheatcodeapp/internal/domain"
	"github.com/itsnirmal/cheatcodeapp/internal/liveview"
	"github.com/itsnirmal/cheatcodeapp/internal/logging"
	"github.com/itsnirmal/cheatcodeapp/internal/outbox"
	"github.com/itsnirmal/cheatcodeapp/internal/persistence/memory"
	persistence "github.com/itsnirmal/cheatcodeapp/internal/persistence/postgres"
	httptransport "github.com/itsnirmal/cheatcodeapp/internal/transport/http"
)

// store is what the API needs from either backend.
type store interface {
	domain.ProfileRepository
	domain.HabitRepository
}

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

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("habits api stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	var (
		repo store
		feed changefeed.Subscriber
	)

	if cfg.UsesPostgres() {
		pool, err := pgxpool.New(ctx, cfg.PostgresURL)
		if err != nil {
			return fmt.Errorf("connect to postgres: %w", err)
		}
		defer pool.Close()

		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("parse redis url: %w", err)
		}
		rdb := redis.NewClient(redisOpts)
		defer rdb.Close()

		producer := outbox.NewKafkaProducer(cfg.KafkaBrokers, outbox.WithBatchTimeout(cfg.KafkaBatchTimeout))
		defer producer.Close()

		registry := outbox.NewSchemaRegistryClient(cfg.SchemaRegistryURL)
		dispatcher := outbox.NewDispatcher(pool, producer, registry, cfg.OutboxPollInterval, cfg.OutboxBatchSize,
			outbox.WithDispatcherLogger(logger.Named("outbox")), outbox.WithClaimTTL(cfg.OutboxClaimTTL))
		go dispatcher.Start(ctx)
		defer dispatcher.Wait()

		repo = persistence.NewRepository(pool)
		feed = changefeed.NewRedisBroker(rdb, logger.Named("changefeed"))
		logger.Info("using postgres store", zap.Strings("kafka_brokers", cfg.KafkaBrokers))
	} else {
		broker := changefeed.NewMemoryBroker()
		repo = memory.NewStore(memory.WithPublisher(broker), memory.WithLogger(logger.Named("store")))
		feed = broker
		logger.Warn("using in-memory store, data is lost on restart")
	}

	service := domain.NewService(repo, repo, domain.WithLogger(logger.Named("domain")))
	projection := liveview.NewProjection(repo, repo, feed,
		liveview.WithCelebrationWindow(cfg.CelebrationWindow),
		liveview.WithLogger(logger.Named("liveview")))

	handler := api.NewHandler(service, projection, logger.Named("api"), cfg.CORSOrigins)
	router := api.NewRouter(handler, api.RouterConfig{
		Auth:        auth.NewMiddleware(auth.Config{Secret: cfg.JWTSecret, Issuer: cfg.JWTIssuer}),
		CORSOrigins: cfg.CORSOrigins,
		Logger:      logger.Named("http"),
	})

	server := httptransport.NewServer(httptransport.DefaultServerConfig(cfg.HTTPAddress), router, logger)
	return server.Run(ctx)
}
