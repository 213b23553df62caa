package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"content_aggregator/internal/commenter"
	"content_aggregator/internal/config"
	"content_aggregator/internal/publisher"
	"content_aggregator/internal/retry"
	"content_aggregator/internal/service"
	"content_aggregator/internal/source/upstream"
	"content_aggregator/internal/storage/postgres"
)

// app holds the wired dependencies shared by every subcommand.
type app struct {
	cfg    *config.Config
	logger *slog.Logger
	db     *sqlx.DB
	broker *publisher.RabbitMQ

	sync    *service.SyncService
	push    *service.PushService
	catalog *service.CatalogService
}

func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*app, error) {
	db, err := connectDB(ctx, cfg.Database, logger)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: logger, db: db}

	// Left nil when disabled so the services skip publishing.
	var pub service.Publisher
	if cfg.RabbitMQ.Enabled {
		broker, err := publisher.NewRabbitMQ(publisher.Config{
			URL:        cfg.RabbitMQ.URL,
			Exchange:   cfg.RabbitMQ.Exchange,
			RoutingKey: cfg.RabbitMQ.RoutingKey,
			QueueName:  cfg.RabbitMQ.QueueName,
		}, logger)
		if err != nil {
			db.Close()
			return nil, fmt.Errorf("connect to rabbitmq: %w", err)
		}
		a.broker = broker
		pub = broker
	}

	authorStore := postgres.NewAuthorStore(db)
	contentStore := postgres.NewContentStore(db)
	tagStore := postgres.NewTagStore(db)
	commentStore := postgres.NewCommentStore(db)
	syncStateStore := postgres.NewSyncStateStore(db)
	queryStore := postgres.NewQueryStore(db)
	txManager := postgres.NewTransactionManager(db)

	source := upstream.New(upstream.Config{
		BaseURL:       cfg.Upstream.BaseURL,
		APIKey:        cfg.Upstream.APIKey,
		Timeout:       cfg.Upstream.Timeout,
		RateLimitWait: cfg.Upstream.RateLimitWait,
		Retry: retry.Policy{
			MaxAttempts: cfg.Upstream.Retry.MaxAttempts,
			MaxElapsed:  cfg.Upstream.Retry.MaxElapsed,
		},
		RequestsPerSecond: cfg.Upstream.RequestsPerSecond,
	}, logger)

	commentClient := commenter.New(commenter.Config{
		GenerateURL: cfg.Commenter.GenerateURL,
		PostURL:     cfg.Commenter.PostURL,
		APIKey:      cfg.Commenter.APIKey,
		Timeout:     cfg.Commenter.Timeout,
		MaxAttempts: cfg.Commenter.MaxAttempts,
		RetryPause:  cfg.Commenter.RetryPause,
		Breaker: commenter.BreakerConfig{
			Enabled:             cfg.Commenter.Breaker.Enabled,
			ConsecutiveFailures: cfg.Commenter.Breaker.ConsecutiveFailures,
			OpenTimeout:         cfg.Commenter.Breaker.OpenTimeout,
		},
	}, logger)

	a.sync = service.NewSyncService(
		source,
		authorStore,
		contentStore,
		syncStateStore,
		txManager,
		pub,
		logger,
		cfg.Sync,
	)

	a.push = service.NewPushService(
		contentStore,
		commentStore,
		commentClient,
		txManager,
		pub,
		logger,
		cfg.Push,
	)

	a.catalog = service.NewCatalogService(
		authorStore,
		contentStore,
		queryStore,
		tagStore,
		txManager,
		pub,
		logger,
	)

	return a, nil
}

func (a *app) Close() {
	if a.broker != nil {
		if err := a.broker.Close(); err != nil {
			a.logger.Warn("failed to close rabbitmq publisher", "error", err)
		}
	}
	if err := a.db.Close(); err != nil {
		a.logger.Warn("failed to close database", "error", err)
	}
}

func connectDB(ctx context.Context, cfg config.DatabaseConfig, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	logger.Info("connected to database", "host", cfg.Host, "dbname", cfg.DBName)

	return db, nil
}
