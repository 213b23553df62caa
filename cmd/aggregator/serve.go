package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"content_aggregator/internal/api"
	"content_aggregator/internal/config"
	"content_aggregator/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

func newServeCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API together with the sync and push workers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), opts)
		},
	}
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	sched := scheduler.New(logger)
	if err := sched.AddJob("sync", cfg.Sync.Schedule, cfg.Sync.Timeout, scheduler.SyncJob(a.sync)); err != nil {
		return err
	}
	if cfg.Sync.RunOnStart {
		if err := sched.RunOnStart("sync"); err != nil {
			return err
		}
	}
	if cfg.Push.Mode == config.PushModeScheduled {
		if err := sched.AddJob("push", cfg.Push.Schedule, cfg.Push.Timeout, scheduler.PushJob(a.push)); err != nil {
			return err
		}
	}

	handler := api.NewHandler(a.catalog, a.db, logger, cfg.HTTP.DefaultPageSize, cfg.HTTP.MaxPageSize)
	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      api.NewRouter(handler, api.RouterConfig{RequestsPerMinute: cfg.HTTP.RequestsPerMinute}),
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	errCh := make(chan error, 3)

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := sched.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("scheduler: %w", err)
		}
	}()

	if cfg.Push.Mode == config.PushModeLoop {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.push.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("push loop: %w", err)
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		logger.Info("http server listening", "addr", cfg.HTTP.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	logger.Info("content aggregator started",
		"sync_schedule", cfg.Sync.Schedule,
		"push_mode", cfg.Push.Mode,
		"max_pages", cfg.Sync.MaxPagesPerSync,
		"publisher", cfg.RabbitMQ.Enabled,
	)

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received shutdown signal")
	case runErr = <-errCh:
		logger.Error("component failed, shutting down", "error", runErr)
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", "error", err)
	}

	wg.Wait()
	logger.Info("content aggregator stopped")

	return runErr
}
