package main

import (
	"context"

	"github.com/spf13/cobra"

	"content_aggregator/internal/scheduler"
	"content_aggregator/internal/storage/postgres"
)

func newSyncCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a single upstream sync and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := scheduler.New(opts.logger)
			err = sched.AddJob("sync", opts.cfg.Sync.Schedule, opts.cfg.Sync.Timeout, func(ctx context.Context) error {
				stats, err := a.sync.Sync(ctx)
				if err != nil {
					return err
				}
				opts.logger.Info("sync finished",
					"pages", stats.Pages,
					"new", stats.New,
					"updated", stats.Updated,
					"unchanged", stats.Unchanged,
					"invalid", stats.Invalid,
					"errors", stats.Errors,
				)
				return nil
			})
			if err != nil {
				return err
			}
			return sched.RunNow(ctx, "sync")
		},
	}
}

func newPushCmd(opts *rootOptions) *cobra.Command {
	var loop bool

	cmd := &cobra.Command{
		Use:   "push",
		Short: "Run one comment push cycle, or loop until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, opts.cfg, opts.logger)
			if err != nil {
				return err
			}
			defer a.Close()

			if loop {
				return a.push.Run(ctx)
			}

			sched := scheduler.New(opts.logger)
			err = sched.AddJob("push", opts.cfg.Push.Schedule, opts.cfg.Push.Timeout, func(ctx context.Context) error {
				result, err := a.push.RunOnce(ctx)
				if err != nil {
					return err
				}
				opts.logger.Info("push cycle finished",
					"outcome", result.Outcome,
					"content_id", result.ContentID,
					"comment_id", result.CommentID,
				)
				return nil
			})
			if err != nil {
				return err
			}
			return sched.RunNow(ctx, "push")
		},
	}

	cmd.Flags().BoolVar(&loop, "loop", false, "repeat cycles with the configured delay until interrupted")
	return cmd
}

func newMigrateCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			db, err := connectDB(ctx, opts.cfg.Database, opts.logger)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := postgres.Migrate(ctx, db, opts.logger)
			if err != nil {
				return err
			}
			opts.logger.Info("migrations complete", "applied", applied)
			return nil
		},
	}
}
