package postgres

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"content_aggregator/migrations"
)

// Migrate applies every embedded migration that is not yet recorded in
// schema_migrations. Each migration runs in its own transaction.
func Migrate(ctx context.Context, db *sqlx.DB, logger *slog.Logger) (int, error) {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			name        VARCHAR(255) PRIMARY KEY,
			applied_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`)
	if err != nil {
		return 0, fmt.Errorf("create schema_migrations: %w", err)
	}

	all, err := migrations.Up()
	if err != nil {
		return 0, fmt.Errorf("load migrations: %w", err)
	}

	var applied []string
	if err := db.SelectContext(ctx, &applied, "SELECT name FROM schema_migrations"); err != nil {
		return 0, fmt.Errorf("select applied migrations: %w", err)
	}
	done := make(map[string]struct{}, len(applied))
	for _, name := range applied {
		done[name] = struct{}{}
	}

	tm := NewTransactionManager(db)
	count := 0
	for _, m := range all {
		if _, ok := done[m.Name]; ok {
			continue
		}

		err := tm.WithTransaction(ctx, func(ctx context.Context) error {
			exec := GetExecutor(ctx, db)
			if _, err := exec.ExecContext(ctx, m.SQL); err != nil {
				return err
			}
			_, err := exec.ExecContext(ctx, "INSERT INTO schema_migrations (name) VALUES ($1)", m.Name)
			return err
		})
		if err != nil {
			return count, fmt.Errorf("apply migration %s: %w", m.Name, err)
		}

		logger.Info("migration applied", "name", m.Name)
		count++
	}

	return count, nil
}
