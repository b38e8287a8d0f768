package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"chat-router/internal/config"
	"chat-router/internal/logging"
)

// Connect opens the database and applies migrations.
func Connect(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id BIGSERIAL PRIMARY KEY,
            sender TEXT NOT NULL CHECK (sender <> ''),
            recipient TEXT NOT NULL DEFAULT '',
            body TEXT NOT NULL DEFAULT '',
            media TEXT NOT NULL DEFAULT '',
            media_type TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT '',
            created_at TIMESTAMPTZ NOT NULL
        );`,
	`CREATE INDEX IF NOT EXISTS chat_messages_sender_idx ON chat_messages (sender, created_at, id);`,
	`CREATE INDEX IF NOT EXISTS chat_messages_recipient_idx ON chat_messages (recipient, created_at, id);`,
}

// Migrate applies the schema. Statements are idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	logger := logging.L()
	logger.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}
