package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/noah-isme/sma-progress-api/pkg/config"
)

// JournalSchema creates the tables backing the command journal.
const JournalSchema = `
CREATE TABLE IF NOT EXISTS progress_commands (
    id           UUID PRIMARY KEY,
    kind         TEXT NOT NULL,
    student_id   BIGINT NOT NULL,
    actor_id     TEXT NOT NULL DEFAULT '',
    retry_of     UUID NULL REFERENCES progress_commands(id),
    succeeded    INTEGER NOT NULL DEFAULT 0,
    failed       INTEGER NOT NULL DEFAULT 0,
    created_at   TIMESTAMPTZ NOT NULL,
    completed_at TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS idx_progress_commands_student ON progress_commands (student_id, created_at DESC);
CREATE TABLE IF NOT EXISTS progress_command_operations (
    id         UUID PRIMARY KEY,
    command_id UUID NOT NULL REFERENCES progress_commands(id) ON DELETE CASCADE,
    seq        INTEGER NOT NULL,
    action     TEXT NOT NULL,
    student_id BIGINT NOT NULL,
    subject_id BIGINT NOT NULL DEFAULT 0,
    topic_id   BIGINT NOT NULL DEFAULT 0,
    outcome    TEXT NOT NULL,
    error      TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_progress_command_operations_command ON progress_command_operations (command_id, seq);
`

// NewPostgres returns a configured PostgreSQL client for the command journal.
func NewPostgres(cfg config.DatabaseConfig) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}

	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	return db, nil
}

// EnsureJournalSchema applies JournalSchema idempotently.
func EnsureJournalSchema(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, JournalSchema); err != nil {
		return fmt.Errorf("apply journal schema: %w", err)
	}
	return nil
}
