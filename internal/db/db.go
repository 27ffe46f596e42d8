package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(ctx context.Context, conn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, conn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{Pool: pool}, nil
}

func (s *Store) Close() {
	s.Pool.Close()
}

func (s *Store) Migrate(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS email_templates (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		category TEXT NOT NULL DEFAULT 'other',
		subject TEXT NOT NULL,
		html_body TEXT NOT NULL DEFAULT '',
		text_body TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		total_sent BIGINT NOT NULL DEFAULT 0,
		total_opened BIGINT NOT NULL DEFAULT 0,
		total_clicked BIGINT NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS email_queue (
		id TEXT PRIMARY KEY,
		recipient_id TEXT,
		recipient_email TEXT NOT NULL,
		template_id TEXT REFERENCES email_templates(id),
		subject TEXT NOT NULL,
		html_body TEXT NOT NULL DEFAULT '',
		text_body TEXT NOT NULL DEFAULT '',
		personalization_data JSONB,
		priority INT NOT NULL DEFAULT 0,
		scheduled_for TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		send_attempts INT NOT NULL DEFAULT 0,
		last_attempt_at TIMESTAMPTZ,
		sent_at TIMESTAMPTZ,
		status TEXT NOT NULL DEFAULT 'pending',
		error_message TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS notification_preferences (
		profile_id TEXT PRIMARY KEY,
		email_enabled BOOLEAN NOT NULL DEFAULT TRUE,
		unsubscribe_token TEXT UNIQUE NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS email_events (
		id BIGSERIAL PRIMARY KEY,
		queue_item_id TEXT NOT NULL REFERENCES email_queue(id),
		event_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE INDEX IF NOT EXISTS idx_email_queue_due
		ON email_queue (status, scheduled_for, priority DESC);
	CREATE INDEX IF NOT EXISTS idx_email_events_item
		ON email_events (queue_item_id);
	CREATE INDEX IF NOT EXISTS idx_preferences_token
		ON notification_preferences (unsubscribe_token);
	`

	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}
