package db

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/rajyaabhishek/LawX-sub001/internal/config"
	"github.com/rajyaabhishek/LawX-sub001/internal/logger"
)

// Connect opens the Postgres pool and applies the schema.
func Connect(ctx context.Context, cfg config.PostgresConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	if err := Migrate(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return db, nil
}

// Migrate creates the tables and indexes the service needs. Every statement
// is idempotent.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	logger.Info().Int("statements", len(migrations)).Msg("database migrations applied")
	return nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS conversations (
            id UUID PRIMARY KEY,
            participant_low TEXT NOT NULL,
            participant_high TEXT NOT NULL,
            last_text TEXT NOT NULL DEFAULT '',
            last_image TEXT NOT NULL DEFAULT '',
            last_sender_id TEXT NOT NULL DEFAULT '',
            last_seen BOOLEAN NOT NULL DEFAULT FALSE,
            last_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CONSTRAINT conversations_pair_key UNIQUE (participant_low, participant_high)
        );`,
	`CREATE INDEX IF NOT EXISTS conversations_low_last_at_idx ON conversations (participant_low, last_at DESC);`,
	`CREATE INDEX IF NOT EXISTS conversations_high_last_at_idx ON conversations (participant_high, last_at DESC);`,
	`CREATE TABLE IF NOT EXISTS messages (
            id UUID PRIMARY KEY,
            seq BIGSERIAL NOT NULL,
            conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            text TEXT NOT NULL DEFAULT '',
            image_url TEXT NOT NULL DEFAULT '',
            seen BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
            expires_at TIMESTAMPTZ NOT NULL,
            CONSTRAINT messages_has_content CHECK (text <> '' OR image_url <> '')
        );`,
	`CREATE INDEX IF NOT EXISTS messages_conversation_order_idx ON messages (conversation_id, created_at, seq);`,
	`CREATE INDEX IF NOT EXISTS messages_unseen_idx ON messages (conversation_id, sender_id) WHERE seen = FALSE;`,
	`CREATE INDEX IF NOT EXISTS messages_expires_at_idx ON messages (expires_at);`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY,
            recipient_id TEXT NOT NULL,
            type TEXT NOT NULL,
            message TEXT NOT NULL,
            related_user_id TEXT,
            related_post_id TEXT,
            related_case_id TEXT,
            payload JSONB NOT NULL DEFAULT '{}'::jsonb,
            read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            delivered BOOLEAN NOT NULL DEFAULT FALSE,
            delivered_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT clock_timestamp(),
            CONSTRAINT notifications_type_check CHECK (type IN (
                'like', 'comment', 'connectionAccepted', 'new_case', 'case_application',
                'case_application_accepted', 'case_application_rejected', 'case_status_update'
            ))
        );`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_created_idx ON notifications (recipient_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_unread_idx ON notifications (recipient_id) WHERE read = FALSE;`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_undelivered_idx ON notifications (recipient_id) WHERE delivered = FALSE;`,
}
