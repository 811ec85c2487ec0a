package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"
)

// Connect opens the Postgres pool and applies the schema.
func Connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", zap.Int("statements", len(migrations)))
	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS chat_rooms (
            id UUID PRIMARY KEY,
            name VARCHAR(100),
            room_type VARCHAR(10) NOT NULL CHECK (room_type IN ('direct', 'group')),
            created_by TEXT NOT NULL,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            direct_key TEXT UNIQUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS room_participants (
            room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            user_id TEXT NOT NULL,
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (room_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS room_participants_user_idx ON room_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS chat_messages (
            id UUID PRIMARY KEY,
            room_id UUID NOT NULL REFERENCES chat_rooms(id) ON DELETE CASCADE,
            sender_id TEXT NOT NULL,
            message_type VARCHAR(10) NOT NULL DEFAULT 'text',
            content TEXT NOT NULL DEFAULT '',
            attachment_url TEXT,
            reply_to_id UUID REFERENCES chat_messages(id) ON DELETE SET NULL,
            is_deleted BOOLEAN NOT NULL DEFAULT FALSE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            edited_at TIMESTAMPTZ
        );`,
	`CREATE INDEX IF NOT EXISTS chat_messages_room_created_idx ON chat_messages (room_id, created_at);`,
	`CREATE TABLE IF NOT EXISTS message_reads (
            user_id TEXT NOT NULL,
            message_id UUID NOT NULL REFERENCES chat_messages(id) ON DELETE CASCADE,
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (user_id, message_id)
        );`,
	`CREATE TABLE IF NOT EXISTS presence (
            user_id TEXT PRIMARY KEY,
            is_online BOOLEAN NOT NULL DEFAULT FALSE,
            last_seen TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS notifications (
            id UUID PRIMARY KEY,
            recipient_id TEXT NOT NULL,
            actor_id TEXT,
            notification_type VARCHAR(20) NOT NULL,
            title VARCHAR(255) NOT NULL,
            body TEXT NOT NULL DEFAULT '',
            source_kind VARCHAR(20),
            source_id TEXT,
            is_read BOOLEAN NOT NULL DEFAULT FALSE,
            read_at TIMESTAMPTZ,
            is_sent BOOLEAN NOT NULL DEFAULT FALSE,
            metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (notification_type = 'system' OR actor_id IS NULL OR actor_id <> recipient_id)
        );`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_created_idx ON notifications (recipient_id, created_at DESC);`,
	`CREATE INDEX IF NOT EXISTS notifications_recipient_read_idx ON notifications (recipient_id, is_read);`,
	`CREATE INDEX IF NOT EXISTS notifications_source_idx ON notifications (source_kind, source_id);`,
	`CREATE TABLE IF NOT EXISTS notification_settings (
            user_id TEXT PRIMARY KEY,
            likes_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            comments_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            follows_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            messages_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            mentions_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            post_uploads_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            push_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            email_enabled BOOLEAN NOT NULL DEFAULT FALSE,
            in_app_enabled BOOLEAN NOT NULL DEFAULT TRUE,
            quiet_hours_enabled BOOLEAN NOT NULL DEFAULT FALSE,
            quiet_hours_start TIME,
            quiet_hours_end TIME,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE TABLE IF NOT EXISTS device_tokens (
            id UUID PRIMARY KEY,
            user_id TEXT NOT NULL,
            token VARCHAR(255) NOT NULL UNIQUE,
            platform VARCHAR(20) NOT NULL CHECK (platform IN ('ios', 'android', 'web')),
            device_name VARCHAR(100) NOT NULL DEFAULT '',
            app_version VARCHAR(20) NOT NULL DEFAULT '',
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_used TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
	`CREATE INDEX IF NOT EXISTS device_tokens_user_active_idx ON device_tokens (user_id, is_active);`,
	`CREATE TABLE IF NOT EXISTS notification_batches (
            id UUID PRIMARY KEY,
            title VARCHAR(255) NOT NULL,
            body TEXT NOT NULL,
            notification_type VARCHAR(20) NOT NULL DEFAULT 'system',
            target_user_ids TEXT[] NOT NULL DEFAULT '{}',
            filter JSONB NOT NULL DEFAULT '{}'::jsonb,
            status VARCHAR(20) NOT NULL DEFAULT 'draft',
            total_recipients INT NOT NULL DEFAULT 0,
            sent_count INT NOT NULL DEFAULT 0,
            failed_count INT NOT NULL DEFAULT 0,
            suppressed_count INT NOT NULL DEFAULT 0,
            created_by TEXT NOT NULL,
            scheduled_at TIMESTAMPTZ,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            sent_at TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS users (
            id TEXT PRIMARY KEY,
            username VARCHAR(150) NOT NULL UNIQUE,
            is_active BOOLEAN NOT NULL DEFAULT TRUE,
            is_verified BOOLEAN NOT NULL DEFAULT FALSE,
            date_joined TIMESTAMPTZ NOT NULL DEFAULT NOW()
        );`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for _, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
