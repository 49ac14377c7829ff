package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// Connect initializes the database connection and runs migrations.
func Connect(ctx context.Context, dsn string, logger *slog.Logger) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations applied", "count", len(migrations))

	return db, nil
}

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS users (
            id SERIAL PRIMARY KEY,
            username TEXT NOT NULL UNIQUE,
            password_hash TEXT NOT NULL,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            last_seen_at TIMESTAMPTZ
        );`,
	`CREATE TABLE IF NOT EXISTS conversations (
            id SERIAL PRIMARY KEY,
            is_group BOOLEAN NOT NULL DEFAULT FALSE,
            name TEXT,
            creator_id INT NOT NULL REFERENCES users(id),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            CHECK (is_group = (name IS NOT NULL))
        );`,
	`CREATE TABLE IF NOT EXISTS conversation_participants (
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (conversation_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS conversation_participants_user_idx ON conversation_participants (user_id);`,
	`CREATE TABLE IF NOT EXISTS direct_pairs (
            user_low INT NOT NULL REFERENCES users(id),
            user_high INT NOT NULL REFERENCES users(id),
            conversation_id INT NOT NULL UNIQUE REFERENCES conversations(id) ON DELETE CASCADE,
            PRIMARY KEY (user_low, user_high),
            CHECK (user_low < user_high)
        );`,
	`CREATE TABLE IF NOT EXISTS messages (
            id SERIAL PRIMARY KEY,
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            sender_id INT NOT NULL REFERENCES users(id),
            kind TEXT NOT NULL CHECK (kind IN ('TEXT', 'IMAGE', 'FILE')),
            content TEXT,
            file_url TEXT,
            file_name TEXT,
            file_size BIGINT,
            mime_type TEXT,
            group_id TEXT,
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            deleted_at TIMESTAMPTZ,
            CHECK (kind <> 'TEXT' OR content IS NOT NULL),
            CHECK (kind = 'TEXT' OR file_url IS NOT NULL)
        );`,
	`CREATE INDEX IF NOT EXISTS messages_page_idx ON messages (conversation_id, created_at DESC, id DESC);`,
	`CREATE TABLE IF NOT EXISTS conversation_hides (
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            hidden_at TIMESTAMPTZ NOT NULL,
            visible_from TIMESTAMPTZ,
            PRIMARY KEY (conversation_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS message_hides (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            hidden_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        );`,
	`CREATE TABLE IF NOT EXISTS message_reads (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            read_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id)
        );`,
	`CREATE INDEX IF NOT EXISTS message_reads_user_idx ON message_reads (user_id, message_id);`,
	`CREATE TABLE IF NOT EXISTS message_reactions (
            message_id INT NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            emoji TEXT NOT NULL CHECK (emoji <> ''),
            created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
            PRIMARY KEY (message_id, user_id, emoji)
        );`,
	`CREATE TABLE IF NOT EXISTS typing_status (
            conversation_id INT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
            user_id INT NOT NULL REFERENCES users(id),
            expires_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (conversation_id, user_id)
        );`,
}

func runMigrations(ctx context.Context, db *sqlx.DB) error {
	for i, m := range migrations {
		if _, err := db.ExecContext(ctx, m); err != nil {
			return fmt.Errorf("migration %d: %w", i, err)
		}
	}
	return nil
}
