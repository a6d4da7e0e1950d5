package storage

import (
	"context"
	"database/sql"
	"fmt"
)

// InitSchema creates all tables and indexes.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if err := createProfilesTable(ctx, db); err != nil {
		return err
	}
	if err := createConversationsTable(ctx, db); err != nil {
		return err
	}
	return createChatLogsTable(ctx, db)
}

func createProfilesTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS profiles (
		username TEXT PRIMARY KEY,
		doc TEXT NOT NULL,
		version INTEGER NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create profiles table: %w", err)
	}
	return nil
}

func createConversationsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS conversations (
		username TEXT NOT NULL,
		id TEXT NOT NULL,
		title TEXT NOT NULL DEFAULT '',
		messages TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (username, id)
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user_updated ON conversations(username, updated_at DESC);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create conversations table: %w", err)
	}
	return nil
}

func createChatLogsTable(ctx context.Context, db *sql.DB) error {
	query := `
	CREATE TABLE IF NOT EXISTS chat_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		message TEXT NOT NULL,
		reply TEXT NOT NULL,
		source TEXT NOT NULL,
		faq_category TEXT NOT NULL DEFAULT '',
		faq_score INTEGER NOT NULL DEFAULT 0,
		ts INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chat_logs_ts ON chat_logs(ts);
	CREATE INDEX IF NOT EXISTS idx_chat_logs_user ON chat_logs(user_id);
	`
	if _, err := db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create chat_logs table: %w", err)
	}
	return nil
}
