package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// SaveConversation inserts or replaces a conversation. A zero Created keeps
// the stored creation time, or uses now for a new row.
func (db *DB) SaveConversation(ctx context.Context, c *Conversation) error {
	msgs := c.Messages
	if msgs == nil {
		msgs = []Message{}
	}
	raw, err := json.Marshal(msgs)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}

	now := time.Now()
	created := c.Created
	keepCreated := 0
	if created.IsZero() {
		created = now
		keepCreated = 1
	}

	query := `
		INSERT INTO conversations (username, id, title, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(username, id) DO UPDATE SET
			title = excluded.title,
			messages = excluded.messages,
			created_at = CASE WHEN ? = 1 THEN conversations.created_at ELSE excluded.created_at END,
			updated_at = excluded.updated_at
	`
	start := time.Now()
	_, err = db.writer.ExecContext(ctx, query,
		c.Username, c.ID, c.Title, string(raw), created.UnixMilli(), now.UnixMilli(), keepCreated)
	if err != nil {
		slog.ErrorContext(ctx, "failed to save conversation",
			"conversation_id", c.ID,
			"error", err)
		return fmt.Errorf("save conversation: %w", err)
	}
	warnSlow(ctx, "SaveConversation", start, 100*time.Millisecond, "messages", len(msgs))
	return nil
}

// ListConversations returns a user's conversations, newest first.
func (db *DB) ListConversations(ctx context.Context, username string, limit int) ([]Conversation, error) {
	query := `
		SELECT id, title, messages, created_at, updated_at
		FROM conversations
		WHERE username = ?
		ORDER BY created_at DESC, updated_at DESC
		LIMIT ?
	`
	rows, err := db.reader.QueryContext(ctx, query, username, limit)
	if err != nil {
		return nil, fmt.Errorf("query conversations: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := make([]Conversation, 0, limit)
	for rows.Next() {
		var c Conversation
		var raw string
		var created, updated int64
		if err := rows.Scan(&c.ID, &c.Title, &raw, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
			slog.WarnContext(ctx, "skipping conversation with corrupt messages",
				"conversation_id", c.ID,
				"error", err)
			continue
		}
		c.Username = username
		c.Created = time.UnixMilli(created).UTC()
		c.Updated = time.UnixMilli(updated).UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate conversations: %w", err)
	}
	return out, nil
}

// LatestConversation returns the most recently updated conversation, or nil.
func (db *DB) LatestConversation(ctx context.Context, username string) (*Conversation, error) {
	query := `
		SELECT id, title, messages, created_at, updated_at
		FROM conversations
		WHERE username = ?
		ORDER BY updated_at DESC
		LIMIT 1
	`
	var c Conversation
	var raw string
	var created, updated int64
	err := db.reader.QueryRowContext(ctx, query, username).Scan(&c.ID, &c.Title, &raw, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query latest conversation: %w", err)
	}
	if err := json.Unmarshal([]byte(raw), &c.Messages); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	c.Username = username
	c.Created = time.UnixMilli(created).UTC()
	c.Updated = time.UnixMilli(updated).UTC()
	return &c, nil
}

// DeleteConversation removes one conversation. It reports whether a row
// was deleted.
func (db *DB) DeleteConversation(ctx context.Context, username, id string) (bool, error) {
	res, err := db.writer.ExecContext(ctx, `DELETE FROM conversations WHERE username = ? AND id = ?`, username, id)
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete conversation: %w", err)
	}
	return n > 0, nil
}

// InsertChatLog appends one chat log row.
func (db *DB) InsertChatLog(ctx context.Context, l *ChatLog) error {
	ts := l.TS
	if ts.IsZero() {
		ts = time.Now()
	}
	query := `
		INSERT INTO chat_logs (user_id, message, reply, source, faq_category, faq_score, ts)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.writer.ExecContext(ctx, query,
		l.UserID, l.Message, l.Reply, l.Source, l.FAQCategory, l.FAQScore, ts.UnixMilli())
	if err != nil {
		return fmt.Errorf("insert chat log: %w", err)
	}
	return nil
}

// CountChatLogs returns the number of chat log rows.
func (db *DB) CountChatLogs(ctx context.Context) (int, error) {
	var n int
	if err := db.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM chat_logs`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count chat logs: %w", err)
	}
	return n, nil
}
