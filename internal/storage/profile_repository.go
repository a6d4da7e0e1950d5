package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

// GetProfile returns the stored profile document, or ErrNotFound.
func (db *DB) GetProfile(ctx context.Context, username string) (*ProfileRecord, error) {
	query := `SELECT username, doc, version, created_at, updated_at FROM profiles WHERE username = ?`

	var rec ProfileRecord
	var doc string
	var created, updated int64
	err := db.reader.QueryRowContext(ctx, query, username).Scan(&rec.Username, &doc, &rec.Version, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domerrors.ErrNotFound
	}
	if err != nil {
		slog.ErrorContext(ctx, "failed to query profile",
			"username", username,
			"error", err)
		return nil, fmt.Errorf("query profile: %w", err)
	}
	rec.Doc = []byte(doc)
	rec.CreatedAt = time.Unix(created, 0).UTC()
	rec.UpdatedAt = time.Unix(updated, 0).UTC()
	return &rec, nil
}

// InsertProfile stores rec unless a profile with the same username exists.
// It reports whether a row was inserted.
func (db *DB) InsertProfile(ctx context.Context, rec *ProfileRecord) (bool, error) {
	query := `
		INSERT INTO profiles (username, doc, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(username) DO NOTHING
	`
	res, err := db.writer.ExecContext(ctx, query,
		rec.Username, string(rec.Doc), rec.Version, rec.CreatedAt.Unix(), rec.UpdatedAt.Unix())
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert profile: %w", err)
	}
	return n > 0, nil
}

// UpdateProfile reads, mutates and writes one profile inside a transaction.
// mutate receives the stored document and returns the replacement and its
// schema version. It reports false when no profile exists.
func (db *DB) UpdateProfile(ctx context.Context, username string, mutate func(doc []byte) ([]byte, int, error)) (bool, error) {
	start := time.Now()
	found := false
	err := db.WithTx(ctx, func(tx *sql.Tx) error {
		var doc string
		err := tx.QueryRowContext(ctx, `SELECT doc FROM profiles WHERE username = ?`, username).Scan(&doc)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("query profile: %w", err)
		}
		found = true

		next, version, err := mutate([]byte(doc))
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE profiles SET doc = ?, version = ?, updated_at = ? WHERE username = ?`,
			string(next), version, time.Now().Unix(), username)
		if err != nil {
			return fmt.Errorf("update profile: %w", err)
		}
		return nil
	})
	warnSlow(ctx, "UpdateProfile", start, 100*time.Millisecond, "username", username)
	if err != nil {
		return false, err
	}
	return found, nil
}
