package profile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

// SQLiteStore keeps one JSON profile document per user in SQLite.
type SQLiteStore struct {
	db  *storage.DB
	log *logger.Logger
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore creates a store on db.
func NewSQLiteStore(db *storage.DB, log *logger.Logger) *SQLiteStore {
	if log == nil {
		log = logger.Discard()
	}
	return &SQLiteStore{db: db, log: log.WithModule("profile")}
}

// Get implements Store.
func (s *SQLiteStore) Get(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, domerrors.ErrNotFound
	}
	rec, err := s.db.GetProfile(ctx, username)
	if errors.Is(err, domerrors.ErrNotFound) {
		return nil, err
	}
	if err != nil {
		return nil, unavailable("get", err)
	}
	p, err := Decode(rec.Doc)
	if err != nil {
		return nil, err
	}
	p.Username = rec.Username
	return p, nil
}

// Create implements Store.
func (s *SQLiteStore) Create(ctx context.Context, username string) (*Profile, error) {
	if username == "" {
		return nil, domerrors.NewValidationError("username", "required")
	}
	p := New(username, time.Now())
	doc, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode profile: %w", err)
	}
	inserted, err := s.db.InsertProfile(ctx, &storage.ProfileRecord{
		Username:  username,
		Doc:       doc,
		Version:   SchemaVersion,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	})
	if err != nil {
		return nil, unavailable("create", err)
	}
	if !inserted {
		return nil, ErrExists
	}
	s.log.InfoContext(ctx, "Created profile", "username", username)
	return p, nil
}

// Update implements Store.
func (s *SQLiteStore) Update(ctx context.Context, username string, updates map[string]any) bool {
	if username == "" {
		return false
	}
	if err := ValidateUpdates(updates); err != nil {
		s.log.WithError(err).WarnContext(ctx, "Rejected profile update", "username", username)
		return false
	}
	return s.mutate(ctx, "update", username, func(p *Profile) error {
		return ApplyUpdates(p, updates)
	})
}

// AppendToArray implements Store.
func (s *SQLiteStore) AppendToArray(ctx context.Context, username, path string, value any) bool {
	if username == "" {
		return false
	}
	if _, err := NormalizeArrayValue(path, value); err != nil {
		s.log.WithError(err).WarnContext(ctx, "Rejected profile append", "username", username, "path", path)
		return false
	}
	return s.mutate(ctx, "append", username, func(p *Profile) error {
		_, err := AppendValue(p, path, value)
		return err
	})
}

// Ping implements Store.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

func (s *SQLiteStore) mutate(ctx context.Context, op, username string, fn func(p *Profile) error) bool {
	found, err := s.db.UpdateProfile(ctx, username, func(doc []byte) ([]byte, int, error) {
		p, err := Decode(doc)
		if err != nil {
			return nil, 0, err
		}
		p.Username = username
		if err := fn(p); err != nil {
			return nil, 0, err
		}
		p.UpdatedAt = time.Now().UTC()
		next, err := json.Marshal(p)
		if err != nil {
			return nil, 0, fmt.Errorf("encode profile: %w", err)
		}
		return next, SchemaVersion, nil
	})
	if err != nil {
		s.log.WithError(err).ErrorContext(ctx, "Profile write failed", "operation", op, "username", username)
		return false
	}
	if !found {
		s.log.DebugContext(ctx, "No profile to update", "operation", op, "username", username)
	}
	return found
}
