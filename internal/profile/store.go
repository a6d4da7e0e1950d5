package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

// ErrExists is returned by Create when the username already has a profile.
var ErrExists = errors.New("profile already exists")

// Store persists profiles. Update and AppendToArray report false instead of
// failing when the store is unavailable or the profile is missing, so
// callers on the chat path can ignore them safely.
type Store interface {
	// Get returns the profile or domerrors.ErrNotFound.
	Get(ctx context.Context, username string) (*Profile, error)
	// Create stores an empty profile or returns ErrExists.
	Create(ctx context.Context, username string) (*Profile, error)
	// Update sets dot-path fields.
	Update(ctx context.Context, username string, updates map[string]any) bool
	// AppendToArray adds value to an array field with set semantics.
	AppendToArray(ctx context.Context, username, path string, value any) bool
	// Ping checks the store is reachable.
	Ping(ctx context.Context) error
}

// EnsureExists returns the user's profile, creating it when missing. A
// concurrent creation is tolerated.
func EnsureExists(ctx context.Context, s Store, username string) (*Profile, error) {
	if username == "" {
		return nil, domerrors.NewValidationError("username", "required")
	}
	p, err := s.Get(ctx, username)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, domerrors.ErrNotFound) {
		return nil, err
	}

	p, err = s.Create(ctx, username)
	if errors.Is(err, ErrExists) {
		return s.Get(ctx, username)
	}
	return p, err
}

// AddNote appends a timestamped note.
func AddNote(ctx context.Context, s Store, username, text string) bool {
	if username == "" || text == "" {
		return false
	}
	return s.AppendToArray(ctx, username, PathNotes, Note{Text: text, Timestamp: time.Now().UTC()})
}

func unavailable(op string, err error) error {
	return fmt.Errorf("profile %s: %w: %w", op, domerrors.ErrStoreUnavailable, err)
}
