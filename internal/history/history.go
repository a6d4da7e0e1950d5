// Package history stores saved conversations and the chat log.
package history

import (
	"context"
	"strings"
	"time"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

// Limits on stored conversations.
const (
	DefaultListLimit = 50
	MaxMessages      = 500
	MaxTitleRunes    = 200
)

// User-facing messages returned through domerrors.UserMessage.
const (
	MsgUsernameRequired   = "Username required"
	MsgInvalidData        = "Invalid conversation data"
	MsgIDRequired         = "Conversation ID required"
	MsgHistoryUnavailable = "Server error"
)

// Service reads and writes conversation history.
type Service struct {
	db         *storage.DB
	logEnabled bool
	log        *logger.Logger
}

// New creates a Service. Chat logging is skipped unless chatLogEnabled.
func New(db *storage.DB, chatLogEnabled bool, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Discard()
	}
	return &Service{db: db, logEnabled: chatLogEnabled, log: log.WithModule("history")}
}

// Save upserts a conversation for username. A zero Created keeps the stored
// creation time.
func (s *Service) Save(ctx context.Context, username string, c storage.Conversation) error {
	w := domerrors.NewWrapper("history", "save")
	if username == "" {
		return w.Wrap(domerrors.NewValidationError("username", "required"), MsgUsernameRequired)
	}
	c.ID = strings.TrimSpace(c.ID)
	if c.ID == "" {
		return w.Wrap(domerrors.NewValidationError("conversation.id", "required"), MsgInvalidData)
	}
	if len(c.Messages) > MaxMessages {
		c.Messages = c.Messages[len(c.Messages)-MaxMessages:]
	}
	c.Title = truncateRunes(strings.TrimSpace(c.Title), MaxTitleRunes)
	c.Username = username

	if err := s.db.SaveConversation(ctx, &c); err != nil {
		return w.Wrap(err, MsgHistoryUnavailable)
	}
	s.log.DebugContext(ctx, "Saved conversation", "username", username, "conversation_id", c.ID, "messages", len(c.Messages))
	return nil
}

// List returns up to limit conversations, newest first. A limit outside
// (0, DefaultListLimit] means DefaultListLimit.
func (s *Service) List(ctx context.Context, username string, limit int) ([]storage.Conversation, error) {
	w := domerrors.NewWrapper("history", "list")
	if username == "" {
		return nil, w.Wrap(domerrors.NewValidationError("username", "required"), MsgUsernameRequired)
	}
	if limit <= 0 || limit > DefaultListLimit {
		limit = DefaultListLimit
	}
	convs, err := s.db.ListConversations(ctx, username, limit)
	if err != nil {
		return nil, w.Wrap(err, MsgHistoryUnavailable)
	}
	return convs, nil
}

// Delete removes one conversation. Deleting a missing conversation is not an
// error; deleted reports whether a row went away.
func (s *Service) Delete(ctx context.Context, username, id string) (deleted bool, err error) {
	w := domerrors.NewWrapper("history", "delete")
	if username == "" {
		return false, w.Wrap(domerrors.NewValidationError("username", "required"), MsgUsernameRequired)
	}
	if strings.TrimSpace(id) == "" {
		return false, w.Wrap(domerrors.NewValidationError("conversationId", "required"), MsgIDRequired)
	}
	deleted, err = s.db.DeleteConversation(ctx, username, strings.TrimSpace(id))
	if err != nil {
		return false, w.Wrap(err, MsgHistoryUnavailable)
	}
	return deleted, nil
}

// Recent returns the last n messages of the user's most recently updated
// conversation. Lookup failures yield nil.
func (s *Service) Recent(ctx context.Context, username string, n int) []storage.Message {
	if username == "" || n <= 0 {
		return nil
	}
	c, err := s.db.LatestConversation(ctx, username)
	if err != nil {
		s.log.WithError(err).WarnContext(ctx, "Failed to load recent messages", "username", username)
		return nil
	}
	if c == nil {
		return nil
	}
	msgs := c.Messages
	if len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	return msgs
}

// LogEnabled reports whether LogChat writes anything.
func (s *Service) LogEnabled() bool {
	return s != nil && s.logEnabled
}

// LogChat records one answered request. Failures are logged, not returned.
func (s *Service) LogChat(ctx context.Context, entry storage.ChatLog) {
	if !s.LogEnabled() {
		return
	}
	if entry.TS.IsZero() {
		entry.TS = time.Now()
	}
	if err := s.db.InsertChatLog(ctx, &entry); err != nil {
		s.log.WithError(err).WarnContext(ctx, "Failed to write chat log", "source", entry.Source)
	}
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
