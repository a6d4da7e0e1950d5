// Package ctxutil stores request-scoped values in a context.Context using
// private key types.
package ctxutil

import "context"

type contextKey string

const (
	requestIDKey      contextKey = "ctxutil.requestID"
	userIDKey         contextKey = "ctxutil.userID"
	conversationIDKey contextKey = "ctxutil.conversationID"
)

// WithRequestID stores the request ID used for log correlation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// GetRequestID returns the request ID or "".
func GetRequestID(ctx context.Context) string {
	return getString(ctx, requestIDKey)
}

// WithUserID stores the chat user (username, or "anonymous").
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDKey, userID)
}

// GetUserID returns the user ID or "".
func GetUserID(ctx context.Context) string {
	return getString(ctx, userIDKey)
}

// WithConversationID stores the client conversation ID.
func WithConversationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, conversationIDKey, id)
}

// GetConversationID returns the conversation ID or "".
func GetConversationID(ctx context.Context) string {
	return getString(ctx, conversationIDKey)
}

// PreserveTracing returns a fresh background context carrying the tracing
// values of ctx. Background work that must outlive the request (profile
// extraction) uses it so logs stay correlated after the request is cancelled.
func PreserveTracing(ctx context.Context) context.Context {
	out := context.Background()
	if v := GetRequestID(ctx); v != "" {
		out = WithRequestID(out, v)
	}
	if v := GetUserID(ctx); v != "" {
		out = WithUserID(out, v)
	}
	if v := GetConversationID(ctx); v != "" {
		out = WithConversationID(out, v)
	}
	return out
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}
