package ctxutil

import (
	"context"
	"testing"
)

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	if got := GetRequestID(ctx); got != "" {
		t.Errorf("GetRequestID(empty) = %q, want empty", got)
	}

	ctx = WithRequestID(ctx, "req")
	ctx = WithUserID(ctx, "user")
	ctx = WithConversationID(ctx, "conv")

	if got := GetRequestID(ctx); got != "req" {
		t.Errorf("GetRequestID = %q", got)
	}
	if got := GetUserID(ctx); got != "user" {
		t.Errorf("GetUserID = %q", got)
	}
	if got := GetConversationID(ctx); got != "conv" {
		t.Errorf("GetConversationID = %q", got)
	}
}

func TestPreserveTracingSurvivesCancel(t *testing.T) {
	parent, cancel := context.WithCancel(WithUserID(WithRequestID(context.Background(), "r1"), "u1"))
	detached := PreserveTracing(parent)
	cancel()

	if detached.Err() != nil {
		t.Fatalf("detached context cancelled: %v", detached.Err())
	}
	if GetRequestID(detached) != "r1" || GetUserID(detached) != "u1" {
		t.Errorf("tracing values lost: %q %q", GetRequestID(detached), GetUserID(detached))
	}
	if GetConversationID(detached) != "" {
		t.Errorf("unexpected conversation id %q", GetConversationID(detached))
	}
}
