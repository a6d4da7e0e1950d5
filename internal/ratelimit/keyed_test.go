package ratelimit

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/qchat-dev/qchat-go/internal/metrics"
)

func TestKeyedLimiter_Basic(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", PerMinute: 1, Burst: 1, CleanupPeriod: time.Hour})
	defer kl.Stop()

	if !kl.Allow("user1") {
		t.Error("user1 first request failed")
	}
	if kl.Allow("user1") {
		t.Error("user1 second request allowed (should limit)")
	}
	if !kl.Allow("user2") {
		t.Error("user2 first request failed")
	}
	if d := kl.RetryAfter("user1"); d <= 0 || d > time.Minute {
		t.Errorf("RetryAfter = %v, want within a minute", d)
	}
}

func TestKeyedLimiter_EmptyKeyAndDisabled(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "test", PerMinute: 1, Burst: 1})
	defer kl.Stop()
	for range 3 {
		if !kl.Allow("") {
			t.Fatal("empty key must not be limited")
		}
	}

	off := NewKeyedLimiter(KeyedConfig{Name: "off"})
	defer off.Stop()
	if off.Enabled() {
		t.Error("zero rate should disable the limiter")
	}
	for range 10 {
		if !off.Allow("u") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
	if off.RetryAfter("u") != 0 {
		t.Error("disabled limiter should never ask to wait")
	}
}

func TestKeyedLimiter_RecordsDrops(t *testing.T) {
	t.Parallel()
	m := metrics.New(prometheus.NewRegistry())
	kl := NewKeyedLimiter(KeyedConfig{Name: "chat", PerMinute: 1, Burst: 2, Metrics: m})
	defer kl.Stop()

	for range 5 {
		kl.Allow("amy")
	}
	if got := testutil.ToFloat64(m.RateLimiterDropped.WithLabelValues("chat")); got != 3 {
		t.Errorf("dropped = %v, want 3", got)
	}
}

func TestKeyedLimiter_Sweep(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "sweep", PerMinute: 60, Burst: 2, CleanupPeriod: time.Hour})
	defer kl.Stop()

	kl.Allow("u1")
	if n := kl.ActiveCount(); n != 1 {
		t.Fatalf("ActiveCount = %d, want 1", n)
	}

	kl.sweep(time.Now())
	if n := kl.ActiveCount(); n != 1 {
		t.Errorf("ActiveCount = %d, want 1 while the bucket is refilling", n)
	}

	kl.sweep(time.Now().Add(5 * time.Second))
	if n := kl.ActiveCount(); n != 0 {
		t.Errorf("ActiveCount = %d, want 0 after refill", n)
	}
}

func TestKeyedLimiter_Available(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "avail", PerMinute: 1, Burst: 10})
	defer kl.Stop()

	if v := kl.Available("new"); v != 10 {
		t.Errorf("new key available = %f, want 10", v)
	}
	kl.Allow("user1")
	if v := kl.Available("user1"); v >= 10 {
		t.Errorf("used key available = %f, want < 10", v)
	}
}

func TestKeyedLimiter_ThreadSafety(t *testing.T) {
	t.Parallel()
	kl := NewKeyedLimiter(KeyedConfig{Name: "concurrency", PerMinute: 60, Burst: 1000, CleanupPeriod: time.Millisecond})
	defer kl.Stop()

	var wg sync.WaitGroup
	for i := range 100 {
		wg.Go(func() {
			key := fmt.Sprintf("user%d", i%10)
			kl.Allow(key)
			kl.Available(key)
			kl.RetryAfter(key)
		})
	}
	wg.Wait()
	kl.Stop()
}
