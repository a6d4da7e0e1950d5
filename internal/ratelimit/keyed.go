// Package ratelimit limits chat requests per user with token buckets from
// golang.org/x/time/rate.
package ratelimit

import (
	"math"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/qchat-dev/qchat-go/internal/metrics"
)

// DefaultCleanupPeriod is used when KeyedConfig.CleanupPeriod is zero.
const DefaultCleanupPeriod = 5 * time.Minute

// KeyedConfig configures a KeyedLimiter instance.
type KeyedConfig struct {
	// Name labels dropped requests in metrics (e.g. "chat").
	Name string

	// PerMinute is the sustained rate; Burst is the bucket size.
	PerMinute float64
	Burst     int

	// CleanupPeriod controls how often idle keys are forgotten.
	CleanupPeriod time.Duration

	Metrics *metrics.Metrics
}

// KeyedLimiter tracks one token bucket per key (usually a username) and
// forgets keys whose bucket has refilled completely.
type KeyedLimiter struct {
	mu      sync.RWMutex
	entries map[string]*rate.Limiter
	config  KeyedConfig
	limit   rate.Limit
	onDrop  func()
	stopCh  chan struct{}
	once    sync.Once
}

// NewKeyedLimiter creates a per-key limiter and starts its cleanup loop.
// A non-positive PerMinute disables limiting.
//
//	limiter := NewKeyedLimiter(KeyedConfig{Name: "chat", PerMinute: 20, Burst: 5})
//	defer limiter.Stop()
//
//	if !limiter.Allow(username) {
//	    // reply 429
//	}
func NewKeyedLimiter(cfg KeyedConfig) *KeyedLimiter {
	if cfg.CleanupPeriod <= 0 {
		cfg.CleanupPeriod = DefaultCleanupPeriod
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	kl := &KeyedLimiter{
		entries: make(map[string]*rate.Limiter),
		config:  cfg,
		limit:   rate.Limit(cfg.PerMinute / 60),
		stopCh:  make(chan struct{}),
	}
	if cfg.Metrics != nil {
		kl.onDrop = func() {
			cfg.Metrics.RecordRateLimiterDrop(cfg.Name)
		}
	}

	go kl.cleanupLoop()

	return kl
}

// Enabled reports whether the limiter rejects anything at all.
func (kl *KeyedLimiter) Enabled() bool {
	return kl != nil && kl.config.PerMinute > 0
}

// Allow consumes one token for key. Empty keys and a disabled limiter always
// pass.
func (kl *KeyedLimiter) Allow(key string) bool {
	if key == "" || !kl.Enabled() {
		return true
	}
	if kl.limiter(key).Allow() {
		return true
	}
	if kl.onDrop != nil {
		kl.onDrop()
	}
	return false
}

// RetryAfter estimates how long key has to wait for its next token.
func (kl *KeyedLimiter) RetryAfter(key string) time.Duration {
	if !kl.Enabled() {
		return 0
	}
	kl.mu.RLock()
	l, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return 0
	}
	missing := 1 - l.Tokens()
	if missing <= 0 {
		return 0
	}
	secs := math.Ceil(missing / float64(kl.limit))
	return time.Duration(secs) * time.Second
}

// Available returns the tokens left for key, Burst for unseen keys.
func (kl *KeyedLimiter) Available(key string) float64 {
	kl.mu.RLock()
	l, ok := kl.entries[key]
	kl.mu.RUnlock()
	if !ok {
		return float64(kl.config.Burst)
	}
	return l.Tokens()
}

// ActiveCount returns the number of tracked keys.
func (kl *KeyedLimiter) ActiveCount() int {
	kl.mu.RLock()
	defer kl.mu.RUnlock()
	return len(kl.entries)
}

func (kl *KeyedLimiter) limiter(key string) *rate.Limiter {
	kl.mu.RLock()
	l, ok := kl.entries[key]
	kl.mu.RUnlock()
	if ok {
		return l
	}

	kl.mu.Lock()
	defer kl.mu.Unlock()

	// Double-check after acquiring write lock
	if l, ok = kl.entries[key]; ok {
		return l
	}
	l = rate.NewLimiter(kl.limit, kl.config.Burst)
	kl.entries[key] = l
	return l
}

func (kl *KeyedLimiter) cleanupLoop() {
	ticker := time.NewTicker(kl.config.CleanupPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-kl.stopCh:
			return
		case <-ticker.C:
			kl.sweep(time.Now())
		}
	}
}

// sweep drops keys whose bucket is full again.
func (kl *KeyedLimiter) sweep(now time.Time) {
	kl.mu.Lock()
	defer kl.mu.Unlock()
	for key, l := range kl.entries {
		if l.TokensAt(now) >= float64(kl.config.Burst) {
			delete(kl.entries, key)
		}
	}
}

// Stop ends the cleanup goroutine. Safe to call multiple times.
func (kl *KeyedLimiter) Stop() {
	kl.once.Do(func() { close(kl.stopCh) })
}
