package config

import "time"

// HTTP server timeouts.
const (
	// HTTPRead bounds reading a chat request body.
	HTTPRead = 10 * time.Second

	// HTTPWrite must exceed ChatProcessing so a slow answer can still be written.
	HTTPWrite = 95 * time.Second

	// HTTPIdle is the keep-alive idle timeout.
	HTTPIdle = 120 * time.Second

	// ChatProcessing bounds a whole arbiter run. The LLM call has its own
	// shorter deadline; this one also covers retrieval and fetching.
	ChatProcessing = 90 * time.Second

	// ReadinessCheck bounds the store pings behind /readyz and /api/health.
	ReadinessCheck = 3 * time.Second

	// HistoryRequest bounds a profile or history endpoint call.
	HistoryRequest = 10 * time.Second
)

// Fetch timeouts.
const (
	// FetchRequest is the per-page timeout for web fetches.
	FetchRequest = 8 * time.Second

	// FetchRetryInitial is the first backoff delay; it doubles per retry.
	FetchRetryInitial = 500 * time.Millisecond

	// FetchCacheTTL is how long fetched page text stays in the page cache.
	FetchCacheTTL = 30 * time.Minute
)

// LLM timeouts.
const (
	// LLMCompletion is the deadline for a single completion call across the
	// whole provider fallback chain.
	LLMCompletion = 45 * time.Second

	// LLMBreakerCooldown is how long an open provider breaker rejects calls.
	LLMBreakerCooldown = 60 * time.Second

	// ProfileExtraction bounds one background extraction including store writes.
	ProfileExtraction = 60 * time.Second
)

// Index timeouts.
const (
	// IndexBuild bounds a full rebuild: fetching every URL and embedding
	// every chunk.
	IndexBuild = 2 * time.Hour

	// IndexBatchPause is the pause between fetch batches during a build.
	IndexBatchPause = 200 * time.Millisecond

	// IndexWarmup bounds the startup load of the persisted index.
	IndexWarmup = 2 * time.Minute

	// R2LockTTL is the lease length for the distributed build lock.
	R2LockTTL = 3 * time.Hour

	// SnapshotPoll is how often a server looks for a snapshot built elsewhere.
	SnapshotPoll = 15 * time.Minute
)

// Database timeouts.
const (
	// DatabaseBusyTimeout is the SQLite busy_timeout pragma.
	DatabaseBusyTimeout = 10 * time.Second

	// DatabaseConnMaxLifetime recycles pooled connections.
	DatabaseConnMaxLifetime = time.Hour

	// MongoConnect bounds Mongo server selection and connect.
	MongoConnect = 3 * time.Second
)
