// Package metrics defines the Prometheus metrics exported by QChat.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. Record methods are safe on a nil
// receiver so components can run without a registry in tests.
type Metrics struct {
	// Chat metrics
	ChatRequestsTotal   *prometheus.CounterVec
	ChatDurationSeconds *prometheus.HistogramVec
	FAQMatchesTotal     *prometheus.CounterVec

	// Fetch metrics
	FetchTotal           *prometheus.CounterVec
	FetchDurationSeconds prometheus.Histogram
	CacheHitsTotal       *prometheus.CounterVec
	CacheMissesTotal     *prometheus.CounterVec

	// LLM metrics
	LLMTotal           *prometheus.CounterVec
	LLMDurationSeconds *prometheus.HistogramVec
	LLMFallbackTotal   *prometheus.CounterVec

	// Index metrics
	IndexBuildTotal           *prometheus.CounterVec
	IndexChunks               prometheus.Gauge
	IndexRetrieveDuration     prometheus.Histogram
	ProfileExtractionsTotal   *prometheus.CounterVec
	HTTPErrorsTotal           *prometheus.CounterVec
	RateLimiterDropped        *prometheus.CounterVec
	SingleflightDedupTotal    *prometheus.CounterVec
	WarmupTasksTotal          *prometheus.CounterVec
	WarmupDurationSeconds     prometheus.Histogram
	ExtractionQueueDropped    prometheus.Counter
	IndexBuildDurationSeconds prometheus.Histogram
}

// New creates a Metrics instance registered on registry.
func New(registry *prometheus.Registry) *Metrics {
	f := promauto.With(registry)
	return &Metrics{
		ChatRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_chat_requests_total",
				Help: "Total chat replies by answer source",
			},
			[]string{"source"}, // greeting, profile, faq, rag, web, general, error
		),
		ChatDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qchat_chat_duration_seconds",
				Help:    "Chat processing duration in seconds by arbiter strategy",
				Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10, 20, 45, 90},
			},
			[]string{"strategy"},
		),
		FAQMatchesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_faq_matches_total",
				Help: "Total FAQ answers served by category",
			},
			[]string{"category"},
		),

		FetchTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_fetch_total",
				Help: "Total page fetches by result",
			},
			[]string{"result"}, // success, error, rejected, cached
		),
		FetchDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qchat_fetch_duration_seconds",
				Help:    "Page fetch duration in seconds",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16},
			},
		),
		CacheHitsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_cache_hits_total",
				Help: "Total cache hits by cache",
			},
			[]string{"cache"},
		),
		CacheMissesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_cache_misses_total",
				Help: "Total cache misses by cache",
			},
			[]string{"cache"},
		),

		LLMTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_llm_total",
				Help: "Total LLM calls by provider, operation and status",
			},
			[]string{"provider", "operation", "status"}, // operation: complete, complete_json, embed
		),
		LLMDurationSeconds: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qchat_llm_duration_seconds",
				Help:    "LLM call duration in seconds by provider",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 45},
			},
			[]string{"provider"},
		),
		LLMFallbackTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_llm_fallback_total",
				Help: "Total provider fallbacks",
			},
			[]string{"from", "to"},
		),

		IndexBuildTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_index_build_total",
				Help: "Total index builds by status",
			},
			[]string{"status"}, // success, error, empty, locked
		),
		IndexChunks: f.NewGauge(
			prometheus.GaugeOpts{
				Name: "qchat_index_chunks",
				Help: "Chunks in the loaded document index",
			},
		),
		IndexRetrieveDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qchat_index_retrieve_duration_seconds",
				Help:    "Index retrieval duration in seconds, query embedding included",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
		),
		IndexBuildDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qchat_index_build_duration_seconds",
				Help:    "Index build duration in seconds",
				Buckets: []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
			},
		),

		ProfileExtractionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_profile_extractions_total",
				Help: "Total profile extraction runs by result",
			},
			[]string{"result"}, // updated, empty, error
		),
		ExtractionQueueDropped: f.NewCounter(
			prometheus.CounterOpts{
				Name: "qchat_profile_extraction_dropped_total",
				Help: "Extraction jobs dropped because the queue was full",
			},
		),

		HTTPErrorsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_http_errors_total",
				Help: "Total HTTP errors by type and route",
			},
			[]string{"error_type", "route"},
		),
		RateLimiterDropped: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_rate_limiter_dropped_total",
				Help: "Total requests dropped by rate limiter",
			},
			[]string{"limiter_type"}, // chat, embed
		),
		SingleflightDedupTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_singleflight_dedup_total",
				Help: "Total requests that shared an in-flight result",
			},
			[]string{"module"},
		),

		WarmupTasksTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qchat_warmup_tasks_total",
				Help: "Total warmup tasks by task and status",
			},
			[]string{"task", "status"},
		),
		WarmupDurationSeconds: f.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "qchat_warmup_duration_seconds",
				Help:    "Total duration of startup warmup",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120},
			},
		),
	}
}

// RecordChat records a chat reply.
func (m *Metrics) RecordChat(strategy, source string, duration float64) {
	if m == nil {
		return
	}
	m.ChatRequestsTotal.WithLabelValues(source).Inc()
	m.ChatDurationSeconds.WithLabelValues(strategy).Observe(duration)
}

// RecordFAQMatch records an FAQ answer.
func (m *Metrics) RecordFAQMatch(category string) {
	if m == nil {
		return
	}
	m.FAQMatchesTotal.WithLabelValues(category).Inc()
}

// RecordFetch records a page fetch. Cached results carry no duration.
func (m *Metrics) RecordFetch(result string, duration float64) {
	if m == nil {
		return
	}
	m.FetchTotal.WithLabelValues(result).Inc()
	if result != "cached" {
		m.FetchDurationSeconds.Observe(duration)
	}
}

// RecordCacheHit records a cache hit.
func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss records a cache miss.
func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordLLM records one provider call.
func (m *Metrics) RecordLLM(provider, operation, status string, duration float64) {
	if m == nil {
		return
	}
	m.LLMTotal.WithLabelValues(provider, operation, status).Inc()
	m.LLMDurationSeconds.WithLabelValues(provider).Observe(duration)
}

// RecordLLMFallback records a switch from one provider to the next.
func (m *Metrics) RecordLLMFallback(from, to string) {
	if m == nil {
		return
	}
	m.LLMFallbackTotal.WithLabelValues(from, to).Inc()
}

// RecordIndexBuild records a build outcome.
func (m *Metrics) RecordIndexBuild(status string, duration float64) {
	if m == nil {
		return
	}
	m.IndexBuildTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		m.IndexBuildDurationSeconds.Observe(duration)
	}
}

// SetIndexChunks sets the loaded chunk count.
func (m *Metrics) SetIndexChunks(n int) {
	if m == nil {
		return
	}
	m.IndexChunks.Set(float64(n))
}

// RecordRetrieve records an index query.
func (m *Metrics) RecordRetrieve(duration float64) {
	if m == nil {
		return
	}
	m.IndexRetrieveDuration.Observe(duration)
}

// RecordExtraction records a profile extraction result.
func (m *Metrics) RecordExtraction(result string) {
	if m == nil {
		return
	}
	m.ProfileExtractionsTotal.WithLabelValues(result).Inc()
}

// RecordExtractionDropped records an extraction job that was not queued.
func (m *Metrics) RecordExtractionDropped() {
	if m == nil {
		return
	}
	m.ExtractionQueueDropped.Inc()
}

// RecordHTTPError records an HTTP error.
func (m *Metrics) RecordHTTPError(errorType, route string) {
	if m == nil {
		return
	}
	m.HTTPErrorsTotal.WithLabelValues(errorType, route).Inc()
}

// RecordRateLimiterDrop records a request dropped by a rate limiter.
func (m *Metrics) RecordRateLimiterDrop(limiterType string) {
	if m == nil {
		return
	}
	m.RateLimiterDropped.WithLabelValues(limiterType).Inc()
}

// RecordSingleflightDedup records a request that reused an in-flight result.
func (m *Metrics) RecordSingleflightDedup(module string) {
	if m == nil {
		return
	}
	m.SingleflightDedupTotal.WithLabelValues(module).Inc()
}

// RecordWarmupTask records a warmup task completion.
func (m *Metrics) RecordWarmupTask(task, status string) {
	if m == nil {
		return
	}
	m.WarmupTasksTotal.WithLabelValues(task, status).Inc()
}

// RecordWarmupDuration records total warmup duration.
func (m *Metrics) RecordWarmupDuration(duration float64) {
	if m == nil {
		return
	}
	m.WarmupDurationSeconds.Observe(duration)
}
