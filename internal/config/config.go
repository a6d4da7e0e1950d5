// Package config loads QChat settings from the environment (and an optional
// .env file) and validates them.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"runtime"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// ValidationMode selects which settings are mandatory.
type ValidationMode int

const (
	// ServerMode validates everything the HTTP service needs.
	ServerMode ValidationMode = iota
	// BuildMode validates only what an index build needs.
	BuildMode
)

// Arbiter strategies.
const (
	StrategyTiered  = "tiered"
	StrategyUnified = "unified"
)

// RAG context sources.
const (
	RAGModeIndex = "index"
	RAGModeWeb   = "web"
)

// Profile store backends.
const (
	ProfileBackendSQLite = "sqlite"
	ProfileBackendMongo  = "mongo"
)

// KnownProviders lists the completion providers the genai package can build.
var KnownProviders = []string{"gemini", "groq", "cerebras", "openai", "ollama"}

// Config holds all application configuration.
type Config struct {
	Port            string
	LogLevel        string
	ShutdownTimeout time.Duration
	DataDir         string
	SQLitePath      string

	MetricsUsername string
	MetricsPassword string

	ChatRatePerMinute float64
	ChatBurst         int
	ChatLogEnabled    bool

	Profile    ProfileConfig
	LLM        LLMConfig
	Embedding  EmbeddingConfig
	Index      IndexConfig
	Fetch      FetchConfig
	Arbiter    ArbiterConfig
	Extraction ExtractionConfig
	R2         R2Config
	Observe    ObservabilityConfig
}

// ProfileConfig selects and configures the profile store.
type ProfileConfig struct {
	Backend       string
	MongoURI      string
	MongoDatabase string
}

// LLMConfig configures the completion provider chain.
type LLMConfig struct {
	Providers       []string // tried in order
	Timeout         time.Duration
	MaxOutputTokens int

	GeminiAPIKey   string
	GeminiModel    string
	GroqAPIKey     string
	GroqModel      string
	CerebrasAPIKey string
	CerebrasModel  string
	OpenAIAPIKey   string
	OpenAIModel    string
	OllamaURL      string
	OllamaModel    string

	BreakerFailures int
	BreakerCooldown time.Duration
}

// EmbeddingConfig configures the embedding service.
type EmbeddingConfig struct {
	Model             string
	Dimensions        int
	RequestsPerMinute int
}

// IndexConfig configures document index build and retrieval.
type IndexConfig struct {
	Dir              string
	URLListPath      string // empty means the built-in list
	ChunkSize        int
	ChunkOverlap     int
	BatchSize        int
	BatchPause       time.Duration
	PageLimit        int
	RetrieveK        int
	MinSimilarity    float64
	HybridBM25Weight float64
	RebuildAt        string // daily HH:MM, empty disables the schedule
	MaxURLs          int    // 0 means all
	EmbedConcurrency int
}

// FetchConfig configures the web fetcher.
type FetchConfig struct {
	Workers       int
	Timeout       time.Duration
	MaxRetries    int
	UserAgent     string
	RotateUA      bool
	RatePerSecond float64
	CacheTTL      time.Duration
	RedisURL      string
}

// ArbiterConfig configures answer selection.
type ArbiterConfig struct {
	Strategy         string
	FAQFirst         bool
	RAGMode          string
	URLTopK          int
	WebPageLimit     int
	UnifiedPageLimit int
	ContextBudget    int
}

// ExtractionConfig configures background profile extraction.
type ExtractionConfig struct {
	Enabled bool
	Workers int
	Timeout time.Duration
}

// R2Config configures index snapshots and the build lock on Cloudflare R2.
type R2Config struct {
	Enabled         bool
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	SnapshotKey     string
	LockKey         string
	LockTTL         time.Duration
}

// ObservabilityConfig configures remote logging, error reporting and tracing.
type ObservabilityConfig struct {
	BetterstackToken   string
	SentryDSN          string
	SentryEnvironment  string
	SentrySampleRate   float64
	SentryTracesRate   float64
	OTLPEndpoint       string
	OTLPInsecure       bool
	TracingSampleRatio float64
}

// Load reads configuration for the given mode. A missing .env file is ignored.
func Load(mode ValidationMode) (*Config, error) {
	_ = godotenv.Load()

	dataDir := getEnv(EnvDataDir, defaultDataDir())
	cfg := &Config{
		Port:            getEnv(EnvPort, "8080"),
		LogLevel:        getEnv(EnvLogLevel, "info"),
		ShutdownTimeout: getDurationEnv(EnvShutdownTimeout, 30*time.Second),
		DataDir:         dataDir,
		SQLitePath:      getEnv(EnvSQLitePath, filepath.Join(dataDir, "qchat.db")),

		MetricsUsername: getEnv(EnvMetricsUsername, "prometheus"),
		MetricsPassword: getEnv(EnvMetricsPassword, ""),

		ChatRatePerMinute: getFloatEnv(EnvChatRatePerMin, 20),
		ChatBurst:         getIntEnv(EnvChatBurst, 5),
		ChatLogEnabled:    getBoolEnv(EnvChatLogEnabled, true),

		Profile: ProfileConfig{
			Backend:       strings.ToLower(getEnv(EnvProfileBackend, ProfileBackendSQLite)),
			MongoURI:      getEnv(EnvMongoURI, ""),
			MongoDatabase: getEnv(EnvMongoDatabase, "qchat"),
		},

		LLM: LLMConfig{
			Providers:       getListEnv(EnvLLMProviders, []string{"gemini", "groq"}),
			Timeout:         getDurationEnv(EnvLLMTimeout, LLMCompletion),
			MaxOutputTokens: getIntEnv(EnvLLMMaxOutputTokens, 512),
			GeminiAPIKey:    getEnv(EnvGeminiAPIKey, ""),
			GeminiModel:     getEnv(EnvGeminiModel, "gemini-2.5-flash"),
			GroqAPIKey:      getEnv(EnvGroqAPIKey, ""),
			GroqModel:       getEnv(EnvGroqModel, "llama-3.3-70b-versatile"),
			CerebrasAPIKey:  getEnv(EnvCerebrasAPIKey, ""),
			CerebrasModel:   getEnv(EnvCerebrasModel, "llama-3.3-70b"),
			OpenAIAPIKey:    getEnv(EnvOpenAIAPIKey, ""),
			OpenAIModel:     getEnv(EnvOpenAIModel, "gpt-4o-mini"),
			OllamaURL:       getEnv(EnvOllamaURL, "http://127.0.0.1:11434"),
			OllamaModel:     getEnv(EnvOllamaModel, "mistral:latest"),
			BreakerFailures: getIntEnv(EnvBreakerFailures, 5),
			BreakerCooldown: getDurationEnv(EnvBreakerCooldown, LLMBreakerCooldown),
		},

		Embedding: EmbeddingConfig{
			Model:             getEnv(EnvEmbeddingModel, "gemini-embedding-001"),
			Dimensions:        getIntEnv(EnvEmbeddingDimensions, 768),
			RequestsPerMinute: getIntEnv(EnvEmbeddingRPM, 1500),
		},

		Index: IndexConfig{
			Dir:              getEnv(EnvIndexDir, filepath.Join(dataDir, "index")),
			URLListPath:      getEnv(EnvURLListPath, ""),
			ChunkSize:        getIntEnv(EnvChunkSize, 1000),
			ChunkOverlap:     getIntEnv(EnvChunkOverlap, 200),
			BatchSize:        getIntEnv(EnvBuildBatchSize, 50),
			BatchPause:       getDurationEnv(EnvBuildBatchPause, IndexBatchPause),
			PageLimit:        getIntEnv(EnvIndexPageLimit, 200_000),
			RetrieveK:        getIntEnv(EnvRetrieveK, 6),
			MinSimilarity:    getFloatEnv(EnvMinSimilarity, 0.3),
			HybridBM25Weight: getFloatEnv(EnvHybridBM25Weight, 0),
			RebuildAt:        getEnv(EnvRebuildAt, "03:00"),
			MaxURLs:          getIntEnv(EnvMaxURLs, 0),
			EmbedConcurrency: getIntEnv(EnvEmbedConcurrency, 4),
		},

		Fetch: FetchConfig{
			Workers:       getIntEnv(EnvFetchWorkers, 4),
			Timeout:       getDurationEnv(EnvFetchTimeout, FetchRequest),
			MaxRetries:    getIntEnv(EnvFetchRetries, 2),
			UserAgent:     getEnv(EnvFetchUserAgent, "QChat-Bot/1.0"),
			RotateUA:      getBoolEnv(EnvFetchRotateUA, false),
			RatePerSecond: getFloatEnv(EnvFetchRate, 5),
			CacheTTL:      getDurationEnv(EnvFetchCacheTTL, FetchCacheTTL),
			RedisURL:      getEnv(EnvRedisURL, ""),
		},

		Arbiter: ArbiterConfig{
			Strategy:         strings.ToLower(getEnv(EnvArbiterStrategy, StrategyTiered)),
			FAQFirst:         getBoolEnv(EnvFAQFirst, true),
			RAGMode:          strings.ToLower(getEnv(EnvRAGMode, RAGModeIndex)),
			URLTopK:          getIntEnv(EnvURLTopK, 4),
			WebPageLimit:     getIntEnv(EnvWebPageLimit, 5000),
			UnifiedPageLimit: getIntEnv(EnvUnifiedPageSize, 3000),
			ContextBudget:    getIntEnv(EnvContextBudget, 12_000),
		},

		Extraction: ExtractionConfig{
			Enabled: getBoolEnv(EnvExtractionEnabled, true),
			Workers: getIntEnv(EnvExtractionWorkers, 2),
			Timeout: ProfileExtraction,
		},

		R2: R2Config{
			Enabled:         getBoolEnv(EnvR2Enabled, false),
			AccountID:       getEnv(EnvR2AccountID, ""),
			AccessKeyID:     getEnv(EnvR2AccessKeyID, ""),
			SecretAccessKey: getEnv(EnvR2SecretAccessKey, ""),
			Bucket:          getEnv(EnvR2Bucket, ""),
			SnapshotKey:     getEnv(EnvR2SnapshotKey, "snapshots/index.tar.zst"),
			LockKey:         getEnv(EnvR2LockKey, "locks/index-build.lock"),
			LockTTL:         getDurationEnv(EnvR2LockTTL, R2LockTTL),
		},

		Observe: ObservabilityConfig{
			BetterstackToken:   getEnv(EnvBetterStackToken, ""),
			SentryDSN:          getEnv(EnvSentryDSN, ""),
			SentryEnvironment:  getEnv(EnvSentryEnvironment, "production"),
			SentrySampleRate:   getFloatEnv(EnvSentrySampleRate, 1.0),
			SentryTracesRate:   getFloatEnv(EnvSentryTracesRate, 0),
			OTLPEndpoint:       getEnv(EnvOTLPEndpoint, ""),
			OTLPInsecure:       getBoolEnv(EnvOTLPInsecure, true),
			TracingSampleRatio: getFloatEnv(EnvTracingSampleRatio, 1.0),
		},
	}

	if err := cfg.ValidateForMode(mode); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

var rebuildAtPattern = regexp.MustCompile(`^([01]\d|2[0-3]):[0-5]\d$`)

// ValidateForMode checks settings and reports every problem at once.
func (c *Config) ValidateForMode(mode ValidationMode) error {
	var errs []error

	if c.DataDir == "" {
		errs = append(errs, errors.New("DATA_DIR is required"))
	}
	if c.Index.Dir == "" {
		errs = append(errs, errors.New("INDEX_DIR is required"))
	}
	if c.Index.ChunkSize <= 0 {
		errs = append(errs, fmt.Errorf("CHUNK_SIZE must be positive, got %d", c.Index.ChunkSize))
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		errs = append(errs, fmt.Errorf("CHUNK_OVERLAP must be in [0, CHUNK_SIZE), got %d", c.Index.ChunkOverlap))
	}
	if c.Index.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BUILD_BATCH_SIZE must be positive, got %d", c.Index.BatchSize))
	}
	if c.Index.HybridBM25Weight < 0 || c.Index.HybridBM25Weight > 1 {
		errs = append(errs, fmt.Errorf("HYBRID_BM25_WEIGHT must be in [0, 1], got %v", c.Index.HybridBM25Weight))
	}
	if c.Index.RebuildAt != "" && !rebuildAtPattern.MatchString(c.Index.RebuildAt) {
		errs = append(errs, fmt.Errorf("INDEX_REBUILD_AT must be HH:MM, got %q", c.Index.RebuildAt))
	}
	if c.Fetch.Workers <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_WORKERS must be positive, got %d", c.Fetch.Workers))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("FETCH_TIMEOUT must be positive, got %v", c.Fetch.Timeout))
	}
	if c.Embedding.Dimensions <= 0 {
		errs = append(errs, fmt.Errorf("EMBEDDING_DIMENSIONS must be positive, got %d", c.Embedding.Dimensions))
	}
	if c.Embedding.Model == "" {
		errs = append(errs, errors.New("EMBEDDING_MODEL is required"))
	}
	if c.R2.Enabled {
		for name, v := range map[string]string{
			EnvR2AccountID:       c.R2.AccountID,
			EnvR2AccessKeyID:     c.R2.AccessKeyID,
			EnvR2SecretAccessKey: c.R2.SecretAccessKey,
			EnvR2Bucket:          c.R2.Bucket,
		} {
			if v == "" {
				errs = append(errs, fmt.Errorf("%s is required when R2 is enabled", name))
			}
		}
	}

	if mode == ServerMode {
		if c.Port == "" {
			errs = append(errs, errors.New("PORT is required"))
		}
		if !slices.Contains([]string{StrategyTiered, StrategyUnified}, c.Arbiter.Strategy) {
			errs = append(errs, fmt.Errorf("ARBITER_STRATEGY must be tiered or unified, got %q", c.Arbiter.Strategy))
		}
		if !slices.Contains([]string{RAGModeIndex, RAGModeWeb}, c.Arbiter.RAGMode) {
			errs = append(errs, fmt.Errorf("RAG_MODE must be index or web, got %q", c.Arbiter.RAGMode))
		}
		if c.Arbiter.URLTopK <= 0 {
			errs = append(errs, fmt.Errorf("URL_TOP_K must be positive, got %d", c.Arbiter.URLTopK))
		}
		if c.Index.RetrieveK <= 0 {
			errs = append(errs, fmt.Errorf("RETRIEVE_K must be positive, got %d", c.Index.RetrieveK))
		}
		switch c.Profile.Backend {
		case ProfileBackendSQLite:
		case ProfileBackendMongo:
			if c.Profile.MongoURI == "" {
				errs = append(errs, errors.New("MONGODB_URI is required for the mongo profile backend"))
			}
		default:
			errs = append(errs, fmt.Errorf("PROFILE_BACKEND must be sqlite or mongo, got %q", c.Profile.Backend))
		}
		for _, p := range c.LLM.Providers {
			if !slices.Contains(KnownProviders, p) {
				errs = append(errs, fmt.Errorf("unknown LLM provider %q", p))
			}
		}
	}

	return errors.Join(errs...)
}

// HasLLMProvider reports whether at least one configured provider has
// credentials. Ollama needs none.
func (c *Config) HasLLMProvider() bool {
	return len(c.LLM.ConfiguredProviders()) > 0
}

// ConfiguredProviders returns Providers filtered to those with credentials,
// preserving order.
func (l LLMConfig) ConfiguredProviders() []string {
	var out []string
	for _, p := range l.Providers {
		switch p {
		case "gemini":
			if l.GeminiAPIKey != "" {
				out = append(out, p)
			}
		case "groq":
			if l.GroqAPIKey != "" {
				out = append(out, p)
			}
		case "cerebras":
			if l.CerebrasAPIKey != "" {
				out = append(out, p)
			}
		case "openai":
			if l.OpenAIAPIKey != "" {
				out = append(out, p)
			}
		case "ollama":
			if l.OllamaURL != "" {
				out = append(out, p)
			}
		}
	}
	return out
}

// HasEmbedder reports whether the embedding service can be built.
func (c *Config) HasEmbedder() bool {
	return c.LLM.GeminiAPIKey != ""
}

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return v
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseFloat(strings.TrimSpace(value), 64); err == nil {
			return v
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if v, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return v
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if v, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return v
		}
	}
	return defaultValue
}

// getListEnv splits a comma-separated value, lowercasing and dropping blanks.
func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if strings.TrimSpace(value) == "" {
		return defaultValue
	}
	var out []string
	for part := range strings.SplitSeq(value, ",") {
		if p := strings.ToLower(strings.TrimSpace(part)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func defaultDataDir() string {
	if runtime.GOOS == "windows" {
		return "./data"
	}
	return "/data"
}
