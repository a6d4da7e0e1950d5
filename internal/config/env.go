package config

// Environment variable keys. Every key carries the QCHAT_ prefix.
//
//nolint:gosec // Keys, not credentials.
const (
	// Server
	EnvPort            = "QCHAT_PORT"
	EnvLogLevel        = "QCHAT_LOG_LEVEL"
	EnvShutdownTimeout = "QCHAT_SHUTDOWN_TIMEOUT"
	EnvMetricsUsername = "QCHAT_METRICS_USERNAME"
	EnvMetricsPassword = "QCHAT_METRICS_PASSWORD"
	EnvChatRatePerMin  = "QCHAT_CHAT_RATE_PER_MINUTE"
	EnvChatBurst       = "QCHAT_CHAT_BURST"
	EnvChatLogEnabled  = "QCHAT_CHAT_LOG_ENABLED"

	// Storage
	EnvDataDir        = "QCHAT_DATA_DIR"
	EnvSQLitePath     = "QCHAT_SQLITE_PATH"
	EnvProfileBackend = "QCHAT_PROFILE_BACKEND"
	EnvMongoURI       = "QCHAT_MONGODB_URI"
	EnvMongoDatabase  = "QCHAT_DB_NAME"

	// LLM
	EnvLLMProviders       = "QCHAT_LLM_PROVIDERS"
	EnvLLMTimeout         = "QCHAT_LLM_TIMEOUT"
	EnvLLMMaxOutputTokens = "QCHAT_LLM_MAX_OUTPUT_TOKENS"
	EnvGeminiAPIKey       = "QCHAT_GEMINI_API_KEY"
	EnvGeminiModel        = "QCHAT_GEMINI_MODEL"
	EnvGroqAPIKey         = "QCHAT_GROQ_API_KEY"
	EnvGroqModel          = "QCHAT_GROQ_MODEL"
	EnvCerebrasAPIKey     = "QCHAT_CEREBRAS_API_KEY"
	EnvCerebrasModel      = "QCHAT_CEREBRAS_MODEL"
	EnvOpenAIAPIKey       = "QCHAT_OPENAI_API_KEY"
	EnvOpenAIModel        = "QCHAT_OPENAI_MODEL"
	EnvOllamaURL          = "QCHAT_OLLAMA_URL"
	EnvOllamaModel        = "QCHAT_OLLAMA_MODEL"
	EnvBreakerFailures    = "QCHAT_LLM_BREAKER_FAILURES"
	EnvBreakerCooldown    = "QCHAT_LLM_BREAKER_COOLDOWN"

	// Embedding
	EnvEmbeddingModel      = "QCHAT_EMBEDDING_MODEL"
	EnvEmbeddingDimensions = "QCHAT_EMBEDDING_DIMENSIONS"
	EnvEmbeddingRPM        = "QCHAT_EMBEDDING_RPM"

	// Index
	EnvIndexDir         = "QCHAT_INDEX_DIR"
	EnvURLListPath      = "QCHAT_URL_LIST_PATH"
	EnvChunkSize        = "QCHAT_CHUNK_SIZE"
	EnvChunkOverlap     = "QCHAT_CHUNK_OVERLAP"
	EnvBuildBatchSize   = "QCHAT_BUILD_BATCH_SIZE"
	EnvBuildBatchPause  = "QCHAT_BUILD_BATCH_PAUSE"
	EnvRetrieveK        = "QCHAT_RETRIEVE_K"
	EnvMinSimilarity    = "QCHAT_RETRIEVE_MIN_SIMILARITY"
	EnvHybridBM25Weight = "QCHAT_HYBRID_BM25_WEIGHT"
	EnvRebuildAt        = "QCHAT_INDEX_REBUILD_AT"
	EnvMaxURLs          = "QCHAT_INDEX_MAX_URLS"
	EnvEmbedConcurrency = "QCHAT_EMBED_CONCURRENCY"

	// Fetch
	EnvFetchWorkers    = "QCHAT_FETCH_WORKERS"
	EnvFetchTimeout    = "QCHAT_FETCH_TIMEOUT"
	EnvFetchRetries    = "QCHAT_FETCH_MAX_RETRIES"
	EnvFetchUserAgent  = "QCHAT_FETCH_USER_AGENT"
	EnvFetchRotateUA   = "QCHAT_FETCH_ROTATE_UA"
	EnvFetchRate       = "QCHAT_FETCH_RATE_PER_SECOND"
	EnvFetchCacheTTL   = "QCHAT_FETCH_CACHE_TTL"
	EnvRedisURL        = "QCHAT_REDIS_URL"
	EnvIndexPageLimit  = "QCHAT_INDEX_PAGE_LIMIT"
	EnvWebPageLimit    = "QCHAT_WEB_PAGE_LIMIT"
	EnvUnifiedPageSize = "QCHAT_UNIFIED_PAGE_LIMIT"

	// Arbiter
	EnvArbiterStrategy = "QCHAT_ARBITER_STRATEGY"
	EnvFAQFirst        = "QCHAT_FAQ_FIRST"
	EnvRAGMode         = "QCHAT_RAG_MODE"
	EnvURLTopK         = "QCHAT_URL_TOP_K"
	EnvContextBudget   = "QCHAT_CONTEXT_BUDGET"

	// Profile extraction
	EnvExtractionEnabled = "QCHAT_EXTRACTION_ENABLED"
	EnvExtractionWorkers = "QCHAT_EXTRACTION_WORKERS"

	// R2
	EnvR2Enabled         = "QCHAT_R2_ENABLED"
	EnvR2AccountID       = "QCHAT_R2_ACCOUNT_ID"
	EnvR2AccessKeyID     = "QCHAT_R2_ACCESS_KEY_ID"
	EnvR2SecretAccessKey = "QCHAT_R2_SECRET_ACCESS_KEY"
	EnvR2Bucket          = "QCHAT_R2_BUCKET"
	EnvR2SnapshotKey     = "QCHAT_R2_SNAPSHOT_KEY"
	EnvR2LockKey         = "QCHAT_R2_LOCK_KEY"
	EnvR2LockTTL         = "QCHAT_R2_LOCK_TTL"

	// Observability
	EnvBetterStackToken   = "QCHAT_BETTERSTACK_TOKEN"
	EnvSentryDSN          = "QCHAT_SENTRY_DSN"
	EnvSentryEnvironment  = "QCHAT_SENTRY_ENVIRONMENT"
	EnvSentrySampleRate   = "QCHAT_SENTRY_SAMPLE_RATE"
	EnvSentryTracesRate   = "QCHAT_SENTRY_TRACES_SAMPLE_RATE"
	EnvOTLPEndpoint       = "QCHAT_OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvOTLPInsecure       = "QCHAT_OTEL_EXPORTER_OTLP_INSECURE"
	EnvTracingSampleRatio = "QCHAT_TRACING_SAMPLE_RATIO"
)
