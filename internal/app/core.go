package app

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/qchat-dev/qchat-go/internal/arbiter"
	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/extractor"
	"github.com/qchat-dev/qchat-go/internal/faq"
	"github.com/qchat-dev/qchat-go/internal/fetcher"
	"github.com/qchat-dev/qchat-go/internal/genai"
	"github.com/qchat-dev/qchat-go/internal/index"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/r2client"
	"github.com/qchat-dev/qchat-go/internal/snapshot"
	"github.com/qchat-dev/qchat-go/internal/storage"
	"github.com/qchat-dev/qchat-go/internal/urlrank"
)

// pageCacheEntries caps the in-process page cache used without Redis.
const pageCacheEntries = 512

// Core holds the collaborators shared by the HTTP server and qchatctl:
// everything needed to answer a question or build the index, minus the
// user-data stores.
type Core struct {
	Config  *config.Config
	Logger  *logger.Logger
	Metrics *metrics.Metrics

	FAQ     *faq.Table
	Fetcher *fetcher.Fetcher
	URLs    []string
	Ranker  *urlrank.Ranker
	Index   *index.Cache

	// Optional members stay nil when not configured.
	LLM       *genai.FallbackCompleter
	Embedder  *genai.GeminiEmbedder
	Snapshots *snapshot.Manager
	Redis     *fetcher.RedisCache
}

// NewCore wires the retrieval stack from configuration. Missing LLM or
// embedding credentials, or an unreachable Redis, degrade the core instead
// of failing it.
func NewCore(ctx context.Context, cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Core, error) {
	if log == nil {
		log = logger.Discard()
	}
	c := &Core{Config: cfg, Logger: log, Metrics: m}

	table, err := faq.Default()
	if err != nil {
		return nil, fmt.Errorf("faq: %w", err)
	}
	c.FAQ = table

	urls := urlrank.DefaultList()
	if cfg.Index.URLListPath != "" {
		if urls, err = urlrank.LoadList(cfg.Index.URLListPath); err != nil {
			return nil, fmt.Errorf("url list: %w", err)
		}
	}
	c.URLs = urls
	c.Ranker = urlrank.New(urls, nil)

	var cache fetcher.PageCache = fetcher.NewMemoryCache(cfg.Fetch.CacheTTL, pageCacheEntries)
	if cfg.Fetch.RedisURL != "" {
		rc, err := fetcher.NewRedisCache(ctx, cfg.Fetch.RedisURL, cfg.Fetch.CacheTTL)
		if err != nil {
			log.WithError(err).Warn("Redis page cache unavailable, using memory cache")
		} else {
			c.Redis = rc
			cache = rc
		}
	}
	c.Fetcher = fetcher.New(fetcher.Config{
		Workers:       cfg.Fetch.Workers,
		Timeout:       cfg.Fetch.Timeout,
		MaxRetries:    cfg.Fetch.MaxRetries,
		UserAgent:     cfg.Fetch.UserAgent,
		RotateUA:      cfg.Fetch.RotateUA,
		RatePerSecond: cfg.Fetch.RatePerSecond,
		Cache:         cache,
		Logger:        log,
		Metrics:       m,
	})

	c.LLM = genai.NewCompleterFromConfig(ctx, cfg.LLM, log, m)

	emb, err := genai.NewEmbedderFromConfig(ctx, cfg)
	if err != nil {
		log.WithError(err).Warn("Embedding service unavailable, index retrieval disabled")
	} else {
		c.Embedder = emb
	}

	if cfg.R2.Enabled {
		client, err := r2client.New(ctx, r2client.Config{
			AccountID:       cfg.R2.AccountID,
			AccessKeyID:     cfg.R2.AccessKeyID,
			SecretAccessKey: cfg.R2.SecretAccessKey,
			Bucket:          cfg.R2.Bucket,
		})
		if err != nil {
			return nil, fmt.Errorf("r2: %w", err)
		}
		c.Snapshots = snapshot.New(client, snapshot.Config{
			SnapshotKey:  cfg.R2.SnapshotKey,
			LockKey:      cfg.R2.LockKey,
			LockTTL:      cfg.R2.LockTTL,
			PollInterval: config.SnapshotPoll,
			TempDir:      cfg.DataDir,
		}, log)
		log.WithField("bucket", cfg.R2.Bucket).Info("R2 index snapshots enabled")
	}

	c.Index = index.NewCache(c.loadIndex)
	return c, nil
}

// embedder returns the configured embedder as an interface, nil when absent.
func (c *Core) embedder() index.Embedder {
	if c.Embedder == nil {
		return nil
	}
	return c.Embedder
}

func (c *Core) snapshots() index.Snapshots {
	if c.Snapshots == nil {
		return nil
	}
	return c.Snapshots
}

func (c *Core) loadIndex(ctx context.Context) (*index.Handle, error) {
	emb := c.embedder()
	if emb == nil {
		return nil, fmt.Errorf("no embedding service configured: %w", domerrors.ErrIndexNotBuilt)
	}
	return index.Load(ctx, index.LoadOptions{
		Dir:           c.Config.Index.Dir,
		Embedder:      emb,
		Snapshots:     c.snapshots(),
		MinSimilarity: float32(c.Config.Index.MinSimilarity),
		BM25Weight:    c.Config.Index.HybridBM25Weight,
		Logger:        c.Logger,
		Metrics:       c.Metrics,
	})
}

// ErrNoEmbedder is returned by BuildIndex without an embedding service.
var ErrNoEmbedder = errors.New("index build needs an embedding service (set " + config.EnvGeminiAPIKey + ")")

// BuildIndex rebuilds the document index from the URL list. maxURLs > 0
// limits the list. With R2 enabled the build holds the distributed lock and
// uploads a snapshot; a build running elsewhere yields index.ErrBuildLocked.
// The in-process index cache is reset after a successful build.
func (c *Core) BuildIndex(ctx context.Context, maxURLs int) (*index.Manifest, error) {
	emb := c.embedder()
	if emb == nil {
		return nil, ErrNoEmbedder
	}

	urls := c.URLs
	if maxURLs > 0 && len(urls) > maxURLs {
		urls = slices.Clone(urls[:maxURLs])
	}

	opts := index.BuildOptions{
		Dir:              c.Config.Index.Dir,
		URLs:             urls,
		Fetcher:          c.Fetcher,
		Embedder:         emb,
		Splitter:         index.NewSplitter(c.Config.Index.ChunkSize, c.Config.Index.ChunkOverlap),
		BatchSize:        c.Config.Index.BatchSize,
		BatchPause:       c.Config.Index.BatchPause,
		PageLimit:        c.Config.Index.PageLimit,
		EmbedConcurrency: c.Config.Index.EmbedConcurrency,
		Logger:           c.Logger,
		Metrics:          c.Metrics,
	}
	if c.Snapshots != nil {
		opts.Snapshots = c.Snapshots
		opts.Lock = c.Snapshots
	}

	manifest, err := index.Build(ctx, opts)
	if err != nil {
		return nil, err
	}
	c.Index.Reset()
	return manifest, nil
}

// NewArbiter builds the configured answer strategy over the core. profiles
// and extractions may be nil.
func (c *Core) NewArbiter(profiles profile.Store, extractions *extractor.Runner) (arbiter.Arbiter, error) {
	deps := arbiter.Deps{
		FAQ:      c.FAQ,
		Profiles: profiles,
		Index:    c.Index,
		Ranker:   c.Ranker,
		Fetcher:  c.Fetcher,
		Metrics:  c.Metrics,
		Logger:   c.Logger,
	}
	if c.LLM != nil {
		deps.LLM = c.LLM
	}
	if extractions != nil {
		deps.Extractions = extractions
	}
	return arbiter.New(arbiter.OptionsFromConfig(c.Config), deps)
}

// Close releases network clients held by the core.
func (c *Core) Close() error {
	if c.Snapshots != nil {
		c.Snapshots.StopPolling()
	}
	if c.Redis != nil {
		return c.Redis.Close()
	}
	return nil
}

// OpenProfileStore opens the configured profile backend. The returned close
// function is never nil.
func OpenProfileStore(ctx context.Context, cfg *config.Config, db *storage.DB, log *logger.Logger) (profile.Store, func(context.Context) error, error) {
	noop := func(context.Context) error { return nil }
	switch cfg.Profile.Backend {
	case config.ProfileBackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, config.MongoConnect*3)
		defer cancel()
		s, err := profile.NewMongoStore(connectCtx, cfg.Profile.MongoURI, cfg.Profile.MongoDatabase, log)
		if err != nil {
			return nil, noop, err
		}
		return s, s.Close, nil
	default:
		if db == nil {
			return nil, noop, errors.New("sqlite profile store needs a database")
		}
		return profile.NewSQLiteStore(db, log), noop, nil
	}
}
