// Package fetcher downloads source pages and extracts their readable text.
//
// Fetches run on a bounded worker pool behind a shared rate limiter. A
// failure on one URL is logged and skipped; it never aborts the batch.
package fetcher

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/sliceutil"
	"github.com/qchat-dev/qchat-go/internal/textutil"
)

// ErrRejectedPage marks a page whose text looks like a login wall or is too
// short to be useful.
var ErrRejectedPage = errors.New("page rejected: login wall or too little text")

var tracer = otel.Tracer("github.com/qchat-dev/qchat-go/internal/fetcher")

// Config configures a Fetcher. Zero values fall back to defaults.
type Config struct {
	Workers       int
	Timeout       time.Duration // per HTTP attempt
	MaxRetries    int
	RetryInitial  time.Duration
	UserAgent     string
	RotateUA      bool
	RatePerSecond float64

	Cache      PageCache
	HTTPClient *http.Client
	Logger     *logger.Logger
	Metrics    *metrics.Metrics
}

// Options bounds one FetchAll call.
type Options struct {
	PageLimit int           // bytes kept per page, 0 keeps everything
	Timeout   time.Duration // per page including retries, 0 uses Config.Timeout
}

// Page is the extracted text of one source URL.
type Page struct {
	URL  string
	Text string
}

// Result is the combined output of FetchAll.
type Result struct {
	Context string
	Sources []string
	Pages   []Page
}

// Fetcher fetches and extracts pages. It is safe for concurrent use.
type Fetcher struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	group   singleflight.Group
	log     *logger.Logger
}

// New returns a Fetcher.
func New(cfg Config) *Fetcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 4
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = config.FetchRequest
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.RetryInitial <= 0 {
		cfg.RetryInitial = config.FetchRetryInitial
	}
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	client := cfg.HTTPClient
	if client == nil {
		client = newHTTPClient(cfg.Timeout)
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Discard()
	}
	return &Fetcher{
		cfg:     cfg,
		client:  client,
		limiter: rate.NewLimiter(limit, cfg.Workers),
		log:     log.WithModule("fetcher"),
	}
}

// Fetch returns the full extracted text of url, consulting the page cache
// first. Concurrent fetches of the same URL share one request.
func (f *Fetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.cfg.Cache != nil {
		if text, ok := f.cfg.Cache.Get(ctx, url); ok {
			f.cfg.Metrics.RecordCacheHit("page")
			f.cfg.Metrics.RecordFetch("cached", 0)
			return text, nil
		}
		f.cfg.Metrics.RecordCacheMiss("page")
	}

	if err := ctx.Err(); err != nil {
		return "", err
	}

	// The shared fetch outlives any single caller: it runs detached with its
	// own deadline, and each caller stops waiting when its own ctx ends.
	ch := f.group.DoChan(url, func() (any, error) {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), f.sharedTimeout())
		defer cancel()
		return f.fetchUncached(sctx, url)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			f.cfg.Metrics.RecordSingleflightDedup("fetch")
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

// sharedTimeout bounds one deduplicated fetch including its retries.
func (f *Fetcher) sharedTimeout() time.Duration {
	return f.cfg.Timeout * time.Duration(f.cfg.MaxRetries+2)
}

func (f *Fetcher) fetchUncached(ctx context.Context, url string) (string, error) {
	start := time.Now()
	var text string
	err := RetryWithBackoff(ctx, f.cfg.MaxRetries, f.cfg.RetryInitial, func() error {
		doc, err := f.getDocument(ctx, url)
		if err != nil {
			return err
		}
		text = ExtractText(doc)
		return nil
	})
	elapsed := time.Since(start).Seconds()
	if err != nil {
		f.cfg.Metrics.RecordFetch("error", elapsed)
		return "", err
	}
	if LooksLikeAuthWall(text) {
		f.cfg.Metrics.RecordFetch("rejected", elapsed)
		return "", domerrors.NewFetchError(url, http.StatusOK, ErrRejectedPage)
	}
	f.cfg.Metrics.RecordFetch("success", elapsed)
	if f.cfg.Cache != nil {
		f.cfg.Cache.Set(ctx, url, text)
	}
	return text, nil
}

// FetchPages fetches urls concurrently and returns the pages that succeeded,
// in input order, each truncated to pageLimit bytes. Duplicate URLs are
// fetched once.
func (f *Fetcher) FetchPages(ctx context.Context, urls []string, opts Options) []Page {
	urls = sliceutil.Deduplicate(urls, func(u string) string { return u })
	results := make([]*Page, len(urls))

	var g errgroup.Group
	g.SetLimit(f.cfg.Workers)
	for i, u := range urls {
		g.Go(func() error {
			pctx := ctx
			if opts.Timeout > 0 {
				var cancel context.CancelFunc
				pctx, cancel = context.WithTimeout(ctx, opts.Timeout)
				defer cancel()
			}
			text, err := f.Fetch(pctx, u)
			if err != nil {
				log := f.log.WithError(err).WithField("url", u)
				if IsNetworkError(err) {
					log.WarnContext(ctx, "Fetch failed, skipping")
				} else {
					log.InfoContext(ctx, "Page skipped")
				}
				return nil
			}
			results[i] = &Page{URL: u, Text: textutil.Truncate(text, opts.PageLimit)}
			return nil
		})
	}
	_ = g.Wait()

	pages := make([]Page, 0, len(urls))
	for _, p := range results {
		if p != nil {
			pages = append(pages, *p)
		}
	}
	return pages
}

// FetchAll fetches urls and joins the page texts into one context string,
// each page introduced by a "--- From <url> ---" line. Sources lists the
// URLs that contributed, in input order.
func (f *Fetcher) FetchAll(ctx context.Context, urls []string, opts Options) Result {
	ctx, span := tracer.Start(ctx, "fetcher.FetchAll")
	defer span.End()
	span.SetAttributes(attribute.Int("fetch.urls", len(urls)))

	pages := f.FetchPages(ctx, urls, opts)

	var b strings.Builder
	sources := make([]string, 0, len(pages))
	for _, p := range pages {
		b.WriteString("\n\n--- From ")
		b.WriteString(p.URL)
		b.WriteString(" ---\n")
		b.WriteString(p.Text)
		sources = append(sources, p.URL)
	}

	span.SetAttributes(attribute.Int("fetch.pages", len(pages)))
	if len(urls) > 0 && len(pages) == 0 {
		span.SetStatus(codes.Error, "all fetches failed")
	}
	return Result{Context: b.String(), Sources: sources, Pages: pages}
}
