// Package warmup prepares the service at startup: it loads the persisted
// document index into memory and checks that the stores answer, then marks
// the service ready.
package warmup

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/index"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
)

// Task status labels recorded in metrics.
const (
	StatusOK     = "ok"
	StatusAbsent = "absent"
	StatusError  = "error"
)

// IndexTask is the task name of the index load.
const IndexTask = "index"

// Pinger is anything that can report whether it is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Options configures a warmup run.
type Options struct {
	// Index is loaded once so the first chat does not pay for it. Nil skips
	// the task.
	Index *index.Cache

	// Checks are pinged concurrently, keyed by task name
	// (e.g. "database", "profile_store", "page_cache").
	Checks map[string]Pinger

	Metrics *metrics.Metrics
	Logger  *logger.Logger
}

// Result summarizes a warmup run.
type Result struct {
	IndexReady bool
	IndexStats index.Stats
	Statuses   map[string]string
}

// Failed returns the names of tasks that ended in StatusError, sorted.
func (r Result) Failed() []string {
	var out []string
	for name, status := range r.Statuses {
		if status == StatusError {
			out = append(out, name)
		}
	}
	slices.Sort(out)
	return out
}

// Run executes all warmup tasks concurrently. Tasks never fail the run: a
// missing index is reported as absent and unreachable stores as errors, and
// the service keeps degrading per request.
func Run(ctx context.Context, opts Options) Result {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithModule("warmup")
	start := time.Now()

	var (
		mu  sync.Mutex
		res = Result{Statuses: make(map[string]string, len(opts.Checks)+1)}
	)
	record := func(task, status string) {
		mu.Lock()
		res.Statuses[task] = status
		mu.Unlock()
		opts.Metrics.RecordWarmupTask(task, status)
	}

	var g errgroup.Group

	if opts.Index != nil {
		g.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					log.WithField("panic", r).ErrorContext(ctx, "Panic while loading index")
					record(IndexTask, StatusError)
				}
			}()
			h, err := opts.Index.Get(ctx)
			switch {
			case err == nil:
				mu.Lock()
				res.IndexReady = true
				res.IndexStats = h.Stats()
				mu.Unlock()
				record(IndexTask, StatusOK)
			case errors.Is(err, domerrors.ErrIndexNotBuilt):
				log.InfoContext(ctx, "No index built yet, answering from fetched pages until the first build")
				record(IndexTask, StatusAbsent)
			default:
				log.WithError(err).WarnContext(ctx, "Index warmup failed")
				record(IndexTask, StatusError)
			}
			return nil
		})
	}

	for _, name := range slices.Sorted(maps.Keys(opts.Checks)) {
		p := opts.Checks[name]
		if p == nil {
			continue
		}
		g.Go(func() error {
			if err := p.Ping(ctx); err != nil {
				log.WithError(err).WithField("task", name).WarnContext(ctx, "Warmup check failed")
				record(name, StatusError)
				return nil
			}
			record(name, StatusOK)
			return nil
		})
	}

	_ = g.Wait()

	duration := time.Since(start)
	opts.Metrics.RecordWarmupDuration(duration.Seconds())
	log.WithFields(map[string]any{
		"duration_ms": duration.Milliseconds(),
		"index_ready": res.IndexReady,
		"chunks":      res.IndexStats.Chunks,
		"failed":      res.Failed(),
	}).Info("Warmup complete")
	return res
}

// RunInBackground runs warmup in a goroutine and marks state ready when it
// finishes, whatever the outcome. done, if non-nil, is closed afterwards.
func RunInBackground(ctx context.Context, opts Options, timeout time.Duration, state *ReadinessState, done chan<- struct{}) {
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	go func() {
		if done != nil {
			defer close(done)
		}
		defer func() {
			if r := recover(); r != nil {
				log.WithField("panic", r).Error("Panic in startup warmup")
				state.MarkReady(false)
			}
		}()

		runCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		res := Run(runCtx, opts)
		state.MarkReady(res.IndexReady)
	}()
}
