package extractor

import (
	"context"
	"sync"
	"time"

	"github.com/qchat-dev/qchat-go/internal/ctxutil"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/profile"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

const (
	defaultWorkers   = 2
	defaultQueueSize = 64
	defaultTimeout   = 60 * time.Second
)

// Extraction outcomes recorded in metrics.
const (
	ResultApplied = "applied"
	ResultNone    = "none"
	ResultError   = "error"
	ResultNoWrite = "not_written"
)

// Job is one finished exchange waiting for extraction.
type Job struct {
	Username  string
	Message   string
	Reply     string
	History   []storage.Message
	RequestID string
}

// RunnerOptions configures Runner.
type RunnerOptions struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration // per job, including store writes
}

// Runner processes extraction jobs on a fixed pool of background workers.
// Jobs are dropped when the queue is full so the chat path never waits.
type Runner struct {
	ext     *Extractor
	store   profile.Store
	timeout time.Duration
	metrics *metrics.Metrics
	log     *logger.Logger

	jobs   chan Job
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewRunner starts the workers.
func NewRunner(ext *Extractor, store profile.Store, opts RunnerOptions, m *metrics.Metrics, log *logger.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if log == nil {
		log = logger.Discard()
	}

	r := &Runner{
		ext:     ext,
		store:   store,
		timeout: opts.Timeout,
		metrics: m,
		log:     log.WithModule("extractor"),
		jobs:    make(chan Job, opts.QueueSize),
	}
	for range opts.Workers {
		r.wg.Go(func() {
			for job := range r.jobs {
				r.process(job)
			}
		})
	}
	return r
}

// Submit queues a job. It reports false when the job was dropped.
func (r *Runner) Submit(job Job) bool {
	if r == nil || job.Username == "" {
		return false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return false
	}
	select {
	case r.jobs <- job:
		return true
	default:
		r.metrics.RecordExtractionDropped()
		r.log.WithField("username", job.Username).Warn("Extraction queue full; dropping job")
		return false
	}
}

// Shutdown stops accepting jobs and waits for queued ones until ctx ends.
func (r *Runner) Shutdown(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	close(r.jobs)
	r.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) process(job Job) {
	log := r.log.WithField("username", job.Username)
	defer func() {
		if rec := recover(); rec != nil {
			log.WithField("panic", rec).Error("Panic in profile extraction")
			r.metrics.RecordExtraction(ResultError)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	ctx = ctxutil.WithUserID(ctx, job.Username)
	if job.RequestID != "" {
		ctx = ctxutil.WithRequestID(ctx, job.RequestID)
	}

	current, err := profile.EnsureExists(ctx, r.store, job.Username)
	if err != nil {
		log.WithError(err).WarnContext(ctx, "Profile unavailable; extracting without summary")
		current = nil
	}

	x, err := r.ext.extract(ctx, job.Message, job.Reply, job.History, current)
	switch {
	case err != nil:
		r.metrics.RecordExtraction(ResultError)
		return
	case x.Empty():
		r.metrics.RecordExtraction(ResultNone)
		return
	}

	if !Apply(ctx, r.store, job.Username, x) {
		r.metrics.RecordExtraction(ResultNoWrite)
		log.WarnContext(ctx, "Extracted profile facts were not written")
		return
	}
	r.metrics.RecordExtraction(ResultApplied)
	log.InfoContext(ctx, "Profile updated from conversation")
}
