package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-co-op/gocron"

	"github.com/qchat-dev/qchat-go/internal/config"
	"github.com/qchat-dev/qchat-go/internal/index"
	"github.com/qchat-dev/qchat-go/internal/sentry"
	"github.com/qchat-dev/qchat-go/internal/warmup"
)

// rebuildTag names the scheduled index rebuild job.
const rebuildTag = "index-rebuild"

// startBackgroundJobs starts startup warmup, the rebuild schedule and
// snapshot polling. Goroutines are tracked by the WaitGroup.
func (a *Application) startBackgroundJobs(ctx context.Context) error {
	done := make(chan struct{})
	warmup.RunInBackground(ctx, a.warmupOptions(), config.IndexWarmup, a.readiness, done)
	a.wg.Go(func() {
		<-done
	})

	if err := a.scheduleRebuild(ctx); err != nil {
		return err
	}

	if a.core.Snapshots != nil {
		a.core.Snapshots.StartPolling(ctx, a.cfg.Index.Dir, a.onSnapshotRestored)
	}
	return nil
}

// warmupOptions lists the stores checked at startup.
func (a *Application) warmupOptions() warmup.Options {
	checks := map[string]warmup.Pinger{
		"database":      a.db,
		"profile_store": a.profiles,
	}
	if a.core.Redis != nil {
		checks["page_cache"] = a.core.Redis
	}
	return warmup.Options{
		Index:   a.core.Index,
		Checks:  checks,
		Metrics: a.metrics,
		Logger:  a.logger,
	}
}

// scheduleRebuild registers the daily index rebuild. An empty RebuildAt or a
// missing embedding service leaves the scheduler off.
func (a *Application) scheduleRebuild(ctx context.Context) error {
	if a.cfg.Index.RebuildAt == "" {
		a.logger.Info("Scheduled index rebuild disabled")
		return nil
	}
	if a.core.Embedder == nil {
		a.logger.Warn("Scheduled index rebuild disabled: no embedding service configured")
		return nil
	}

	s := gocron.NewScheduler(time.Local)
	s.TagsUnique()
	job, err := s.Every(1).Day().At(a.cfg.Index.RebuildAt).Tag(rebuildTag).SingletonMode().Do(func() {
		a.runRebuild(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule index rebuild: %w", err)
	}
	s.StartAsync()
	a.scheduler = s

	a.wg.Go(func() {
		<-ctx.Done()
		s.Stop()
		// A running rebuild sees the cancelled context; wait for it to return.
		a.rebuildMu.Lock()
		a.rebuildMu.Unlock() //nolint:staticcheck // empty critical section waits for the holder
	})

	a.logger.WithField("at", a.cfg.Index.RebuildAt).
		WithField("next_run", job.NextRun().Format(time.RFC3339)).
		Info("Scheduled daily index rebuild")
	return nil
}

// runRebuild performs one scheduled rebuild. Failures are logged and
// reported; the previous index keeps serving.
func (a *Application) runRebuild(ctx context.Context) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()
	if ctx.Err() != nil {
		return
	}

	log := a.logger.WithModule("rebuild")
	buildCtx, cancel := context.WithTimeout(ctx, config.IndexBuild)
	defer cancel()

	log.Info("Starting scheduled index rebuild...")
	start := time.Now()
	manifest, err := a.core.BuildIndex(buildCtx, a.cfg.Index.MaxURLs)
	switch {
	case errors.Is(err, index.ErrBuildLocked):
		log.Info("Index rebuild skipped: another instance holds the build lock")
		return
	case err != nil:
		log.WithError(err).WithField("duration_ms", time.Since(start).Milliseconds()).
			Error("Scheduled index rebuild failed")
		sentry.CaptureExceptionWithContext(ctx, err, map[string]string{"job": rebuildTag})
		return
	}

	a.reloadIndex(buildCtx)
	log.WithFields(map[string]any{
		"pages":       manifest.Pages,
		"chunks":      manifest.Chunks,
		"duration_ms": time.Since(start).Milliseconds(),
	}).Info("Scheduled index rebuild completed")
}

// onSnapshotRestored runs after polling installed a snapshot built by
// another instance.
func (a *Application) onSnapshotRestored(ctx context.Context) {
	a.core.Index.Reset()
	a.reloadIndex(ctx)
}

// reloadIndex loads the freshly installed index so the next chat does not
// pay for it, and updates readiness.
func (a *Application) reloadIndex(ctx context.Context) {
	h, err := a.core.Index.Get(ctx)
	if err != nil {
		a.logger.WithError(err).Warn("Index reload failed")
		a.readiness.SetIndexReady(false)
		return
	}
	a.readiness.SetIndexReady(true)
	a.logger.WithField("chunks", h.Stats().Chunks).Info("Index reloaded")
}
