// Package snapshot keeps the on-disk page index in sync with R2.
// It uploads built index directories as compressed archives, restores them
// on instances that start without an index, polls for newer snapshots, and
// holds the distributed lock that allows a single builder at a time.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/r2client"
)

// ErrNotFound indicates no snapshot exists in R2. It matches
// domerrors.ErrNotFound through r2client.ErrNotFound.
var ErrNotFound = r2client.ErrNotFound

// Config holds snapshot manager configuration.
type Config struct {
	SnapshotKey  string        // e.g. "snapshots/index.tar.zst"
	LockKey      string        // e.g. "locks/index-build.lock"
	LockTTL      time.Duration // lease length of the build lock
	PollInterval time.Duration // how often to look for a newer snapshot
	TempDir      string        // scratch space for archives
}

// Manager synchronizes the index directory with R2.
type Manager struct {
	client *r2client.Client
	config Config
	log    *logger.Logger

	mu          sync.RWMutex
	currentETag string

	pollCancel context.CancelFunc
	pollDone   chan struct{}

	leaderMu    sync.Mutex
	leaderLock  *r2client.DistributedLock
	renewCancel context.CancelFunc
	renewDone   chan struct{}
}

// New creates a snapshot manager.
func New(client *r2client.Client, cfg Config, log *logger.Logger) *Manager {
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Manager{
		client: client,
		config: cfg,
		log:    log.WithModule("snapshot"),
	}
}

// UploadDir archives dir and uploads it as the current snapshot.
func (m *Manager) UploadDir(ctx context.Context, dir string) error {
	if err := os.MkdirAll(m.config.TempDir, 0o755); err != nil {
		return fmt.Errorf("create temp dir: %w", err)
	}
	f, err := os.CreateTemp(m.config.TempDir, "index-*.tar.zst")
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer os.Remove(f.Name())
	defer f.Close()

	if err := writeArchive(f, dir); err != nil {
		return err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewind archive: %w", err)
	}

	etag, err := m.client.Upload(ctx, m.config.SnapshotKey, f, "application/zstd")
	if err != nil {
		return fmt.Errorf("upload snapshot: %w", err)
	}
	m.SetCurrentETag(etag)
	m.log.Info("Snapshot uploaded", "key", m.config.SnapshotKey, "etag", etag)
	return nil
}

// DownloadDir replaces dir with the contents of the latest snapshot.
// It returns ErrNotFound when no snapshot exists; dir is untouched on error.
func (m *Manager) DownloadDir(ctx context.Context, dir string) error {
	body, etag, err := m.client.Download(ctx, m.config.SnapshotKey)
	if err != nil {
		if errors.Is(err, r2client.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("download snapshot: %w", err)
	}
	defer body.Close()

	staging := fmt.Sprintf("%s.restore-%s", filepath.Clean(dir), uuid.NewString()[:8])
	defer os.RemoveAll(staging)

	if err := extractArchive(body, staging); err != nil {
		return fmt.Errorf("extract snapshot: %w", err)
	}
	if err := replaceDir(staging, dir); err != nil {
		return fmt.Errorf("install snapshot: %w", err)
	}

	m.SetCurrentETag(etag)
	m.log.Info("Snapshot restored", "key", m.config.SnapshotKey, "etag", etag, "dir", dir)
	return nil
}

// TryLock acquires the build lock and keeps renewing it in the background
// until Unlock. It reports false when another instance holds the lock.
func (m *Manager) TryLock(ctx context.Context) (bool, error) {
	lock := r2client.NewDistributedLock(m.client, m.config.LockKey, m.config.LockTTL)
	acquired, err := lock.Acquire(ctx)
	if err != nil || !acquired {
		return acquired, err
	}

	m.leaderMu.Lock()
	if m.renewCancel != nil {
		m.renewCancel()
		if m.renewDone != nil {
			<-m.renewDone
		}
	}
	m.leaderLock = lock
	renewCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.renewCancel = cancel
	m.renewDone = make(chan struct{})
	go m.renewLoop(renewCtx, lock, m.renewDone)
	m.leaderMu.Unlock()

	m.log.Info("Build lock acquired", "owner", lock.OwnerID())
	return true, nil
}

// Unlock stops renewal and releases the build lock.
func (m *Manager) Unlock(ctx context.Context) error {
	m.leaderMu.Lock()
	lock := m.leaderLock
	cancel := m.renewCancel
	done := m.renewDone
	m.leaderLock = nil
	m.renewCancel = nil
	m.renewDone = nil
	m.leaderMu.Unlock()

	if cancel != nil {
		cancel()
		if done != nil {
			<-done
		}
	}
	if lock == nil {
		return nil
	}
	return lock.Release(ctx)
}

func (m *Manager) renewLoop(ctx context.Context, lock *r2client.DistributedLock, done chan struct{}) {
	defer close(done)

	interval := m.config.LockTTL / 3
	if interval < 10*time.Second {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			renewed, err := lock.Renew(ctx)
			if err != nil {
				m.log.WithError(err).Warn("Build lock renew failed")
				return
			}
			if !renewed {
				m.log.Warn("Build lock lost during renew")
				return
			}
		}
	}
}

// StartPolling checks for a newer snapshot every PollInterval. When the
// remote ETag changes, the snapshot is restored into dir and onUpdate runs.
func (m *Manager) StartPolling(ctx context.Context, dir string, onUpdate func(context.Context)) {
	if m.config.PollInterval <= 0 {
		return
	}
	pollCtx, cancel := context.WithCancel(ctx)
	m.pollCancel = cancel
	m.pollDone = make(chan struct{})

	go func() {
		defer close(m.pollDone)

		ticker := time.NewTicker(m.config.PollInterval)
		defer ticker.Stop()

		for {
			select {
			case <-pollCtx.Done():
				m.log.Info("Snapshot polling stopped")
				return
			case <-ticker.C:
				m.pollOnce(pollCtx, dir, onUpdate)
			}
		}
	}()

	m.log.Info("Snapshot polling started",
		"interval", m.config.PollInterval,
		"key", m.config.SnapshotKey)
}

// pollOnce restores the remote snapshot if its ETag differs from ours.
// It reports whether a new snapshot was installed.
func (m *Manager) pollOnce(ctx context.Context, dir string, onUpdate func(context.Context)) bool {
	remote, err := m.client.HeadObject(ctx, m.config.SnapshotKey)
	if err != nil {
		if !errors.Is(err, r2client.ErrNotFound) {
			m.log.WithError(err).Warn("Snapshot poll: head object failed")
		}
		return false
	}
	current := m.CurrentETag()
	if remote == current {
		return false
	}

	m.log.Info("New snapshot detected", "old_etag", current, "new_etag", remote)
	if err := m.DownloadDir(ctx, dir); err != nil {
		m.log.WithError(err).Error("Snapshot poll: restore failed")
		return false
	}
	if onUpdate != nil {
		onUpdate(ctx)
	}
	return true
}

// StopPolling stops the polling goroutine and waits for it to exit.
func (m *Manager) StopPolling() {
	if m.pollCancel != nil {
		m.pollCancel()
		<-m.pollDone
		m.pollCancel = nil
	}
}

// CurrentETag returns the ETag of the snapshot last uploaded or restored.
func (m *Manager) CurrentETag() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.currentETag
}

// SetCurrentETag records the ETag matching the local index.
func (m *Manager) SetCurrentETag(etag string) {
	m.mu.Lock()
	m.currentETag = etag
	m.mu.Unlock()
}

// replaceDir moves src into place at dst, keeping the old dst until the
// rename succeeds.
func replaceDir(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(filepath.Clean(dst)), 0o755); err != nil {
		return err
	}
	old := dst + ".old"
	_ = os.RemoveAll(old)

	hadOld := false
	if _, err := os.Stat(dst); err == nil {
		if err := os.Rename(dst, old); err != nil {
			return err
		}
		hadOld = true
	}
	if err := os.Rename(src, dst); err != nil {
		if hadOld {
			_ = os.Rename(old, dst)
		}
		return err
	}
	if hadOld {
		_ = os.RemoveAll(old)
	}
	return nil
}
