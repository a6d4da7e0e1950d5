package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/qchat-dev/qchat-go/internal/config"
	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/fetcher"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
)

// ErrBuildLocked is returned when another builder holds the build lock.
var ErrBuildLocked = errors.New("index build already running elsewhere")

// PageFetcher fetches source pages. Failed pages are skipped, not reported.
type PageFetcher interface {
	FetchPages(ctx context.Context, urls []string, opts fetcher.Options) []fetcher.Page
}

// Locker serializes builders across processes.
type Locker interface {
	// TryLock reports false when another process holds the lock.
	TryLock(ctx context.Context) (bool, error)
	Unlock(ctx context.Context) error
}

// BuildOptions configures Build.
type BuildOptions struct {
	Dir      string
	URLs     []string
	Fetcher  PageFetcher
	Embedder Embedder
	Splitter Splitter

	BatchSize        int           // URLs per fetch batch
	BatchPause       time.Duration // pause between batches
	PageLimit        int           // bytes kept per page, 0 keeps everything
	EmbedConcurrency int

	Snapshots Snapshots // optional
	Lock      Locker    // optional

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Build fetches, chunks and embeds opts.URLs into a fresh index and swaps it
// into opts.Dir. The previous index stays in place until the new one is
// complete. With zero ingested pages nothing is swapped and the error
// matches ErrNoDocuments.
func Build(ctx context.Context, opts BuildOptions) (*Manifest, error) {
	ctx, span := tracer.Start(ctx, "index.Build")
	defer span.End()
	start := time.Now()

	if opts.Dir == "" || opts.Fetcher == nil || opts.Embedder == nil {
		return nil, errors.New("index: dir, fetcher and embedder are required")
	}
	if opts.Splitter.Size <= 0 {
		opts.Splitter = NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 50
	}
	if opts.EmbedConcurrency <= 0 {
		opts.EmbedConcurrency = 4
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithModule("index")

	if opts.Lock != nil {
		ok, err := opts.Lock.TryLock(ctx)
		if err != nil {
			opts.Metrics.RecordIndexBuild("error", 0)
			return nil, fmt.Errorf("acquire build lock: %w", err)
		}
		if !ok {
			opts.Metrics.RecordIndexBuild("locked", 0)
			return nil, ErrBuildLocked
		}
		defer func() {
			uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := opts.Lock.Unlock(uctx); err != nil {
				log.WithError(err).Warn("Release build lock failed")
			}
		}()
	}

	manifest, err := build(ctx, opts, log)
	elapsed := time.Since(start)
	switch {
	case errors.Is(err, domerrors.ErrNoDocuments):
		opts.Metrics.RecordIndexBuild("empty", elapsed.Seconds())
		span.SetStatus(codes.Error, "no documents")
		return nil, err
	case err != nil:
		opts.Metrics.RecordIndexBuild("error", elapsed.Seconds())
		span.RecordError(err)
		span.SetStatus(codes.Error, "build failed")
		return nil, err
	}
	opts.Metrics.RecordIndexBuild("success", elapsed.Seconds())
	span.SetAttributes(attribute.Int("index.pages", manifest.Pages), attribute.Int("index.chunks", manifest.Chunks))

	log.WithFields(map[string]any{
		"pages":    manifest.Pages,
		"chunks":   manifest.Chunks,
		"urls":     len(opts.URLs),
		"duration": elapsed.String(),
	}).InfoContext(ctx, "Index built")

	if opts.Snapshots != nil {
		if err := opts.Snapshots.UploadDir(ctx, opts.Dir); err != nil {
			log.WithError(err).WarnContext(ctx, "Index snapshot upload failed")
		} else {
			log.InfoContext(ctx, "Index snapshot uploaded")
		}
	}
	return manifest, nil
}

func build(ctx context.Context, opts BuildOptions, log *logger.Logger) (*Manifest, error) {
	if err := os.MkdirAll(filepath.Dir(opts.Dir), 0o755); err != nil {
		return nil, fmt.Errorf("create index parent: %w", err)
	}
	tmp := opts.Dir + ".build-" + uuid.NewString()
	swapped := false
	defer func() {
		if !swapped {
			_ = os.RemoveAll(tmp)
		}
	}()

	if err := os.MkdirAll(tmp, 0o755); err != nil {
		return nil, fmt.Errorf("create build dir: %w", err)
	}
	db, err := chromem.NewPersistentDB(filepath.Join(tmp, vectorsDir), false)
	if err != nil {
		return nil, fmt.Errorf("create vector store: %w", err)
	}
	coll, err := db.GetOrCreateCollection(collectionName, nil, chromem.EmbeddingFunc(opts.Embedder.Embed))
	if err != nil {
		return nil, fmt.Errorf("create collection: %w", err)
	}

	chunkFile, err := os.Create(filepath.Join(tmp, chunksFile))
	if err != nil {
		return nil, fmt.Errorf("create chunk list: %w", err)
	}
	defer chunkFile.Close()
	w := bufio.NewWriter(chunkFile)
	enc := json.NewEncoder(w)

	manifest := &Manifest{
		Version:        ManifestVersion,
		EmbeddingModel: opts.Embedder.ModelID(),
		Dimensions:     opts.Embedder.Dimensions(),
	}

	pageNo := 0
	for batchStart := 0; batchStart < len(opts.URLs); batchStart += opts.BatchSize {
		if batchStart > 0 && opts.BatchPause > 0 {
			timer := time.NewTimer(opts.BatchPause)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			case <-timer.C:
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		batch := opts.URLs[batchStart:min(batchStart+opts.BatchSize, len(opts.URLs))]
		pages := opts.Fetcher.FetchPages(ctx, batch, fetcher.Options{
			PageLimit: opts.PageLimit,
			Timeout:   config.FetchRequest * 3,
		})

		var docs []chromem.Document
		for _, p := range pages {
			pieces := opts.Splitter.Split(p.Text)
			if len(pieces) == 0 {
				continue
			}
			for i, text := range pieces {
				rec := chunkRecord{ID: fmt.Sprintf("p%05d-c%04d", pageNo, i), URL: p.URL, Text: text}
				docs = append(docs, chromem.Document{
					ID:       rec.ID,
					Content:  text,
					Metadata: map[string]string{"url": p.URL},
				})
				if err := enc.Encode(rec); err != nil {
					return nil, fmt.Errorf("write chunk record: %w", err)
				}
			}
			manifest.URLs = append(manifest.URLs, p.URL)
			pageNo++
		}

		if len(docs) > 0 {
			if err := coll.AddDocuments(ctx, docs, opts.EmbedConcurrency); err != nil {
				return nil, fmt.Errorf("embed chunks: %w", err)
			}
		}
		manifest.Chunks += len(docs)

		log.WithFields(map[string]any{
			"batch_start": batchStart,
			"fetched":     len(pages),
			"chunks":      len(docs),
		}).DebugContext(ctx, "Index batch done")
	}

	manifest.Pages = pageNo
	if manifest.Pages == 0 || manifest.Chunks == 0 {
		return nil, domerrors.ErrNoDocuments
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush chunk list: %w", err)
	}
	if err := chunkFile.Close(); err != nil {
		return nil, fmt.Errorf("close chunk list: %w", err)
	}
	manifest.BuiltAt = time.Now().UTC()
	if err := writeManifest(tmp, manifest); err != nil {
		return nil, err
	}

	if err := swapDir(tmp, opts.Dir); err != nil {
		return nil, err
	}
	swapped = true
	return manifest, nil
}

// swapDir replaces dir with tmp: dir moves to dir.old, tmp moves to dir, and
// dir.old is removed. On failure the previous index is restored.
func swapDir(tmp, dir string) error {
	old := dir + ".old"
	if err := os.RemoveAll(old); err != nil {
		return fmt.Errorf("clear old index: %w", err)
	}
	hadPrevious := false
	if _, err := os.Stat(dir); err == nil {
		if err := os.Rename(dir, old); err != nil {
			return fmt.Errorf("move current index aside: %w", err)
		}
		hadPrevious = true
	}
	if err := os.Rename(tmp, dir); err != nil {
		if hadPrevious {
			_ = os.Rename(old, dir)
		}
		return fmt.Errorf("swap in new index: %w", err)
	}
	_ = os.RemoveAll(old)
	return nil
}
