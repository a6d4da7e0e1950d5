// Package index builds, persists and queries the document index used for
// retrieval-augmented answers.
//
// A build fetches every source URL, splits page text into overlapping
// chunks, embeds them into a chromem-go collection and writes a manifest.
// The finished directory replaces the previous one with a rename, so a
// reader never sees a half-built index. Retrieval embeds the query, takes
// the nearest chunks and can fuse them with a BM25 ranking.
package index

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	chromem "github.com/philippgille/chromem-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/logger"
	"github.com/qchat-dev/qchat-go/internal/metrics"
)

const collectionName = "pages"

// Retrieval defaults.
const (
	DefaultRetrieveK     = 6
	DefaultMinSimilarity = 0.3
)

var tracer = otel.Tracer("github.com/qchat-dev/qchat-go/internal/index")

// Embedder turns text into a vector. ModelID identifies the model and output
// size; an index can only be queried with the embedder that built it.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	ModelID() string
	Dimensions() int
}

// Snapshots stores built index directories remotely.
type Snapshots interface {
	// UploadDir archives dir and stores it as the latest snapshot.
	UploadDir(ctx context.Context, dir string) error
	// DownloadDir replaces dir with the latest snapshot. It returns an error
	// matching domerrors.ErrNotFound when no snapshot exists.
	DownloadDir(ctx context.Context, dir string) error
}

// Chunk is one retrieved passage.
type Chunk struct {
	Text       string
	SourceURL  string
	Similarity float32
}

// Stats summarizes a loaded index.
type Stats struct {
	Pages          int       `json:"pages"`
	Chunks         int       `json:"chunks"`
	EmbeddingModel string    `json:"embeddingModel"`
	BuiltAt        time.Time `json:"builtAt"`
}

type chunkRecord struct {
	ID   string `json:"id"`
	URL  string `json:"url"`
	Text string `json:"text"`
}

// LoadOptions configures Load.
type LoadOptions struct {
	Dir      string
	Embedder Embedder

	// Snapshots, when set, restores a missing local index from remote
	// storage before giving up.
	Snapshots Snapshots

	MinSimilarity float32
	BM25Weight    float64 // 0 disables the BM25 leg

	Logger  *logger.Logger
	Metrics *metrics.Metrics
}

// Handle is a loaded, read-only index. It is safe for concurrent use.
type Handle struct {
	manifest *Manifest
	coll     *chromem.Collection
	records  map[string]chunkRecord
	lexical  *lexicalIndex

	minSimilarity float32
	bm25Weight    float64
	metrics       *metrics.Metrics
}

// Load opens the index in opts.Dir. It returns an error matching
// ErrIndexNotBuilt when there is no index and ErrModelMismatch when the index
// was built with a different embedding model.
func Load(ctx context.Context, opts LoadOptions) (*Handle, error) {
	if opts.Embedder == nil {
		return nil, errors.New("index: embedder is required")
	}
	log := opts.Logger
	if log == nil {
		log = logger.Discard()
	}
	log = log.WithModule("index")

	manifest, err := ReadManifest(opts.Dir)
	if errors.Is(err, domerrors.ErrIndexNotBuilt) && opts.Snapshots != nil {
		log.InfoContext(ctx, "No local index, trying remote snapshot")
		if derr := opts.Snapshots.DownloadDir(ctx, opts.Dir); derr != nil {
			if !errors.Is(derr, domerrors.ErrNotFound) {
				log.WithError(derr).WarnContext(ctx, "Snapshot download failed")
			}
			return nil, err
		}
		manifest, err = ReadManifest(opts.Dir)
	}
	if err != nil {
		return nil, err
	}

	if want := opts.Embedder.ModelID(); manifest.EmbeddingModel != want {
		return nil, fmt.Errorf("%w: built with %q, configured %q",
			domerrors.ErrModelMismatch, manifest.EmbeddingModel, want)
	}

	db, err := chromem.NewPersistentDB(filepath.Join(opts.Dir, vectorsDir), false)
	if err != nil {
		return nil, fmt.Errorf("open vector store: %w", err)
	}
	coll := db.GetCollection(collectionName, chromem.EmbeddingFunc(opts.Embedder.Embed))
	if coll == nil {
		return nil, fmt.Errorf("%w: collection %q missing", domerrors.ErrIndexNotBuilt, collectionName)
	}

	records, err := readChunks(filepath.Join(opts.Dir, chunksFile))
	if err != nil {
		return nil, err
	}

	h := &Handle{
		manifest:      manifest,
		coll:          coll,
		records:       make(map[string]chunkRecord, len(records)),
		minSimilarity: opts.MinSimilarity,
		bm25Weight:    opts.BM25Weight,
		metrics:       opts.Metrics,
	}
	for _, r := range records {
		h.records[r.ID] = r
	}
	if opts.BM25Weight > 0 {
		if h.lexical, err = newLexicalIndex(records); err != nil {
			return nil, err
		}
	}

	opts.Metrics.SetIndexChunks(coll.Count())
	log.WithFields(map[string]any{
		"chunks":   coll.Count(),
		"pages":    manifest.Pages,
		"built_at": manifest.BuiltAt,
		"hybrid":   h.lexical != nil,
	}).InfoContext(ctx, "Index loaded")
	return h, nil
}

// Stats reports the manifest counts of the loaded index.
func (h *Handle) Stats() Stats {
	return Stats{
		Pages:          h.manifest.Pages,
		Chunks:         h.coll.Count(),
		EmbeddingModel: h.manifest.EmbeddingModel,
		BuiltAt:        h.manifest.BuiltAt,
	}
}

// Retrieve returns up to k chunks most similar to query, best first. k is
// clamped to [1, chunk count]. Chunks below the minimum similarity are
// dropped, so the result may be empty.
func (h *Handle) Retrieve(ctx context.Context, query string, k int) ([]Chunk, error) {
	ctx, span := tracer.Start(ctx, "index.Retrieve")
	defer span.End()
	start := time.Now()
	defer func() { h.metrics.RecordRetrieve(time.Since(start).Seconds()) }()

	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	n := h.coll.Count()
	if n == 0 {
		return nil, nil
	}
	k = max(1, min(k, n))

	fetchN := k
	if h.lexical != nil {
		fetchN = min(n, max(k*3, 30))
	}
	span.SetAttributes(attribute.Int("index.k", k), attribute.Int("index.candidates", fetchN))

	results, err := h.coll.Query(ctx, query, fetchN, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}

	chunks := make([]Chunk, 0, len(results))
	ids := make([]string, 0, len(results))
	for _, r := range results {
		if r.Similarity < h.minSimilarity {
			continue
		}
		chunks = append(chunks, Chunk{Text: r.Content, SourceURL: r.Metadata["url"], Similarity: r.Similarity})
		ids = append(ids, r.ID)
	}

	if h.lexical == nil {
		if len(chunks) > k {
			chunks = chunks[:k]
		}
		return chunks, nil
	}

	hits, err := h.lexical.Search(query, fetchN)
	if err != nil {
		return nil, err
	}
	return toChunks(fuseRRF(chunks, ids, hits, h.records, h.bm25Weight, k)), nil
}

func readChunks(path string) ([]chunkRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open chunk list: %w", err)
	}
	defer f.Close()

	var out []chunkRecord
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		var r chunkRecord
		if err := json.Unmarshal(scanner.Bytes(), &r); err != nil {
			return nil, fmt.Errorf("decode chunk record: %w", err)
		}
		out = append(out, r)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read chunk list: %w", err)
	}
	return out, nil
}
