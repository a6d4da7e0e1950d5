package index

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

// ManifestVersion is the on-disk layout version written by Build.
const ManifestVersion = 1

const (
	manifestFile = "manifest.json"
	chunksFile   = "chunks.jsonl"
	vectorsDir   = "vectors"
)

// Manifest describes a built index directory.
type Manifest struct {
	Version        int       `json:"version"`
	EmbeddingModel string    `json:"embeddingModel"`
	Dimensions     int       `json:"dimensions"`
	BuiltAt        time.Time `json:"builtAt"`
	Pages          int       `json:"pages"`
	Chunks         int       `json:"chunks"`
	URLs           []string  `json:"urls"`
}

// ReadManifest reads dir/manifest.json. A missing file yields
// ErrIndexNotBuilt.
func ReadManifest(dir string) (*Manifest, error) {
	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, domerrors.ErrIndexNotBuilt
		}
		return nil, fmt.Errorf("read manifest: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	return &m, nil
}

func writeManifest(dir string, m *Manifest) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile), data, 0o644); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}
	return nil
}
