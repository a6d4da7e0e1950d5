package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qchat-dev/qchat-go/internal/index"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func TestFAQMatch(t *testing.T) {
	out, err := execute(t, "faq", "match", "When", "are", "bills", "available?")
	require.NoError(t, err)
	assert.Contains(t, out, "When are bills available?")
	assert.Contains(t, out, "score")
}

func TestFAQMatch_JSON(t *testing.T) {
	out, err := execute(t, "--json", "faq", "match", "When are bills available?")
	require.NoError(t, err)

	var res faqMatchResult
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.True(t, res.Matched)
	assert.NotEmpty(t, res.Category)
	assert.NotEmpty(t, res.Answer)
}

func TestFAQMatch_NoMatch(t *testing.T) {
	_, err := execute(t, "faq", "match", "zebra", "quantum", "origami")
	assert.ErrorIs(t, err, errNoMatch)
}

func TestFAQMatch_NeedsMessage(t *testing.T) {
	_, err := execute(t, "faq", "match")
	assert.Error(t, err)
}

func TestIndexStats(t *testing.T) {
	dir := t.TempDir()
	manifest := index.Manifest{
		Version:        1,
		EmbeddingModel: "gemini-embedding-001",
		Dimensions:     768,
		BuiltAt:        time.Date(2026, 9, 1, 3, 0, 0, 0, time.UTC),
		Pages:          2,
		Chunks:         17,
		URLs:           []string{"https://example.edu/a", "https://example.edu/b", "https://example.edu/c"},
	}
	data, err := json.Marshal(manifest)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "manifest.json"), data, 0o600))

	out, err := execute(t, "index", "stats", "--dir", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "Pages:      2 of 3 URLs")
	assert.Contains(t, out, "Chunks:     17")
	assert.Contains(t, out, "gemini-embedding-001 (768 dims)")

	out, err = execute(t, "--json", "index", "stats", "--dir", dir)
	require.NoError(t, err)
	var got index.Manifest
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, manifest.Chunks, got.Chunks)
}

func TestIndexStats_NotBuilt(t *testing.T) {
	_, err := execute(t, "index", "stats", "--dir", t.TempDir())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "qchatctl index build")
}
