package r2client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
	"github.com/qchat-dev/qchat-go/internal/r2client/r2test"
)

func newTestClient() (*Client, *r2test.MemoryAPI) {
	api := r2test.NewMemoryAPI()
	return NewWithAPI(api, "qchat"), api
}

func TestNew_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"empty", Config{}, true},
		{"missing secret", Config{AccountID: "acct", AccessKeyID: "id", Bucket: "b"}, true},
		{"missing bucket", Config{AccountID: "acct", AccessKeyID: "id", SecretAccessKey: "s"}, true},
		{"account id derives endpoint", Config{AccountID: "acct", AccessKeyID: "id", SecretAccessKey: "s", Bucket: "b"}, false},
		{"explicit endpoint", Config{Endpoint: "http://127.0.0.1:9000", AccessKeyID: "id", SecretAccessKey: "s", Bucket: "b"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c, err := New(context.Background(), tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, c)
		})
	}
}

func TestUploadDownloadHead(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient()
	ctx := context.Background()

	tag, err := c.Upload(ctx, "snapshots/index.tar.zst", strings.NewReader("payload"), "application/zstd")
	require.NoError(t, err)
	assert.NotEmpty(t, tag)
	assert.NotContains(t, tag, `"`)

	body, gotTag, err := c.Download(ctx, "snapshots/index.tar.zst")
	require.NoError(t, err)
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	require.NoError(t, body.Close())
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, tag, gotTag)

	headTag, err := c.HeadObject(ctx, "snapshots/index.tar.zst")
	require.NoError(t, err)
	assert.Equal(t, tag, headTag)
}

func TestNotFound(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient()
	ctx := context.Background()

	_, _, err := c.Download(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, err, domerrors.ErrNotFound)

	_, err = c.HeadObject(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, c.DeleteObject(ctx, "missing"))
}

func TestConditionalPuts(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient()
	ctx := context.Background()

	ok, tag, err := c.PutObjectIfNotExists(ctx, "k", strings.NewReader("a"), "")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, _, err = c.PutObjectIfNotExists(ctx, "k", strings.NewReader("b"), "")
	require.NoError(t, err)
	assert.False(t, ok, "second create is refused")

	ok, _, err = c.PutObjectIfMatch(ctx, "k", strings.NewReader("c"), "stale", "")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, newTag, err := c.PutObjectIfMatch(ctx, "k", strings.NewReader("d"), tag, "")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NotEqual(t, tag, newTag)
}

func TestUpload_Error(t *testing.T) {
	t.Parallel()
	c, api := newTestClient()
	api.FailPuts = errors.New("network down")

	_, err := c.Upload(context.Background(), "k", strings.NewReader("x"), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `upload "k"`)
}

func TestDistributedLock(t *testing.T) {
	t.Parallel()
	c, api := newTestClient()
	ctx := context.Background()

	a := NewDistributedLock(c, "locks/build", time.Hour)
	b := NewDistributedLock(c, "locks/build", time.Hour)
	assert.NotEqual(t, a.OwnerID(), b.OwnerID())

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "live lease blocks a second holder")

	renewed, err := a.Renew(ctx)
	require.NoError(t, err)
	assert.True(t, renewed)

	renewed, err = b.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, renewed, "a non-holder cannot renew")

	require.NoError(t, b.Release(ctx))
	_, exists := api.Object("locks/build")
	assert.True(t, exists, "release by a non-owner leaves the lock")

	require.NoError(t, a.Release(ctx))
	_, exists = api.Object("locks/build")
	assert.False(t, exists)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestDistributedLock_ExpiredLeaseIsTakenOver(t *testing.T) {
	t.Parallel()
	c, _ := newTestClient()
	ctx := context.Background()

	now := time.Date(2026, 3, 1, 3, 0, 0, 0, time.UTC)
	a := NewDistributedLock(c, "locks/build", time.Minute)
	a.now = func() time.Time { return now }
	b := NewDistributedLock(c, "locks/build", time.Minute)
	b.now = func() time.Time { return now.Add(2 * time.Minute) }

	ok, err := a.Acquire(ctx)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, ok)

	renewed, err := a.Renew(ctx)
	require.NoError(t, err)
	assert.False(t, renewed, "the previous holder lost the lease")
}

func TestDistributedLock_CorruptBodyCountsAsExpired(t *testing.T) {
	t.Parallel()
	c, api := newTestClient()
	api.Put("locks/build", []byte("not json"))

	l := NewDistributedLock(c, "locks/build", time.Hour)
	ok, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.True(t, ok)

	data, _ := api.Object("locks/build")
	var info LockInfo
	require.NoError(t, json.Unmarshal(data, &info))
	assert.Equal(t, l.OwnerID(), info.Owner)
}
