package index

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domerrors "github.com/qchat-dev/qchat-go/internal/errors"
)

func TestCache_LoadsOnce(t *testing.T) {
	t.Parallel()
	var loads atomic.Int32
	want := &Handle{}
	c := NewCache(func(context.Context) (*Handle, error) {
		loads.Add(1)
		return want, nil
	})
	assert.Nil(t, c.Loaded())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h, err := c.Get(context.Background())
			assert.NoError(t, err)
			assert.Same(t, want, h)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), loads.Load())
	assert.Same(t, want, c.Loaded())
}

func TestCache_FailureIsNotCached(t *testing.T) {
	t.Parallel()
	var loads atomic.Int32
	c := NewCache(func(context.Context) (*Handle, error) {
		if loads.Add(1) == 1 {
			return nil, domerrors.ErrIndexNotBuilt
		}
		return &Handle{}, nil
	})

	_, err := c.Get(context.Background())
	require.ErrorIs(t, err, domerrors.ErrIndexNotBuilt)
	assert.Nil(t, c.Loaded())

	h, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, h)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCache_Reset(t *testing.T) {
	t.Parallel()
	var loads atomic.Int32
	c := NewCache(func(context.Context) (*Handle, error) {
		loads.Add(1)
		return &Handle{}, nil
	})

	first, err := c.Get(context.Background())
	require.NoError(t, err)
	c.Reset()
	assert.Nil(t, c.Loaded())

	second, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.NotSame(t, first, second)
	assert.Equal(t, int32(2), loads.Load())
}

func TestCache_PropagatesLoadError(t *testing.T) {
	t.Parallel()
	boom := errors.New("disk gone")
	c := NewCache(func(context.Context) (*Handle, error) { return nil, boom })

	_, err := c.Get(context.Background())
	assert.ErrorIs(t, err, boom)
}
