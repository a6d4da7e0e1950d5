package extractor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qchat-dev/qchat-go/internal/genai"
	"github.com/qchat-dev/qchat-go/internal/metrics"
	"github.com/qchat-dev/qchat-go/internal/storage"
)

func TestRunner_AppliesExtraction(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	m := metrics.New(prometheus.NewRegistry())
	llm := &fakeLLM{reply: `{"personal_info": {"major": "Biology"}, "activities": ["Rowing"]}`}
	r := NewRunner(New(llm, nil), store, RunnerOptions{Workers: 1, Timeout: 5 * time.Second}, m, nil)

	require.True(t, r.Submit(Job{
		Username: "lee",
		Message:  "I'm a biology major and I row",
		Reply:    "Great!",
		History:  []storage.Message{{Role: "user", Text: "hello"}, {Role: "bot", Text: "Hi!"}},
	}))
	require.NoError(t, r.Shutdown(context.Background()))

	p, err := store.Get(context.Background(), "lee")
	require.NoError(t, err, "profile is created on first extraction")
	assert.Equal(t, "Biology", p.PersonalInfo.Major)
	assert.Equal(t, []string{"Rowing"}, p.Schedule.Extracurriculars)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileExtractionsTotal.WithLabelValues(ResultApplied)))

	calls := llm.calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Question, "Student: hello\nQChat: Hi!\nStudent: I'm a biology major")
	assert.Contains(t, calls[0].Question, "CURRENT PROFILE SUMMARY: No profile yet")
}

func TestRunner_RecordsOutcomes(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	m := metrics.New(prometheus.NewRegistry())

	none := NewRunner(New(&fakeLLM{reply: `{"extracted": false}`}, nil), store, RunnerOptions{Workers: 1}, m, nil)
	require.True(t, none.Submit(Job{Username: "a", Message: "what's for lunch?", Reply: "Pizza."}))
	require.NoError(t, none.Shutdown(context.Background()))

	bad := NewRunner(New(&fakeLLM{reply: "not json"}, nil), store, RunnerOptions{Workers: 1}, m, nil)
	require.True(t, bad.Submit(Job{Username: "b", Message: "m", Reply: "r"}))
	require.NoError(t, bad.Shutdown(context.Background()))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileExtractionsTotal.WithLabelValues(ResultNone)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProfileExtractionsTotal.WithLabelValues(ResultError)))
}

type blockingLLM struct {
	fakeLLM
	release chan struct{}
	started sync.Once
	running chan struct{}
}

func (b *blockingLLM) CompleteJSON(ctx context.Context, p genai.Prompt) (string, error) {
	b.started.Do(func() { close(b.running) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return "", ctx.Err()
	}
	return `{"extracted": false}`, nil
}

func TestRunner_DropsWhenQueueFull(t *testing.T) {
	t.Parallel()
	store := newStore(t)
	m := metrics.New(prometheus.NewRegistry())
	llm := &blockingLLM{release: make(chan struct{}), running: make(chan struct{})}
	r := NewRunner(New(llm, nil), store, RunnerOptions{Workers: 1, QueueSize: 1}, m, nil)

	require.True(t, r.Submit(Job{Username: "c", Message: "1", Reply: "r"}))
	<-llm.running
	require.True(t, r.Submit(Job{Username: "c", Message: "2", Reply: "r"}))
	assert.False(t, r.Submit(Job{Username: "c", Message: "3", Reply: "r"}))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ExtractionQueueDropped))

	close(llm.release)
	require.NoError(t, r.Shutdown(context.Background()))
	assert.False(t, r.Submit(Job{Username: "c", Message: "4", Reply: "r"}), "closed runner rejects jobs")
}

func TestRunner_ShutdownHonorsContext(t *testing.T) {
	t.Parallel()
	llm := &blockingLLM{release: make(chan struct{}), running: make(chan struct{})}
	r := NewRunner(New(llm, nil), newStore(t), RunnerOptions{Workers: 1}, nil, nil)
	require.True(t, r.Submit(Job{Username: "d", Message: "m", Reply: "r"}))
	<-llm.running

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, r.Shutdown(ctx), context.DeadlineExceeded)
	close(llm.release)
}

func TestRunner_NilAndEmpty(t *testing.T) {
	t.Parallel()
	var r *Runner
	assert.False(t, r.Submit(Job{Username: "x"}))
	assert.NoError(t, r.Shutdown(context.Background()))

	live := NewRunner(New(&fakeLLM{}, nil), newStore(t), RunnerOptions{}, nil, nil)
	assert.False(t, live.Submit(Job{}))
	require.NoError(t, live.Shutdown(context.Background()))
	require.NoError(t, live.Shutdown(context.Background()))
}
