package warmup

import (
	"sync/atomic"
	"time"
)

// ReadinessState tracks whether startup warmup has finished. The service
// also counts as ready once the grace period has passed, so a slow index
// download never keeps it out of rotation for good.
type ReadinessState struct {
	done       atomic.Bool
	indexReady atomic.Bool
	startTime  time.Time
	grace      time.Duration
}

// ReadinessStatus is the JSON body of /readyz.
type ReadinessStatus struct {
	Ready          bool   `json:"ready"`
	IndexReady     bool   `json:"indexReady"`
	Reason         string `json:"reason,omitempty"`
	ElapsedSeconds int    `json:"elapsedSeconds,omitempty"`
	GraceSeconds   int    `json:"graceSeconds,omitempty"`
}

// NewReadinessState starts the grace period clock.
func NewReadinessState(grace time.Duration) *ReadinessState {
	return &ReadinessState{startTime: time.Now(), grace: grace}
}

// IsReady reports whether warmup finished or the grace period elapsed.
func (s *ReadinessState) IsReady() bool {
	return s.done.Load() || time.Since(s.startTime) >= s.grace
}

// MarkReady records the end of warmup and whether an index was loaded.
func (s *ReadinessState) MarkReady(indexReady bool) {
	s.indexReady.Store(indexReady)
	s.done.Store(true)
}

// SetIndexReady updates the index flag after a rebuild.
func (s *ReadinessState) SetIndexReady(ready bool) {
	s.indexReady.Store(ready)
}

// IndexReady reports whether an index handle is loaded.
func (s *ReadinessState) IndexReady() bool {
	return s.indexReady.Load()
}

// WarmupCompleted is true only after MarkReady, regardless of the grace
// period.
func (s *ReadinessState) WarmupCompleted() bool {
	return s.done.Load()
}

// Status returns the current state for API responses.
func (s *ReadinessState) Status() ReadinessStatus {
	status := ReadinessStatus{
		Ready:          s.IsReady(),
		IndexReady:     s.indexReady.Load(),
		ElapsedSeconds: int(time.Since(s.startTime).Seconds()),
		GraceSeconds:   int(s.grace.Seconds()),
	}
	switch {
	case !status.Ready:
		status.Reason = "warmup in progress"
	case !s.done.Load():
		status.Reason = "grace period elapsed, warmup still running"
	}
	return status
}
