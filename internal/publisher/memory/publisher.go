// Package memory keeps recent snapshot events in memory for the HTTP API.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/scholarship-aggregator/internal/publisher"
)

const defaultHistory = 50

// Recorder stores the most recent events.
type Recorder struct {
	mu     sync.RWMutex
	limit  int
	seq    int
	events []publisher.SnapshotEvent
}

// New returns a Recorder keeping at most limit events (50 when limit <= 0).
func New(limit int) *Recorder {
	if limit <= 0 {
		limit = defaultHistory
	}
	return &Recorder{limit: limit}
}

// Name identifies the sink in logs and metrics.
func (r *Recorder) Name() string { return "memory" }

// Publish records the event and returns a pseudo ID.
func (r *Recorder) Publish(_ context.Context, event publisher.SnapshotEvent) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	event.FailedSources = append([]string(nil), event.FailedSources...)
	r.events = append(r.events, event)
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append(r.events[:0:0], r.events[over:]...)
	}
	return fmt.Sprintf("memory-%d", r.seq), nil
}

// Events returns the recorded events, oldest first.
func (r *Recorder) Events() []publisher.SnapshotEvent {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]publisher.SnapshotEvent, len(r.events))
	for i, e := range r.events {
		e.FailedSources = append([]string(nil), e.FailedSources...)
		out[i] = e
	}
	return out
}
