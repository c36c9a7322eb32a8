// Package memory keeps run bookkeeping for the HTTP API in process memory.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/JakeFAU/scholarship-aggregator/internal/pipeline"
)

// RunStatus is the lifecycle state of a run.
type RunStatus string

// Run states.
const (
	RunStatusRunning   RunStatus = "running"
	RunStatusSucceeded RunStatus = "succeeded"
	RunStatusFailed    RunStatus = "failed"
)

const defaultRunHistory = 20

var (
	// ErrRunActive is returned by Start while another run has not finished.
	ErrRunActive = errors.New("a run is already in progress")
	// ErrRunNotFound is returned for unknown run ids.
	ErrRunNotFound = errors.New("run not found")
)

// Run is the API view of one run.
type Run struct {
	ID         string            `json:"run_id"`
	Status     RunStatus         `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt *time.Time        `json:"finished_at,omitempty"`
	Error      string            `json:"error,omitempty"`
	Summary    *pipeline.Summary `json:"summary,omitempty"`
}

// RunStore tracks at most one active run plus a bounded history.
type RunStore struct {
	mu     sync.RWMutex
	runs   map[string]Run
	order  []string
	active string
	limit  int
}

// NewRunStore constructs a RunStore remembering up to limit runs.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = defaultRunHistory
	}
	return &RunStore{
		runs:  make(map[string]Run),
		limit: limit,
	}
}

// Start registers id as the active run.
func (s *RunStore) Start(_ context.Context, id string) (Run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active != "" {
		return Run{}, ErrRunActive
	}
	if _, exists := s.runs[id]; exists {
		return Run{}, fmt.Errorf("run %s already exists", id)
	}
	run := Run{ID: id, Status: RunStatusRunning, StartedAt: time.Now().UTC()}
	s.runs[id] = run
	s.order = append(s.order, id)
	s.active = id
	s.evict()
	return run, nil
}

// Finish records the outcome of a run and releases the active slot.
func (s *RunStore) Finish(_ context.Context, id string, summary pipeline.Summary, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	run, ok := s.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Summary = &summary
	run.Status = RunStatusSucceeded
	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	}
	s.runs[id] = run
	if s.active == id {
		s.active = ""
	}
	return nil
}

// Get fetches a run by id.
func (s *RunStore) Get(_ context.Context, id string) (Run, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	run, ok := s.runs[id]
	if !ok {
		return Run{}, ErrRunNotFound
	}
	return run, nil
}

// Active returns the run in progress, if any.
func (s *RunStore) Active() (Run, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.active == "" {
		return Run{}, false
	}
	return s.runs[s.active], true
}

// List returns remembered runs, newest first.
func (s *RunStore) List(_ context.Context) []Run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Run, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.runs[s.order[i]])
	}
	return out
}

// evict drops the oldest finished runs beyond the limit. Caller holds mu.
func (s *RunStore) evict() {
	for len(s.order) > s.limit {
		oldest := s.order[0]
		if oldest == s.active {
			return
		}
		delete(s.runs, oldest)
		s.order = s.order[1:]
	}
}
