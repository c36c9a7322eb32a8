package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/scholarship-aggregator/internal/publisher"
	"github.com/JakeFAU/scholarship-aggregator/internal/publisher/memory"
	"github.com/JakeFAU/scholarship-aggregator/internal/record"
	"github.com/JakeFAU/scholarship-aggregator/internal/source"
)

type memStore struct {
	mu    sync.Mutex
	saved [][]record.Record
	err   error
}

func (s *memStore) Save(_ context.Context, records []record.Record) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.saved = append(s.saved, records)
	return "file:///tmp/scholarships.json", nil
}

type fakeMirror struct {
	runID string
	data  []byte
	err   error
}

func (m *fakeMirror) Name() string { return "fake-mirror" }

func (m *fakeMirror) Mirror(_ context.Context, runID string, data []byte) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.runID, m.data = runID, data
	return "gs://bucket/runs/" + runID + ".json", nil
}

type fakeArchive struct {
	runID   string
	seenAt  time.Time
	records []record.Record
	err     error
}

func (a *fakeArchive) Name() string { return "fake-archive" }

func (a *fakeArchive) Store(_ context.Context, runID string, seenAt time.Time, records []record.Record) error {
	if a.err != nil {
		return a.err
	}
	a.runID, a.seenAt, a.records = runID, seenAt, records
	return nil
}

type failingPublisher struct{}

func (failingPublisher) Name() string { return "broken" }

func (failingPublisher) Publish(context.Context, publisher.SnapshotEvent) (string, error) {
	return "", errors.New("broker unavailable")
}

type staticIDs string

func (s staticIDs) NewID() (string, error) { return string(s), nil }

type runnerFixture struct {
	store    *memStore
	mirror   *fakeMirror
	archive  *fakeArchive
	recorder *memory.Recorder
	deps     RunnerDeps
}

func newRunnerFixture(t *testing.T, pages map[string]page, descs ...source.Descriptor) *runnerFixture {
	t.Helper()
	if len(descs) == 0 {
		descs = []source.Descriptor{alphaDescriptor()}
	}
	f := &runnerFixture{
		store:    &memStore{},
		mirror:   &fakeMirror{},
		archive:  &fakeArchive{},
		recorder: memory.New(10),
	}
	f.deps = RunnerDeps{
		Pipelines: func() (*Pipeline, error) {
			return newTestPipeline(t, descs, Deps{Static: newFakeFetcher(pages)}), nil
		},
		Store:      f.store,
		Mirrors:    []Mirror{f.mirror},
		Archives:   []Archive{f.archive},
		Publishers: []publisher.Publisher{f.recorder},
		IDs:        staticIDs("run-1"),
		Clock:      fixedClock{now: testNow},
	}
	return f
}

func TestRunnerPersistsMergedSnapshot(t *testing.T) {
	t.Parallel()

	beta := alphaDescriptor()
	beta.Name = "beta"
	beta.BaseURL = "https://beta.test"
	pages := alphaPages()
	pages["https://beta.test/list"] = page{body: `<article><h2><a href="/x">Beasiswa Beta</a></h2>
		<p class="summary">Deadline: 30 Januari 2026</p></article>`}
	f := newRunnerFixture(t, pages, alphaDescriptor(), beta)

	runner, err := NewRunner(f.deps)
	require.NoError(t, err)
	summary, err := runner.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "run-1", summary.RunID)
	assert.Equal(t, 4, summary.Records)
	assert.Equal(t, "file:///tmp/scholarships.json", summary.SnapshotURI)
	assert.Equal(t, []string{"gs://bucket/runs/run-1.json"}, summary.Mirrors)
	assert.Len(t, summary.Sources, 2)
	assert.Empty(t, summary.FailedSources)
	assert.Empty(t, summary.SinkErrors)

	require.Len(t, f.store.saved, 1)
	saved := f.store.saved[0]
	require.Len(t, saved, 4)
	assert.Equal(t, "Beasiswa Beta", saved[0].Title, "latest deadline first")
	assert.Equal(t, "Beasiswa Satu", saved[1].Title)
	assert.Equal(t, record.Unknown, saved[3].DatePosted)

	decoded, err := record.DecodeJSON(f.mirror.data)
	require.NoError(t, err)
	assert.Equal(t, saved, decoded)
	assert.Equal(t, "run-1", f.archive.runID)
	assert.Len(t, f.archive.records, 4)

	events := f.recorder.Events()
	require.Len(t, events, 1)
	assert.Equal(t, "run-1", events[0].RunID)
	assert.Equal(t, 4, events[0].Records)
	assert.Equal(t, 2, events[0].Sources)
}

func TestRunnerReportsFailedSources(t *testing.T) {
	t.Parallel()

	pages := alphaPages()
	delete(pages, "https://alpha.test/list")
	f := newRunnerFixture(t, pages)
	runner, err := NewRunner(f.deps)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err, "per-source failures do not fail the run")
	assert.Equal(t, []string{"alpha"}, summary.FailedSources)
	assert.Zero(t, summary.Records)
	require.Len(t, f.store.saved, 1)
	assert.Empty(t, f.store.saved[0])
	assert.Equal(t, []string{"alpha"}, f.recorder.Events()[0].FailedSources)
}

func TestRunnerPersistFailureIsFatal(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, alphaPages())
	f.store.err = errors.New("disk full")
	runner, err := NewRunner(f.deps)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "persist snapshot")
	assert.Empty(t, summary.SnapshotURI)
	assert.Empty(t, f.recorder.Events(), "sinks only see persisted snapshots")
	assert.Empty(t, f.archive.runID)
}

func TestRunnerSinkFailuresAreNonFatal(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, alphaPages())
	f.mirror.err = errors.New("bucket missing")
	f.archive.err = errors.New("db down")
	f.deps.Publishers = append(f.deps.Publishers, failingPublisher{})
	runner, err := NewRunner(f.deps)
	require.NoError(t, err)

	summary, err := runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Records)
	assert.Equal(t, []string{
		"fake-mirror: bucket missing",
		"fake-archive: db down",
		"broken: broker unavailable",
	}, summary.SinkErrors)
	assert.Len(t, f.recorder.Events(), 1, "healthy publishers still run")
}

func TestRunnerCanceledKeepsPreviousSnapshot(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, alphaPages())
	runner, err := NewRunner(f.deps)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = runner.Run(ctx)
	require.ErrorIs(t, err, ErrCanceled)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, f.store.saved)
}

func TestRunnerFactoryError(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, nil)
	f.deps.Pipelines = func() (*Pipeline, error) { return nil, errors.New("bad sources") }
	runner, err := NewRunner(f.deps)
	require.NoError(t, err)

	_, err = runner.RunWithID(context.Background(), "run-2")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build pipeline")
}

func TestNewRunnerValidatesDeps(t *testing.T) {
	t.Parallel()

	f := newRunnerFixture(t, nil)
	for name, mutate := range map[string]func(*RunnerDeps){
		"pipelines": func(d *RunnerDeps) { d.Pipelines = nil },
		"store":     func(d *RunnerDeps) { d.Store = nil },
		"ids":       func(d *RunnerDeps) { d.IDs = nil },
		"clock":     func(d *RunnerDeps) { d.Clock = nil },
	} {
		deps := f.deps
		mutate(&deps)
		_, err := NewRunner(deps)
		assert.Error(t, err, name)
	}
}
