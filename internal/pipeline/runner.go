package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-aggregator/internal/merge"
	"github.com/JakeFAU/scholarship-aggregator/internal/metrics"
	"github.com/JakeFAU/scholarship-aggregator/internal/publisher"
	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// Run outcomes reported to metrics.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
)

var tracer = otel.Tracer("github.com/JakeFAU/scholarship-aggregator/internal/pipeline")

// ErrCanceled is returned when the run context ends before the snapshot is persisted.
var ErrCanceled = errors.New("run canceled")

// Persister writes the primary snapshot and returns its URI.
type Persister interface {
	Save(ctx context.Context, records []record.Record) (string, error)
}

// Mirror copies the encoded snapshot somewhere else.
type Mirror interface {
	Name() string
	Mirror(ctx context.Context, runID string, data []byte) (string, error)
}

// Archive keeps a history of every record seen.
type Archive interface {
	Name() string
	Store(ctx context.Context, runID string, seenAt time.Time, records []record.Record) error
}

// IDGenerator produces run identifiers.
type IDGenerator interface {
	NewID() (string, error)
}

// Factory builds the Pipeline for one run. Each run gets fresh politeness state.
type Factory func() (*Pipeline, error)

// RunnerDeps wires a Runner. Mirrors, Archives and Publishers are optional.
type RunnerDeps struct {
	Pipelines  Factory
	Store      Persister
	Mirrors    []Mirror
	Archives   []Archive
	Publishers []publisher.Publisher
	IDs        IDGenerator
	Clock      Clock
	Logger     *zap.Logger
}

// Summary describes a finished run.
type Summary struct {
	RunID         string         `json:"run_id"`
	StartedAt     time.Time      `json:"started_at"`
	FinishedAt    time.Time      `json:"finished_at"`
	DurationMS    int64          `json:"duration_ms"`
	Records       int            `json:"records"`
	SnapshotURI   string         `json:"snapshot_uri"`
	Mirrors       []string       `json:"mirrors,omitempty"`
	Sources       []SourceReport `json:"sources"`
	FailedSources []string       `json:"failed_sources,omitempty"`
	SinkErrors    []string       `json:"sink_errors,omitempty"`
}

// Runner executes complete runs: pipeline, merge, persist, fan-out.
type Runner struct {
	deps RunnerDeps
}

// NewRunner validates deps and returns a Runner.
func NewRunner(deps RunnerDeps) (*Runner, error) {
	switch {
	case deps.Pipelines == nil:
		return nil, fmt.Errorf("pipeline factory is required")
	case deps.Store == nil:
		return nil, fmt.Errorf("snapshot store is required")
	case deps.IDs == nil:
		return nil, fmt.Errorf("id generator is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	return &Runner{deps: deps}, nil
}

// NewRunID returns a fresh run identifier.
func (r *Runner) NewRunID() (string, error) {
	id, err := r.deps.IDs.NewID()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id, nil
}

// Run executes one run under a generated id.
func (r *Runner) Run(ctx context.Context) (Summary, error) {
	id, err := r.NewRunID()
	if err != nil {
		return Summary{}, err
	}
	return r.RunWithID(ctx, id)
}

// RunWithID executes one run. The returned error is non-nil only when the
// snapshot could not be produced; per-source and sink failures are reported in
// the Summary.
func (r *Runner) RunWithID(ctx context.Context, runID string) (summary Summary, err error) {
	logger := r.deps.Logger.With(zap.String("run_id", runID))
	started := r.deps.Clock.Now()
	summary = Summary{RunID: runID, StartedAt: started}
	ctx, span := tracer.Start(ctx, "aggregator.run", trace.WithAttributes(attribute.String("run_id", runID)))
	defer func() {
		span.SetAttributes(
			attribute.Int("records", summary.Records),
			attribute.Int("failed_sources", len(summary.FailedSources)),
		)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	defer func() {
		summary.FinishedAt = r.deps.Clock.Now()
		elapsed := summary.FinishedAt.Sub(started)
		summary.DurationMS = elapsed.Milliseconds()
		outcome := OutcomeSucceeded
		if err != nil {
			outcome = OutcomeFailed
			logger.Error("run failed", zap.Error(err))
		} else {
			logger.Info("run finished",
				zap.Int("records", summary.Records),
				zap.Strings("failed_sources", summary.FailedSources),
				zap.Duration("duration", elapsed),
			)
		}
		metrics.ObserveRun(outcome, elapsed)
	}()

	p, err := r.deps.Pipelines()
	if err != nil {
		return summary, fmt.Errorf("build pipeline: %w", err)
	}
	logger.Info("run started", zap.Strings("sources", p.Sources()))

	result := p.Run(ctx)
	summary.Sources = result.Reports
	summary.FailedSources = result.Failed()
	if ctx.Err() != nil {
		return summary, fmt.Errorf("%w: %w", ErrCanceled, ctx.Err())
	}

	records := merge.Merge(result.Records...)
	summary.Records = len(records)

	uri, err := r.deps.Store.Save(ctx, records)
	if err != nil {
		return summary, fmt.Errorf("persist snapshot: %w", err)
	}
	summary.SnapshotURI = uri

	r.fanOut(ctx, &summary, records, logger)
	return summary, nil
}

// fanOut delivers the persisted snapshot to every secondary sink. Failures are
// recorded on the summary and never fail the run.
func (r *Runner) fanOut(ctx context.Context, summary *Summary, records []record.Record, logger *zap.Logger) {
	sinkFailed := func(sink string, err error) {
		logger.Warn("sink failed", zap.String("sink", sink), zap.Error(err))
		metrics.ObserveSinkFailure(sink)
		summary.SinkErrors = append(summary.SinkErrors, fmt.Sprintf("%s: %v", sink, err))
	}

	if len(r.deps.Mirrors) > 0 {
		data, err := record.EncodeJSON(records)
		if err != nil {
			sinkFailed("encode", err)
		} else {
			for _, m := range r.deps.Mirrors {
				uri, err := m.Mirror(ctx, summary.RunID, data)
				if err != nil {
					sinkFailed(m.Name(), err)
					continue
				}
				summary.Mirrors = append(summary.Mirrors, uri)
			}
		}
	}

	seenAt := r.deps.Clock.Now()
	for _, a := range r.deps.Archives {
		if err := a.Store(ctx, summary.RunID, seenAt, records); err != nil {
			sinkFailed(a.Name(), err)
		}
	}

	event := publisher.SnapshotEvent{
		RunID:         summary.RunID,
		URI:           summary.SnapshotURI,
		Records:       summary.Records,
		Sources:       len(summary.Sources),
		FailedSources: summary.FailedSources,
		FinishedAt:    seenAt,
	}
	for _, pub := range r.deps.Publishers {
		msgID, err := pub.Publish(ctx, event)
		if err != nil {
			sinkFailed(pub.Name(), err)
			continue
		}
		logger.Debug("snapshot event published", zap.String("publisher", pub.Name()), zap.String("message_id", msgID))
	}
}
