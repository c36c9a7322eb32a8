// Package pipeline runs every source, turns listing entries into records and
// hands the merged snapshot to the persister and secondary sinks.
package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/scholarship-aggregator/internal/dedupe"
	"github.com/JakeFAU/scholarship-aggregator/internal/extract"
	"github.com/JakeFAU/scholarship-aggregator/internal/fetcher"
	"github.com/JakeFAU/scholarship-aggregator/internal/metrics"
	"github.com/JakeFAU/scholarship-aggregator/internal/record"
	"github.com/JakeFAU/scholarship-aggregator/internal/source"
)

const (
	defaultDetailWorkers = 4
	defaultSourceTimeout = 5 * time.Minute
)

// Fetcher retrieves a page body.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Clock supplies record timestamps.
type Clock interface {
	Now() time.Time
}

// Detector flags listing bodies that need a headless render.
type Detector interface {
	LooksScriptRendered(body []byte) bool
}

// Config tunes a Pipeline.
type Config struct {
	DetailWorkers int
	SourceTimeout time.Duration
}

// Deps are the collaborators of a Pipeline. Headless and Detector are optional.
type Deps struct {
	Static   Fetcher
	Headless Fetcher
	Detector Detector
	Clock    Clock
	Logger   *zap.Logger
}

// SourceReport describes how one source fared.
type SourceReport struct {
	Source         string `json:"source"`
	ListingURL     string `json:"listing_url"`
	Entries        int    `json:"entries"`
	Records        int    `json:"records"`
	DetailFailures int    `json:"detail_failures"`
	Headless       bool   `json:"headless"`
	Error          string `json:"error,omitempty"`
	Err            error  `json:"-"`
}

// Failed reports whether the listing could not be processed or the source
// ran out of time.
func (r SourceReport) Failed() bool {
	return r.Err != nil
}

// Result holds per-source records in configuration order.
type Result struct {
	Records [][]record.Record
	Reports []SourceReport
}

// Failed returns the names of failed sources.
func (r Result) Failed() []string {
	var out []string
	for _, rep := range r.Reports {
		if rep.Failed() {
			out = append(out, rep.Source)
		}
	}
	return out
}

type sourceRunner struct {
	adapter   *source.Adapter
	extractor *extract.Extractor
}

// Pipeline is safe to Run repeatedly; it keeps no state between runs.
type Pipeline struct {
	sources []sourceRunner
	deps    Deps
	cfg     Config
}

// New builds a Pipeline. Disabled sources are skipped.
func New(cfg Config, adapters []*source.Adapter, deps Deps) (*Pipeline, error) {
	if deps.Static == nil {
		return nil, fmt.Errorf("static fetcher is required")
	}
	if deps.Clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if cfg.DetailWorkers <= 0 {
		cfg.DetailWorkers = defaultDetailWorkers
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = defaultSourceTimeout
	}
	p := &Pipeline{deps: deps, cfg: cfg}
	seen := make(map[string]bool, len(adapters))
	for _, a := range adapters {
		desc := a.Descriptor()
		if desc.Disabled {
			continue
		}
		if seen[desc.Name] {
			return nil, fmt.Errorf("duplicate source %q", desc.Name)
		}
		seen[desc.Name] = true
		p.sources = append(p.sources, sourceRunner{
			adapter: a,
			extractor: extract.New(extract.Config{
				DateLabels:       desc.DateLabels,
				DefaultOrganizer: desc.DefaultOrganizer,
			}),
		})
	}
	return p, nil
}

// Sources returns the names of the enabled sources in run order.
func (p *Pipeline) Sources() []string {
	out := make([]string, len(p.sources))
	for i, s := range p.sources {
		out[i] = s.adapter.Name()
	}
	return out
}

// Run processes every source in parallel and returns once all of them finished.
func (p *Pipeline) Run(ctx context.Context) Result {
	res := Result{
		Records: make([][]record.Record, len(p.sources)),
		Reports: make([]SourceReport, len(p.sources)),
	}
	var g errgroup.Group
	for i, src := range p.sources {
		g.Go(func() error {
			res.Records[i], res.Reports[i] = p.runSource(ctx, src)
			return nil
		})
	}
	_ = g.Wait()
	return res
}

func (p *Pipeline) runSource(ctx context.Context, src sourceRunner) ([]record.Record, SourceReport) {
	desc := src.adapter.Descriptor()
	logger := p.deps.Logger.With(zap.String("source", desc.Name))
	report := SourceReport{Source: desc.Name}

	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, p.cfg.SourceTimeout)
	defer cancel()
	ctx, span := tracer.Start(ctx, "aggregator.source", trace.WithAttributes(attribute.String("source", desc.Name)))
	defer span.End()

	records, err := p.collect(ctx, src, &report, logger)
	// Entries still pending at the deadline were dropped; the records that did
	// finish are kept but the source is reported as failed.
	if err == nil && ctx.Err() != nil && parent.Err() == nil {
		err = fmt.Errorf("source timed out: %w", ctx.Err())
	}
	if err != nil {
		report.Err = err
		report.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Warn("source failed", zap.Int("records", len(records)), zap.Error(err))
	} else {
		logger.Info("source finished",
			zap.Int("entries", report.Entries),
			zap.Int("records", len(records)),
			zap.Int("detail_failures", report.DetailFailures),
		)
	}
	report.Records = len(records)
	span.SetAttributes(attribute.Int("records", len(records)), attribute.Int("detail_failures", report.DetailFailures))
	metrics.ObserveSource(desc.Name, len(records), err != nil)
	return records, report
}

func (p *Pipeline) collect(
	ctx context.Context,
	src sourceRunner,
	report *SourceReport,
	logger *zap.Logger,
) ([]record.Record, error) {
	desc := src.adapter.Descriptor()
	listingURL, err := desc.ListingURL()
	if err != nil {
		return nil, err
	}
	report.ListingURL = listingURL

	entries, err := p.listEntries(ctx, src.adapter, listingURL, report, logger)
	if err != nil {
		return nil, err
	}
	report.Entries = len(entries)

	type slot struct {
		rec record.Record
		ok  bool
	}
	slots := make([]slot, len(entries))
	seen := dedupe.NewSet()
	var detailFailures atomic.Int32

	var g errgroup.Group
	g.SetLimit(p.cfg.DetailWorkers)
	for i, entry := range entries {
		if !seen.MarkIfNew(record.NewID(desc.Name, entry.Title, entry.Link)) {
			continue
		}
		g.Go(func() error {
			rec, ok, detailFailed := p.buildRecord(ctx, src, entry, logger)
			slots[i] = slot{rec: rec, ok: ok}
			if detailFailed {
				detailFailures.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	report.DetailFailures = int(detailFailures.Load())

	records := make([]record.Record, 0, len(entries))
	for _, s := range slots {
		if s.ok {
			records = append(records, s.rec)
		}
	}
	return records, nil
}

// listEntries fetches and parses the listing page, re-rendering it headless when
// the static body yields nothing and looks client-rendered.
func (p *Pipeline) listEntries(
	ctx context.Context,
	adapter *source.Adapter,
	listingURL string,
	report *SourceReport,
	logger *zap.Logger,
) ([]source.Entry, error) {
	desc := adapter.Descriptor()
	primary, headless := p.fetcherFor(desc)
	report.Headless = headless

	body, err := primary.Fetch(ctx, listingURL)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	entries, err := adapter.ListEntries(body, listingURL)
	if err != nil {
		return nil, fmt.Errorf("parse listing: %w", err)
	}
	if len(entries) > 0 || !p.shouldFallBack(desc, report.Headless, body) {
		return entries, nil
	}

	logger.Info("listing empty; retrying with headless renderer", zap.String("url", listingURL))
	rendered, err := p.deps.Headless.Fetch(ctx, listingURL)
	if err != nil {
		logger.Warn("headless listing fetch failed", zap.Error(err))
		return entries, nil
	}
	report.Headless = true
	entries, err = adapter.ListEntries(rendered, listingURL)
	if err != nil {
		return nil, fmt.Errorf("parse rendered listing: %w", err)
	}
	return entries, nil
}

func (p *Pipeline) shouldFallBack(desc source.Descriptor, usedHeadless bool, body []byte) bool {
	return desc.HeadlessFallback &&
		!usedHeadless &&
		p.deps.Headless != nil &&
		p.deps.Detector != nil &&
		p.deps.Detector.LooksScriptRendered(body)
}

// fetcherFor picks the transport for a source and reports whether it renders headless.
func (p *Pipeline) fetcherFor(desc source.Descriptor) (Fetcher, bool) {
	if desc.Render == source.RenderHeadless && p.deps.Headless != nil {
		return p.deps.Headless, true
	}
	return p.deps.Static, false
}

// buildRecord turns one entry into a record. ok is false when the entry must be
// omitted: the run was canceled or processing panicked.
func (p *Pipeline) buildRecord(
	ctx context.Context,
	src sourceRunner,
	entry source.Entry,
	logger *zap.Logger,
) (rec record.Record, ok bool, detailFailed bool) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("entry processing panicked", zap.String("url", entry.Link), zap.Any("panic", r))
			rec, ok = record.Record{}, false
		}
	}()

	desc := src.adapter.Descriptor()
	var detail source.Detail
	if !desc.SkipDetails {
		f, _ := p.fetcherFor(desc)
		body, err := f.Fetch(ctx, entry.Link)
		switch {
		case err == nil:
			parsed, parseErr := src.adapter.Detail(body)
			if parseErr != nil {
				logger.Warn("detail parse failed", zap.String("url", entry.Link), zap.Error(parseErr))
				detailFailed = true
			} else {
				detail = parsed
			}
		case fetcher.IsCanceled(err) || ctx.Err() != nil:
			return record.Record{}, false, false
		default:
			logger.Warn("detail fetch failed", zap.String("url", entry.Link), zap.Error(err))
			detailFailed = true
		}
	}

	timeMarker := detail.TimeMarker
	if timeMarker == "" {
		timeMarker = entry.TimeMarker
	}
	fields := src.extractor.Extract(extract.Input{
		Title:      entry.Title,
		Excerpt:    entry.Excerpt,
		Detail:     detail.Text,
		TimeMarker: timeMarker,
	})

	excerpt := entry.Excerpt
	if excerpt == "" {
		excerpt = detail.Text
	}
	return record.New(record.Fields{
		Source:       desc.Name,
		Title:        entry.Title,
		Link:         entry.Link,
		DatePosted:   fields.DatePosted,
		Excerpt:      extract.Excerpt(excerpt, desc.ExcerptLength),
		FullContent:  detail.Text,
		Organizer:    fields.Organizer,
		Location:     fields.Location,
		Category:     fields.Category,
		DegreeLevels: fields.DegreeLevels,
		FundingTypes: fields.FundingTypes,
	}, p.deps.Clock.Now()), true, detailFailed
}
