// Package app initializes and holds long-lived application services, acting as a dependency injection container.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gcstorage "cloud.google.com/go/storage"
	gpubsub "cloud.google.com/go/pubsub"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/scholarship-aggregator/internal/clock/system"
	"github.com/JakeFAU/scholarship-aggregator/internal/config"
	"github.com/JakeFAU/scholarship-aggregator/internal/fetcher"
	collyfetcher "github.com/JakeFAU/scholarship-aggregator/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/scholarship-aggregator/internal/fetcher/headless"
	"github.com/JakeFAU/scholarship-aggregator/internal/headless/detector"
	"github.com/JakeFAU/scholarship-aggregator/internal/id/uuid"
	"github.com/JakeFAU/scholarship-aggregator/internal/pipeline"
	"github.com/JakeFAU/scholarship-aggregator/internal/policy/ratelimit"
	"github.com/JakeFAU/scholarship-aggregator/internal/politeness"
	"github.com/JakeFAU/scholarship-aggregator/internal/publisher"
	pubmemory "github.com/JakeFAU/scholarship-aggregator/internal/publisher/memory"
	pubsubpublisher "github.com/JakeFAU/scholarship-aggregator/internal/publisher/pubsub"
	redispublisher "github.com/JakeFAU/scholarship-aggregator/internal/publisher/redis"
	"github.com/JakeFAU/scholarship-aggregator/internal/source"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/gcs"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/local"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/postgres"
	"github.com/JakeFAU/scholarship-aggregator/internal/telemetry"
)

// App holds all the shared, long-lived services for the application.
// It is initialized once at startup by the CLI and closed when the command finishes.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	adapters []*source.Adapter
	snapshot *local.SnapshotStore
	events   *pubmemory.Recorder
	runner   *pipeline.Runner

	static   *collyfetcher.Transport
	headless *headlessfetcher.Transport
	detector *detector.Heuristic
	headers  http.Header

	closers []func()
}

// NewApp creates the services described by cfg. Optional sinks are created only
// when configured; any failure closes what was already opened.
func NewApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{
		cfg:      cfg,
		logger:   logger,
		events:   pubmemory.New(cfg.Server.EventHistory),
		detector: detector.NewHeuristic(cfg.Headless.PromotionThresh),
		headers:  make(http.Header, len(cfg.Crawler.Headers)),
	}
	for k, v := range cfg.Crawler.Headers {
		a.headers.Set(k, v)
	}
	if err := a.init(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// NewReadOnly creates only the source adapters and the local snapshot store.
// No network clients, tracing or browser are started and Runner returns nil;
// commands that just inspect configuration or the snapshot use it.
func NewReadOnly(_ context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}
	if err := a.initCatalog(); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *App) initCatalog() error {
	promo := source.NewPromoFilter(a.cfg.Promo)
	for _, desc := range a.cfg.Sources {
		a.adapters = append(a.adapters, source.New(desc, promo))
	}
	snapshot, err := local.New(a.cfg.Output)
	if err != nil {
		return fmt.Errorf("init snapshot store: %w", err)
	}
	a.snapshot = snapshot
	return nil
}

func (a *App) init(ctx context.Context) error {
	l := a.logger
	l.Info("Initializing application services...")

	if exp := a.cfg.Tracing.Exporter; exp != "" && exp != telemetry.ExporterNone {
		tp, err := telemetry.InitTracerProvider(ctx, telemetry.Config{
			Exporter:    exp,
			ServiceName: a.cfg.Tracing.ServiceName,
		})
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				l.Warn("Error flushing traces", zap.Error(err))
			}
		})
	}

	if err := a.initCatalog(); err != nil {
		return err
	}

	a.static = collyfetcher.New(collyfetcher.Config{
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   a.cfg.RequestTimeout(),
	})
	if a.cfg.Headless.Enabled {
		transport, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			MaxParallel:       a.cfg.Headless.MaxParallel,
			UserAgent:         a.cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(a.cfg.Headless.NavTimeoutSec) * time.Second,
		})
		if err != nil {
			l.Warn("headless transport init failed; continuing with static fetching only", zap.Error(err))
		} else {
			a.headless = transport
			a.closers = append(a.closers, transport.Close)
		}
	}

	var mirrors []pipeline.Mirror
	if bucket := a.cfg.Storage.GCS.Bucket; bucket != "" {
		l.Info("Using GCS snapshot mirror", zap.String("bucket", bucket))
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create storage client: %w", err)
		}
		mirror, err := gcs.New(client, gcs.Config{Bucket: bucket, Prefix: a.cfg.Storage.GCS.Prefix})
		if err != nil {
			_ = client.Close()
			return fmt.Errorf("init gcs mirror: %w", err)
		}
		a.closers = append(a.closers, func() {
			if err := mirror.Close(); err != nil {
				l.Warn("Error closing storage client", zap.Error(err))
			}
		})
		mirrors = append(mirrors, mirror)
	}

	var archives []pipeline.Archive
	if dsn := a.cfg.DB.DSN; dsn != "" {
		l.Info("Connecting to PostgreSQL...")
		archive, err := postgres.New(ctx, postgres.Config{
			DSN:             dsn,
			Table:           a.cfg.DB.Table,
			MaxConns:        a.cfg.DB.MaxConns,
			MinConns:        a.cfg.DB.MinConns,
			MaxConnLifetime: time.Duration(a.cfg.DB.ConnMaxLifetimeMinutes) * time.Minute,
		})
		if err != nil {
			return fmt.Errorf("init postgres archive: %w", err)
		}
		a.closers = append(a.closers, archive.Close)
		if err := archive.EnsureSchema(ctx); err != nil {
			return fmt.Errorf("ensure archive schema: %w", err)
		}
		archives = append(archives, archive)
	}

	publishers := []publisher.Publisher{a.events}
	if a.cfg.PubSub.ProjectID != "" {
		l.Info("Connecting to GCP Pub/Sub", zap.String("topic", a.cfg.PubSub.Topic))
		client, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
		if err != nil {
			return fmt.Errorf("create pubsub client: %w", err)
		}
		pub := pubsubpublisher.New(client.Topic(a.cfg.PubSub.Topic))
		a.closers = append(a.closers, func() {
			pub.Stop()
			if err := client.Close(); err != nil {
				l.Warn("Error closing pubsub client", zap.Error(err))
			}
		})
		publishers = append(publishers, pub)
	}
	if addr := a.cfg.Redis.Addr; addr != "" {
		l.Info("Using Redis stream notifications", zap.String("addr", addr), zap.String("stream", a.cfg.Redis.Stream))
		client := goredis.NewClient(&goredis.Options{
			Addr:     addr,
			Password: a.cfg.Redis.Password,
			DB:       a.cfg.Redis.DB,
		})
		a.closers = append(a.closers, func() {
			if err := client.Close(); err != nil {
				l.Warn("Error closing redis client", zap.Error(err))
			}
		})
		pub, err := redispublisher.New(client, redispublisher.Config{
			Stream: a.cfg.Redis.Stream,
			MaxLen: a.cfg.Redis.MaxLen,
		})
		if err != nil {
			return fmt.Errorf("init redis publisher: %w", err)
		}
		publishers = append(publishers, pub)
	}

	runner, err := pipeline.NewRunner(pipeline.RunnerDeps{
		Pipelines:  a.NewPipeline,
		Store:      a.snapshot,
		Mirrors:    mirrors,
		Archives:   archives,
		Publishers: publishers,
		IDs:        uuid.NewGenerator(),
		Clock:      system.New(),
		Logger:     l,
	})
	if err != nil {
		return fmt.Errorf("init runner: %w", err)
	}
	a.runner = runner

	l.Info("Application services initialized successfully.",
		zap.Int("sources", len(a.adapters)),
		zap.Bool("headless", a.headless != nil),
		zap.Int("mirrors", len(mirrors)),
		zap.Int("archives", len(archives)),
		zap.Int("publishers", len(publishers)),
	)
	return nil
}

// NewPipeline builds a pipeline with fresh politeness state: a new robots cache
// and new per-host spacing.
func (a *App) NewPipeline() (*pipeline.Pipeline, error) {
	delayMin, delayMax := a.cfg.DelayRange()
	limiter, err := ratelimit.New(ratelimit.Config{
		DelayMin: delayMin,
		DelayMax: delayMax,
		MaxRPS:   a.cfg.Crawler.MaxRPS,
		Burst:    a.cfg.Crawler.Burst,
	})
	if err != nil {
		return nil, fmt.Errorf("init rate limiter: %w", err)
	}
	gate := politeness.New(politeness.Config{
		Respect:   a.cfg.Crawler.RespectRobots,
		UserAgent: a.cfg.Crawler.UserAgent,
		Timeout:   time.Duration(a.cfg.Crawler.RobotsTimeoutSeconds) * time.Second,
	}, a.logger.Named("robots"))

	backoffInitial, backoffMax := a.cfg.Backoff()
	fetchCfg := fetcher.Config{
		MaxAttempts:    a.cfg.HTTP.MaxAttempts,
		BackoffInitial: backoffInitial,
		BackoffMax:     backoffMax,
		MaxInFlight:    int64(a.cfg.Crawler.MaxInFlight),
		Headers:        a.headers,
	}
	// Static and headless fetches draw from one in-flight pool.
	if fetchCfg.MaxInFlight > 0 {
		fetchCfg.InFlight = semaphore.NewWeighted(fetchCfg.MaxInFlight)
	}
	deps := pipeline.Deps{
		Static:   fetcher.New(a.static, gate, limiter, fetchCfg, a.logger.Named("fetch")),
		Detector: a.detector,
		Clock:    system.New(),
		Logger:   a.logger,
	}
	if a.headless != nil {
		deps.Headless = fetcher.New(a.headless, gate, limiter, fetchCfg, a.logger.Named("headless"))
	}
	return pipeline.New(pipeline.Config{
		DetailWorkers: a.cfg.Crawler.DetailWorkers,
		SourceTimeout: a.cfg.SourceTimeout(),
	}, a.adapters, deps)
}

// Logger returns the shared zap logger.
func (a *App) Logger() *zap.Logger { return a.logger }

// Config returns the effective configuration.
func (a *App) Config() config.Config { return a.cfg }

// Runner executes aggregation runs. It is nil for a read-only App.
func (a *App) Runner() *pipeline.Runner { return a.runner }

// Snapshot returns the primary snapshot store.
func (a *App) Snapshot() *local.SnapshotStore { return a.snapshot }

// Events returns the in-memory log of published snapshot events.
func (a *App) Events() *pubmemory.Recorder { return a.events }

// Adapters returns the configured source adapters, disabled ones included.
func (a *App) Adapters() []*source.Adapter { return a.adapters }

// Close shuts down all services in reverse order of creation.
func (a *App) Close() {
	a.logger.Info("Shutting down application services...")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
