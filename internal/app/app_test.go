package app_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/scholarship-aggregator/internal/app"
	"github.com/JakeFAU/scholarship-aggregator/internal/config"
	"github.com/JakeFAU/scholarship-aggregator/internal/source"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/local"
)

func testConfig(t *testing.T, sources ...source.Descriptor) config.Config {
	t.Helper()
	return config.Config{
		Crawler: config.CrawlerConfig{
			UserAgent:            config.DefaultUserAgent,
			RobotsTimeoutSeconds: 5,
			DelayMinMs:           1,
			DelayMaxMs:           2,
			MaxInFlight:          4,
			DetailWorkers:        2,
			SourceTimeoutSeconds: 30,
		},
		HTTP: config.HTTPConfig{
			TimeoutSeconds:   5,
			MaxAttempts:      1,
			BackoffInitialMs: 1,
			BackoffMaxMs:     2,
		},
		Output:  local.Config{Path: filepath.Join(t.TempDir(), "scholarships.json")},
		Sources: sources,
		Promo:   source.DefaultPromo(),
		Server:  config.ServerConfig{EventHistory: 5},
	}
}

func TestNewAppLocalOnly(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, source.Builtin()...)
	a, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Runner())
	assert.NotNil(t, a.Snapshot())
	assert.NotNil(t, a.Events())
	assert.Len(t, a.Adapters(), len(cfg.Sources))
	assert.Equal(t, cfg.Output.Path, a.Snapshot().Path())

	p, err := a.NewPipeline()
	require.NoError(t, err)
	enabled := 0
	for _, desc := range cfg.Sources {
		if !desc.Disabled {
			enabled++
		}
	}
	assert.Len(t, p.Sources(), enabled)
}

func TestNewAppRejectsMissingOutput(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Output.Path = ""
	_, err := app.NewApp(context.Background(), cfg, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init snapshot store")
}

func TestNewAppRejectsBadRedisConfig(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}
	_, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init redis publisher")
}

func TestAppRunWritesSnapshot(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	mux.HandleFunc("/beasiswa", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><body>
<article><h2><a href="%s/lpdp">Beasiswa LPDP 2026</a></h2><p class="summary">Pendaftaran dibuka</p></article>
</body></html>`, srv.URL)
	})
	mux.HandleFunc("/lpdp", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body><div class="entry-content"><p>Deadline: 12 Januari 2026</p>
<p>Program S2 fully funded.</p></div></body></html>`)
	})

	cfg := testConfig(t, source.Descriptor{
		Name:        "local",
		BaseURL:     srv.URL,
		ListingPath: "/beasiswa",
		Listing:     []string{"article"},
		TitleLink:   []string{"h2 a"},
		Excerpt:     []string{".summary"},
	}.WithDefaults())
	a, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	summary, err := a.Runner().Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Records)
	assert.Empty(t, summary.FailedSources)

	records, err := a.Snapshot().Load(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Beasiswa LPDP 2026", records[0].Title)
	assert.Equal(t, srv.URL+"/lpdp", records[0].Link)
	assert.Contains(t, records[0].DegreeLevels, "S2")

	events := a.Events().Events()
	require.Len(t, events, 1)
	assert.Equal(t, summary.RunID, events[0].RunID)
}

func TestNewAppRejectsUnknownTraceExporter(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t)
	cfg.Tracing = config.TracingConfig{Exporter: "zipkin"}
	_, err := app.NewApp(context.Background(), cfg, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "init tracing")
}

func TestNewReadOnlySkipsNetworkServices(t *testing.T) {
	t.Parallel()

	cfg := testConfig(t, source.Builtin()...)
	cfg.Tracing = config.TracingConfig{Exporter: "zipkin"}
	cfg.Redis = config.RedisConfig{Addr: "127.0.0.1:1"}
	cfg.Headless.Enabled = true
	a, err := app.NewReadOnly(context.Background(), cfg, zap.NewNop())
	require.NoError(t, err)
	defer a.Close()

	assert.Nil(t, a.Runner())
	assert.Len(t, a.Adapters(), len(cfg.Sources))
	assert.Equal(t, cfg.Output.Path, a.Snapshot().Path())
}
