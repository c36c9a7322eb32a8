package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/JakeFAU/scholarship-aggregator/internal/source"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/local"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadDefaultsUseBuiltinSources(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Crawler.UserAgent != DefaultUserAgent || !cfg.Crawler.RespectRobots {
		t.Fatalf("unexpected crawler defaults: %+v", cfg.Crawler)
	}
	if lo, hi := cfg.DelayRange(); lo != 800*time.Millisecond || hi != 1600*time.Millisecond {
		t.Fatalf("DelayRange() = %v, %v", lo, hi)
	}
	if cfg.RequestTimeout() != 15*time.Second || cfg.HTTP.MaxAttempts != 3 {
		t.Fatalf("unexpected http defaults: %+v", cfg.HTTP)
	}
	if cfg.Output.Path != "data/scholarships.json" {
		t.Fatalf("unexpected output path %q", cfg.Output.Path)
	}
	if len(cfg.Sources) != len(source.Builtin()) {
		t.Fatalf("expected builtin sources, got %d", len(cfg.Sources))
	}
	if len(cfg.Promo.Hosts) == 0 || cfg.Promo.Titles[0] != "DAFTAR SEKARANG" {
		t.Fatalf("expected default promo filter, got %+v", cfg.Promo)
	}
	if cfg.Tracing.Exporter != "none" {
		t.Fatalf("unexpected tracing exporter %q", cfg.Tracing.Exporter)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	sourcesPath := writeFile(t, dir, "sources.yaml", `
- name: extra.test
  base_url: https://extra.test
  listing: ["article"]
  title_link: ["h2 a"]
  render: headless
`)
	path := writeFile(t, dir, "config.yaml", `
server:
  port: 9090
  api_key: secret
crawler:
  user_agent: test-agent
  respect_robots: false
  delay_min_ms: 100
  delay_max_ms: 200
  detail_workers: 2
  headers:
    accept-language: id-ID
http:
  timeout_seconds: 45
  max_attempts: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
output:
  path: /tmp/out.json
sources_file: `+sourcesPath+`
sources:
  - name: inline.test
    base_url: https://inline.test
    listing_path: /beasiswa/
    listing: ["article"]
    title_link: ["h2 a"]
    excerpt_length: 120
storage:
  gcs:
    bucket: bucket
db:
  dsn: postgres://localhost/db
pubsub:
  project_id: proj
  topic: snapshots
redis:
  addr: localhost:6379
logging:
  development: true
  level: debug
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 || cfg.Server.APIKey != "secret" {
		t.Fatalf("expected server overrides, got %+v", cfg.Server)
	}
	if cfg.Crawler.RespectRobots || cfg.Crawler.DetailWorkers != 2 {
		t.Fatalf("expected crawler overrides to apply: %+v", cfg.Crawler)
	}
	if cfg.Crawler.Headers["accept-language"] != "id-ID" {
		t.Fatalf("expected headers, got %+v", cfg.Crawler.Headers)
	}
	if lo, hi := cfg.Backoff(); lo != 100*time.Millisecond || hi != 500*time.Millisecond {
		t.Fatalf("Backoff() = %v, %v", lo, hi)
	}
	if got := cfg.RequestTimeout(); got != 45*time.Second {
		t.Fatalf("expected request timeout 45s, got %v", got)
	}
	if len(cfg.Sources) != 2 || cfg.Sources[0].Name != "inline.test" || cfg.Sources[1].Name != "extra.test" {
		t.Fatalf("expected inline then file sources, got %+v", cfg.Sources)
	}
	if cfg.Sources[0].ExcerptLength != 120 || cfg.Sources[1].Render != source.RenderHeadless {
		t.Fatalf("expected descriptor fields to decode: %+v", cfg.Sources)
	}
	if cfg.Storage.GCS.Bucket != "bucket" || cfg.Storage.GCS.Prefix != "scholarships" {
		t.Fatalf("unexpected gcs config %+v", cfg.Storage.GCS)
	}
	if cfg.Redis.Stream != "scholarships:snapshots" || cfg.Redis.MaxLen != 1000 {
		t.Fatalf("unexpected redis config %+v", cfg.Redis)
	}
	if !cfg.Logging.Development || cfg.Logging.Level != "debug" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
}

// Not parallel: t.Setenv.
func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AGGREGATOR_HTTP_TIMEOUT_SECONDS", "30")
	t.Setenv("AGGREGATOR_CRAWLER_DELAY_MAX_MS", "2500")
	t.Setenv("AGGREGATOR_OUTPUT_PATH", "/tmp/env.json")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.HTTP.TimeoutSeconds != 30 || cfg.Crawler.DelayMaxMs != 2500 || cfg.Output.Path != "/tmp/env.json" {
		t.Fatalf("expected env overrides, got http=%+v crawler=%+v output=%+v", cfg.HTTP, cfg.Crawler, cfg.Output)
	}
}

func TestLoadRejectsInvalidFile(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "crawler:\n  delay_min_ms: 2000\n  delay_max_ms: 1000\n")
	_, err := Load(path)
	if err == nil || !strings.Contains(err.Error(), "crawler.delay_min_ms") {
		t.Fatalf("expected delay validation error, got %v", err)
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestParseSourcesRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	_, err := ParseSources([]byte("- name: x\n  base_url: https://x.test\n  listings: [article]\n"))
	if err == nil || !strings.Contains(err.Error(), "listings") {
		t.Fatalf("expected unknown field error, got %v", err)
	}

	descs, err := ParseSources(nil)
	if err != nil || descs != nil {
		t.Fatalf("ParseSources(empty) = %v, %v", descs, err)
	}

	if _, err := LoadSources(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for missing sources file")
	}
}

func TestConfigValidateErrors(t *testing.T) {
	t.Parallel()

	base := Config{
		Crawler: CrawlerConfig{
			UserAgent:            "ua",
			DelayMinMs:           10,
			DelayMaxMs:           20,
			DetailWorkers:        1,
			SourceTimeoutSeconds: 60,
		},
		HTTP:    HTTPConfig{TimeoutSeconds: 10, MaxAttempts: 1},
		Output:  local.Config{Path: "out.json"},
		Server:  ServerConfig{Port: 8080},
		Sources: source.Builtin(),
	}
	if err := base.Validate(); err != nil {
		t.Fatalf("base config invalid: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"delay order", func(c *Config) { c.Crawler.DelayMinMs = 30 }, "crawler.delay_min_ms"},
		{"negative delay", func(c *Config) { c.Crawler.DelayMinMs = -1 }, "crawler.delay_min_ms"},
		{"burst", func(c *Config) { c.Crawler.MaxRPS = 2 }, "crawler.burst"},
		{"workers", func(c *Config) { c.Crawler.DetailWorkers = 0 }, "crawler.detail_workers"},
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "http.timeout_seconds"},
		{"attempts", func(c *Config) { c.HTTP.MaxAttempts = 0 }, "http.max_attempts"},
		{"backoff", func(c *Config) { c.HTTP.BackoffInitialMs = 10 }, "http.backoff_max_ms"},
		{"headless", func(c *Config) { c.Headless.Enabled = true }, "headless.max_parallel"},
		{"output", func(c *Config) { c.Output.Path = " " }, "output.path"},
		{"pubsub", func(c *Config) { c.PubSub.Topic = "t" }, "pubsub.project_id"},
		{"redis", func(c *Config) { c.Redis.Addr = "localhost:6379" }, "redis.stream"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"tracing", func(c *Config) { c.Tracing.Exporter = "jaeger" }, "tracing.exporter"},
		{"level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"no sources", func(c *Config) { c.Sources = nil }, "sources"},
		{"duplicate source", func(c *Config) {
			c.Sources = append(source.Builtin(), source.Builtin()[0])
		}, "unique names"},
		{"bad source", func(c *Config) {
			c.Sources = []source.Descriptor{{Name: "x", BaseURL: "ftp://x"}}
		}, "source x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			cfg.Sources = append([]source.Descriptor(nil), base.Sources...)
			tt.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}
