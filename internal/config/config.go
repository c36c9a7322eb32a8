// Package config loads and validates aggregator configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/scholarship-aggregator/internal/source"
	"github.com/JakeFAU/scholarship-aggregator/internal/storage/local"
)

// EnvPrefix prefixes every environment override, e.g. AGGREGATOR_HTTP_TIMEOUT_SECONDS=30.
const EnvPrefix = "AGGREGATOR"

// DefaultUserAgent identifies the aggregator to source sites.
const DefaultUserAgent = "Mozilla/5.0 (compatible; EduScraper/1.0; +https://example.com)"

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Crawler     CrawlerConfig       `mapstructure:"crawler"`
	HTTP        HTTPConfig          `mapstructure:"http"`
	Headless    HeadlessConfig      `mapstructure:"headless"`
	Output      local.Config        `mapstructure:"output"`
	SourcesFile string              `mapstructure:"sources_file"`
	Sources     []source.Descriptor `mapstructure:"sources"`
	Promo       source.PromoConfig  `mapstructure:"promo"`
	Storage     StorageConfig       `mapstructure:"storage"`
	DB          DBConfig            `mapstructure:"db"`
	PubSub      PubSubConfig        `mapstructure:"pubsub"`
	Redis       RedisConfig         `mapstructure:"redis"`
	Server      ServerConfig        `mapstructure:"server"`
	Logging     LoggingConfig       `mapstructure:"logging"`
	Tracing     TracingConfig       `mapstructure:"tracing"`
}

// CrawlerConfig governs politeness and pipeline concurrency.
type CrawlerConfig struct {
	UserAgent            string            `mapstructure:"user_agent"`
	RespectRobots        bool              `mapstructure:"respect_robots"`
	RobotsTimeoutSeconds int               `mapstructure:"robots_timeout_seconds"`
	DelayMinMs           int               `mapstructure:"delay_min_ms"`
	DelayMaxMs           int               `mapstructure:"delay_max_ms"`
	MaxRPS               float64           `mapstructure:"max_rps"`
	Burst                int               `mapstructure:"burst"`
	MaxInFlight          int               `mapstructure:"max_in_flight"`
	DetailWorkers        int               `mapstructure:"detail_workers"`
	SourceTimeoutSeconds int               `mapstructure:"source_timeout_seconds"`
	Headers              map[string]string `mapstructure:"headers"`
}

// HTTPConfig configures per-request timeouts and retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxAttempts      int `mapstructure:"max_attempts"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
}

// HeadlessConfig configures the headless rendering transport.
type HeadlessConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	MaxParallel     int  `mapstructure:"max_parallel"`
	NavTimeoutSec   int  `mapstructure:"nav_timeout_seconds"`
	PromotionThresh int  `mapstructure:"promotion_threshold"`
}

// StorageConfig groups remote snapshot mirrors.
type StorageConfig struct {
	GCS GCSConfig `mapstructure:"gcs"`
}

// GCSConfig enables the Cloud Storage mirror when Bucket is set.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// DBConfig enables the Postgres archive when DSN is set.
type DBConfig struct {
	DSN                    string `mapstructure:"dsn"`
	Table                  string `mapstructure:"table"`
	MaxConns               int32  `mapstructure:"max_conns"`
	MinConns               int32  `mapstructure:"min_conns"`
	ConnMaxLifetimeMinutes int    `mapstructure:"conn_max_lifetime_minutes"`
}

// PubSubConfig enables Pub/Sub notifications when both fields are set.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// RedisConfig enables stream notifications when Addr is set.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Stream   string `mapstructure:"stream"`
	MaxLen   int64  `mapstructure:"max_len"`
}

// ServerConfig controls the HTTP API.
type ServerConfig struct {
	Port              int    `mapstructure:"port"`
	APIKey            string `mapstructure:"api_key"`
	RunTimeoutMinutes int    `mapstructure:"run_timeout_minutes"`
	EventHistory      int    `mapstructure:"event_history"`
	RunHistory        int    `mapstructure:"run_history"`
}

// LoggingConfig toggles zap development features and the minimum level.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TracingConfig selects the OpenTelemetry span exporter: "none" or "stdout".
type TracingConfig struct {
	Exporter    string `mapstructure:"exporter"`
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from .env, an optional config file and the environment.
// Sources come from the inline list plus sources_file; when both are empty the
// built-in descriptors are used.
func Load(path string) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.SourcesFile != "" {
		fromFile, err := LoadSources(cfg.SourcesFile)
		if err != nil {
			return Config{}, err
		}
		cfg.Sources = append(cfg.Sources, fromFile...)
	}
	if len(cfg.Sources) == 0 {
		cfg.Sources = source.Builtin()
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	promo := source.DefaultPromo()

	v.SetDefault("crawler.user_agent", DefaultUserAgent)
	v.SetDefault("crawler.respect_robots", true)
	v.SetDefault("crawler.robots_timeout_seconds", 10)
	v.SetDefault("crawler.delay_min_ms", 800)
	v.SetDefault("crawler.delay_max_ms", 1600)
	v.SetDefault("crawler.max_rps", 0)
	v.SetDefault("crawler.burst", 1)
	v.SetDefault("crawler.max_in_flight", 8)
	v.SetDefault("crawler.detail_workers", 4)
	v.SetDefault("crawler.source_timeout_seconds", 300)
	v.SetDefault("http.timeout_seconds", 15)
	v.SetDefault("http.max_attempts", 3)
	v.SetDefault("http.backoff_initial_ms", 500)
	v.SetDefault("http.backoff_max_ms", 5000)
	v.SetDefault("headless.enabled", false)
	v.SetDefault("headless.max_parallel", 1)
	v.SetDefault("headless.nav_timeout_seconds", 25)
	v.SetDefault("headless.promotion_threshold", 2048)
	v.SetDefault("output.path", "data/scholarships.json")
	v.SetDefault("sources_file", "")
	v.SetDefault("promo.titles", promo.Titles)
	v.SetDefault("promo.hosts", promo.Hosts)
	v.SetDefault("promo.link_substrings", promo.LinkSubstrings)
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "scholarships")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table", "scholarships")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 0)
	v.SetDefault("db.conn_max_lifetime_minutes", 30)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.stream", "scholarships:snapshots")
	v.SetDefault("redis.max_len", 1000)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.api_key", "")
	v.SetDefault("server.run_timeout_minutes", 30)
	v.SetDefault("server.event_history", 50)
	v.SetDefault("server.run_history", 20)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("tracing.exporter", "none")
	v.SetDefault("tracing.service_name", "scholarship-aggregator")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch {
	case strings.TrimSpace(c.Crawler.UserAgent) == "":
		return fmt.Errorf("crawler.user_agent must be set")
	case c.Crawler.DelayMinMs < 0:
		return fmt.Errorf("crawler.delay_min_ms must be >= 0")
	case c.Crawler.DelayMinMs > c.Crawler.DelayMaxMs:
		return fmt.Errorf("crawler.delay_min_ms must be <= crawler.delay_max_ms")
	case c.Crawler.MaxRPS < 0:
		return fmt.Errorf("crawler.max_rps must be >= 0")
	case c.Crawler.MaxRPS > 0 && c.Crawler.Burst <= 0:
		return fmt.Errorf("crawler.burst must be > 0 when crawler.max_rps is set")
	case c.Crawler.MaxInFlight < 0:
		return fmt.Errorf("crawler.max_in_flight must be >= 0")
	case c.Crawler.DetailWorkers <= 0:
		return fmt.Errorf("crawler.detail_workers must be > 0")
	case c.Crawler.SourceTimeoutSeconds <= 0:
		return fmt.Errorf("crawler.source_timeout_seconds must be > 0")
	case c.HTTP.TimeoutSeconds <= 0:
		return fmt.Errorf("http.timeout_seconds must be > 0")
	case c.HTTP.MaxAttempts <= 0:
		return fmt.Errorf("http.max_attempts must be > 0")
	case c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs:
		return fmt.Errorf("http.backoff_max_ms must be >= http.backoff_initial_ms >= 0")
	case c.Headless.Enabled && c.Headless.MaxParallel <= 0:
		return fmt.Errorf("headless.max_parallel must be > 0 when headless is enabled")
	case strings.TrimSpace(c.Output.Path) == "":
		return fmt.Errorf("output.path must be set")
	case (c.PubSub.ProjectID == "") != (c.PubSub.Topic == ""):
		return fmt.Errorf("pubsub.project_id and pubsub.topic must be set together")
	case c.Redis.Addr != "" && c.Redis.Stream == "":
		return fmt.Errorf("redis.stream must be set when redis.addr is set")
	case c.Server.Port <= 0:
		return fmt.Errorf("server.port must be > 0")
	case c.Tracing.Exporter != "" && c.Tracing.Exporter != "none" && c.Tracing.Exporter != "stdout":
		return fmt.Errorf("tracing.exporter must be none or stdout")
	}
	if _, err := zapcore.ParseLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level must be one of debug, info, warn, error: %w", err)
	}
	return validateSources(c.Sources)
}

func validateSources(descs []source.Descriptor) error {
	if len(descs) == 0 {
		return fmt.Errorf("sources must contain at least one descriptor")
	}
	seen := make(map[string]bool, len(descs))
	for _, d := range descs {
		if err := d.Validate(); err != nil {
			return fmt.Errorf("sources: %w", err)
		}
		if seen[d.Name] {
			return fmt.Errorf("sources must have unique names: %q repeats", d.Name)
		}
		seen[d.Name] = true
	}
	return nil
}

// RequestTimeout is the per-request fetch timeout.
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}

// SourceTimeout bounds the work for one source.
func (c Config) SourceTimeout() time.Duration {
	return time.Duration(c.Crawler.SourceTimeoutSeconds) * time.Second
}

func millis(n int) time.Duration {
	return time.Duration(n) * time.Millisecond
}

// DelayRange returns the per-host spacing bounds.
func (c Config) DelayRange() (time.Duration, time.Duration) {
	return millis(c.Crawler.DelayMinMs), millis(c.Crawler.DelayMaxMs)
}

// Backoff returns the initial and maximum retry delays.
func (c Config) Backoff() (time.Duration, time.Duration) {
	return millis(c.HTTP.BackoffInitialMs), millis(c.HTTP.BackoffMaxMs)
}
