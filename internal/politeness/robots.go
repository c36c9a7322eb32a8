// Package politeness decides whether a URL may be fetched under its host's robots.txt.
package politeness

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/scholarship-aggregator/internal/metrics"
)

const (
	defaultRobotsTimeout = 10 * time.Second
	maxRobotsBytes       = 1 << 20
)

// Gate reports whether a URL may be fetched.
type Gate interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Config controls robots handling.
type Config struct {
	Respect   bool
	UserAgent string
	// Client overrides the HTTP client used for robots.txt; Timeout is ignored when set.
	Client  *http.Client
	Timeout time.Duration
}

// New builds a Gate. A gate caches per-host policy for its whole lifetime, so
// callers build one per run.
func New(cfg Config, logger *zap.Logger) Gate {
	if !cfg.Respect {
		return AllowAll{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	client := cfg.Client
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultRobotsTimeout
		}
		client = &http.Client{Timeout: timeout}
	}
	return &RobotsGate{
		client:    client,
		userAgent: cfg.UserAgent,
		logger:    logger,
	}
}

// AllowAll permits every URL.
type AllowAll struct{}

// Allowed implements Gate.
func (AllowAll) Allowed(context.Context, string) bool { return true }

// RobotsGate enforces robots.txt directives per host.
type RobotsGate struct {
	client    *http.Client
	userAgent string
	logger    *zap.Logger

	cache  sync.Map
	flight singleflight.Group
}

// Allowed implements Gate. Unparseable URLs are denied; robots retrieval
// failures allow the request.
func (r *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		metrics.ObserveRobots(metrics.RobotsDenied)
		return false
	}
	data := r.policy(ctx, parsed)
	group := data.FindGroup(r.userAgent)
	if group == nil {
		metrics.ObserveRobots(metrics.RobotsAllowed)
		return true
	}
	target := parsed.EscapedPath()
	if target == "" {
		target = "/"
	}
	if parsed.RawQuery != "" {
		target += "?" + parsed.RawQuery
	}
	if !group.Test(target) {
		metrics.ObserveRobots(metrics.RobotsDenied)
		return false
	}
	metrics.ObserveRobots(metrics.RobotsAllowed)
	return true
}

// policy returns the cached robots data for the host, fetching it once. The
// shared fetch is detached from the caller's cancellation and bounded by the
// client timeout; a caller whose ctx ends first gets allow-all without caching.
func (r *RobotsGate) policy(ctx context.Context, parsed *url.URL) *robotstxt.RobotsData {
	hostKey := strings.ToLower(parsed.Host)
	if cached, ok := r.cache.Load(hostKey); ok {
		return cached.(*robotstxt.RobotsData)
	}
	fetchCtx := context.WithoutCancel(ctx)
	ch := r.flight.DoChan(hostKey, func() (any, error) {
		if cached, ok := r.cache.Load(hostKey); ok {
			return cached, nil
		}
		data, err := r.fetch(fetchCtx, parsed)
		if err != nil {
			r.logger.Warn("robots fetch failed; allowing access", zap.String("host", hostKey), zap.Error(err))
			metrics.ObserveRobots(metrics.RobotsFailOpen)
			data = allowAllData()
		}
		r.cache.Store(hostKey, data)
		return data, nil
	})
	select {
	case res := <-ch:
		return res.Val.(*robotstxt.RobotsData)
	case <-ctx.Done():
		return allowAllData()
	}
}

func (r *RobotsGate) fetch(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	robotsURL := url.URL{Scheme: parsed.Scheme, Host: parsed.Host, Path: "/robots.txt"}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("new robots request: %w", err)
	}
	if r.userAgent != "" {
		req.Header.Set("User-Agent", r.userAgent)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch robots: %w", err)
	}
	defer func() {
		if cerr := resp.Body.Close(); cerr != nil {
			r.logger.Debug("Failed to close robots response body", zap.Error(cerr))
		}
	}()
	if resp.StatusCode >= http.StatusInternalServerError {
		return nil, fmt.Errorf("fetch robots: status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxRobotsBytes))
	if err != nil {
		return nil, fmt.Errorf("read robots body: %w", err)
	}
	data, err := robotstxt.FromStatusAndBytes(resp.StatusCode, body)
	if err != nil {
		return nil, fmt.Errorf("parse robots: %w", err)
	}
	return data, nil
}

func allowAllData() *robotstxt.RobotsData {
	// A missing robots.txt means no restrictions.
	data, _ := robotstxt.FromStatusAndBytes(http.StatusNotFound, nil)
	return data
}
