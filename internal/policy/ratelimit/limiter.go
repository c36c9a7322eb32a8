// Package ratelimit spaces requests per host with a randomized gap and optionally
// caps the overall request rate.
package ratelimit

import (
	"context"
	"fmt"
	"math/rand/v2"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/scholarship-aggregator/internal/metrics"
)

// Config holds rate limiter configuration.
type Config struct {
	// DelayMin and DelayMax bound the random gap between two requests to one host.
	DelayMin time.Duration
	DelayMax time.Duration
	// MaxRPS caps requests per second across all hosts. Zero disables the cap.
	MaxRPS float64
	Burst  int
}

// Limiter hands out per-host request slots. It is shared by every worker of a run.
type Limiter struct {
	mu       sync.Mutex
	next     map[string]time.Time
	delayMin time.Duration
	delayMax time.Duration
	global   *rate.Limiter
}

// New creates a Limiter.
func New(cfg Config) (*Limiter, error) {
	if cfg.DelayMin < 0 || cfg.DelayMax < 0 {
		return nil, fmt.Errorf("rate limit delays must be >= 0")
	}
	if cfg.DelayMin > cfg.DelayMax {
		return nil, fmt.Errorf("rate limit delay_min %s exceeds delay_max %s", cfg.DelayMin, cfg.DelayMax)
	}
	l := &Limiter{
		next:     make(map[string]time.Time),
		delayMin: cfg.DelayMin,
		delayMax: cfg.DelayMax,
	}
	if cfg.MaxRPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		l.global = rate.NewLimiter(rate.Limit(cfg.MaxRPS), burst)
	}
	return l, nil
}

// Wait blocks until the host of rawURL may receive another request.
// The slot is reserved under the lock; the sleep happens outside it.
func (l *Limiter) Wait(ctx context.Context, rawURL string) error {
	host := hostOf(rawURL)
	start := time.Now()

	l.mu.Lock()
	slot := l.next[host]
	if slot.Before(start) {
		slot = start
	}
	l.next[host] = slot.Add(l.gap())
	l.mu.Unlock()

	if wait := time.Until(slot); wait > 0 {
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("rate limit wait: %w", ctx.Err())
		case <-timer.C:
		}
	}
	if l.global != nil {
		if err := l.global.Wait(ctx); err != nil {
			return fmt.Errorf("rate limit wait: %w", err)
		}
	}
	if waited := time.Since(start); waited > time.Millisecond {
		metrics.ObserveRateLimitDelay(host, waited)
	}
	return nil
}

func (l *Limiter) gap() time.Duration {
	span := l.delayMax - l.delayMin
	if span <= 0 {
		return l.delayMin
	}
	return l.delayMin + rand.N(span+1)
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
