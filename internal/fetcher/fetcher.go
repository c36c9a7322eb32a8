// Package fetcher retrieves pages politely: robots gate, per-host spacing, a
// global in-flight cap, bounded retries and UTF-8 normalization. The network
// work itself is delegated to a Transport.
package fetcher

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/scholarship-aggregator/internal/metrics"
)

// Request is one transport call.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is what a transport returns for any HTTP status.
type Response struct {
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
	Headless   bool
}

// Transport performs a single GET.
type Transport interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}

// Gate reports whether a URL may be fetched.
type Gate interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// Limiter blocks until the URL's host may be contacted again.
type Limiter interface {
	Wait(ctx context.Context, rawURL string) error
}

// Config tunes a Fetcher.
type Config struct {
	MaxAttempts    int
	BackoffInitial time.Duration
	BackoffMax     time.Duration
	// MaxInFlight bounds concurrent transport calls across all sources. Zero means unbounded.
	MaxInFlight int64
	// InFlight, when set, is the slot pool shared with other Fetchers and
	// takes precedence over MaxInFlight.
	InFlight *semaphore.Weighted
	Headers  http.Header
}

// Fetcher is safe for concurrent use.
type Fetcher struct {
	transport Transport
	gate      Gate
	limiter   Limiter
	retry     *RetryPolicy
	inFlight  *semaphore.Weighted
	headers   http.Header
	logger    *zap.Logger
}

// New builds a Fetcher. gate and limiter may be nil.
func New(transport Transport, gate Gate, limiter Limiter, cfg Config, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	f := &Fetcher{
		transport: transport,
		gate:      gate,
		limiter:   limiter,
		retry:     NewRetryPolicy(cfg.MaxAttempts, cfg.BackoffInitial, cfg.BackoffMax),
		headers:   cfg.Headers.Clone(),
		logger:    logger,
	}
	switch {
	case cfg.InFlight != nil:
		f.inFlight = cfg.InFlight
	case cfg.MaxInFlight > 0:
		f.inFlight = semaphore.NewWeighted(cfg.MaxInFlight)
	}
	return f
}

// Fetch returns the UTF-8 body of rawURL. Every failure is an *Error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, f.fail(rawURL, KindCanceled, 0, 0, err)
	}
	if f.gate != nil && !f.gate.Allowed(ctx, rawURL) {
		return nil, f.fail(rawURL, KindPolicyDenied, 0, 0, ErrPolicyDenied)
	}

	maxAttempts := f.retry.MaxAttempts()
	for attempt := 1; ; attempt++ {
		resp, err := f.attempt(ctx, rawURL)
		if err == nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
			body, decodeErr := toUTF8(resp.Body, resp.Headers.Get("Content-Type"))
			if decodeErr != nil {
				return nil, f.fail(rawURL, KindPermanent, resp.StatusCode, attempt, decodeErr)
			}
			metrics.ObserveFetch(rawURL, "ok", len(body))
			return body, nil
		}
		if err == nil {
			err = &StatusError{Code: resp.StatusCode}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, f.fail(rawURL, KindCanceled, resp.StatusCode, attempt, ctxErr)
		}
		if !Retryable(err) {
			return nil, f.fail(rawURL, KindPermanent, resp.StatusCode, attempt, err)
		}
		if attempt >= maxAttempts {
			return nil, f.fail(rawURL, KindTransientExhausted, resp.StatusCode, attempt, err)
		}
		wait := f.retry.Backoff(attempt)
		f.logger.Debug("retrying fetch",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt),
			zap.Duration("backoff", wait),
			zap.Error(err),
		)
		if sleepErr := sleepCtx(ctx, wait); sleepErr != nil {
			return nil, f.fail(rawURL, KindCanceled, resp.StatusCode, attempt, sleepErr)
		}
	}
}

// attempt performs one rate-limited transport call. The in-flight slot is taken
// before the host slot is reserved, so a request never starts later than its
// reserved time and per-host spacing holds while the pool is full.
func (f *Fetcher) attempt(ctx context.Context, rawURL string) (Response, error) {
	if f.inFlight != nil {
		if err := f.inFlight.Acquire(ctx, 1); err != nil {
			return Response{}, err
		}
		defer f.inFlight.Release(1)
	}
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx, rawURL); err != nil {
			return Response{}, err
		}
	}
	return f.transport.Fetch(ctx, Request{URL: rawURL, Headers: f.headers.Clone()})
}

func (f *Fetcher) fail(rawURL string, kind Kind, status, attempts int, err error) error {
	metrics.ObserveFetch(rawURL, kind.String(), 0)
	return &Error{
		Kind:       kind,
		URL:        rawURL,
		StatusCode: status,
		Attempts:   attempts,
		Err:        err,
	}
}
