package politeness

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func robotsServer(t *testing.T, status int, body string) (*httptest.Server, *atomic.Int32) {
	t.Helper()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/robots.txt" {
			t.Errorf("unexpected request to %s", r.URL.Path)
			http.NotFound(w, r)
			return
		}
		hits.Add(1)
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestRobotsGateHonorsDisallow(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n")
	gate := New(Config{Respect: true, UserAgent: "EduScraper/1.0"}, zap.NewNop())

	ctx := context.Background()
	assert.True(t, gate.Allowed(ctx, srv.URL+"/beasiswa/lpdp"))
	assert.False(t, gate.Allowed(ctx, srv.URL+"/private/page"))
	assert.True(t, gate.Allowed(ctx, srv.URL))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsGateSharesConcurrentFetch(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nAllow: /\n")
	gate := New(Config{Respect: true, UserAgent: "EduScraper/1.0"}, zap.NewNop())

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.True(t, gate.Allowed(context.Background(), srv.URL+"/a"))
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsGateCanceledCallerDoesNotPoisonCache(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusOK, "User-agent: *\nDisallow: /private\n")
	gate := New(Config{Respect: true, UserAgent: "EduScraper/1.0"}, zap.NewNop())

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	gate.Allowed(canceled, srv.URL+"/private/page")

	assert.False(t, gate.Allowed(context.Background(), srv.URL+"/private/page"))
	assert.True(t, gate.Allowed(context.Background(), srv.URL+"/beasiswa"))
	assert.Equal(t, int32(1), hits.Load())
}

func TestRobotsGateFailsOpenOnServerError(t *testing.T) {
	t.Parallel()

	srv, hits := robotsServer(t, http.StatusServiceUnavailable, "")
	gate := New(Config{Respect: true}, zap.NewNop())

	assert.True(t, gate.Allowed(context.Background(), srv.URL+"/a"))
	assert.True(t, gate.Allowed(context.Background(), srv.URL+"/b"))
	assert.Equal(t, int32(1), hits.Load(), "fail-open decision is cached")
}

func TestRobotsGateFailsOpenWhenUnreachable(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	gate := New(Config{Respect: true}, zap.NewNop())
	assert.True(t, gate.Allowed(context.Background(), addr+"/a"))
}

func TestRobotsGateDeniesBadURL(t *testing.T) {
	t.Parallel()

	gate := New(Config{Respect: true}, nil)
	assert.False(t, gate.Allowed(context.Background(), "://bad"))
	assert.False(t, gate.Allowed(context.Background(), "/relative/only"))
}

func TestAllowAllWhenNotRespecting(t *testing.T) {
	t.Parallel()

	gate := New(Config{Respect: false}, nil)
	require.IsType(t, AllowAll{}, gate)
	assert.True(t, gate.Allowed(context.Background(), "https://example.com/private"))
}
