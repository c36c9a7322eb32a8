// Package headless implements a fetch transport that renders pages in headless Chrome.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/scholarship-aggregator/internal/fetcher"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultSettleInterval    = 400 * time.Millisecond
	defaultSettlePolls       = 5
)

// Config controls the behavior of the headless transport.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	// SettleInterval is the gap between DOM size checks after the body is ready.
	// Listings that load their articles from script keep growing for a while.
	SettleInterval time.Duration
	// SettlePolls caps how many checks are made before the DOM is taken as-is.
	SettlePolls int
}

// Transport implements fetcher.Transport using chromedp. Tabs share one
// browser allocator; MaxParallel bounds open tabs.
type Transport struct {
	cfg         Config
	tabs        *semaphore.Weighted
	allocator   context.Context
	allocCancel context.CancelFunc
}

// NewChromedp creates a headless transport backed by chromedp. The browser is
// started lazily by the first Fetch.
func NewChromedp(cfg Config) (*Transport, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	cfg = cfg.withDefaults()

	var tabs *semaphore.Weighted
	if cfg.MaxParallel > 0 {
		tabs = semaphore.NewWeighted(int64(cfg.MaxParallel))
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
	)
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	return &Transport{
		cfg:         cfg,
		tabs:        tabs,
		allocator:   allocCtx,
		allocCancel: allocCancel,
	}, nil
}

func (c Config) withDefaults() Config {
	if c.NavigationTimeout <= 0 {
		c.NavigationTimeout = defaultNavigationTimeout
	}
	if c.SettleInterval <= 0 {
		c.SettleInterval = defaultSettleInterval
	}
	if c.SettlePolls <= 0 {
		c.SettlePolls = defaultSettlePolls
	}
	return c
}

// Close stops the browser.
func (t *Transport) Close() {
	t.allocCancel()
}

// Fetch renders the page and returns the settled DOM. The status is the one
// Chrome saw for the main document, so 404 and 5xx still classify normally.
func (t *Transport) Fetch(ctx context.Context, request fetcher.Request) (fetcher.Response, error) {
	if t.tabs != nil {
		if err := t.tabs.Acquire(ctx, 1); err != nil {
			return fetcher.Response{}, fmt.Errorf("headless tab wait canceled: %w", err)
		}
		defer t.tabs.Release(1)
	}

	tabCtx, tabCancel := chromedp.NewContext(t.allocator)
	defer tabCancel()
	stop := context.AfterFunc(ctx, tabCancel)
	defer stop()
	tabCtx, cancel := context.WithTimeout(tabCtx, t.cfg.NavigationTimeout)
	defer cancel()

	doc := &documentStatus{}
	chromedp.ListenTarget(tabCtx, doc.observe)

	start := time.Now()
	var (
		html     string
		finalURL string
	)
	err := chromedp.Run(tabCtx,
		t.prepare(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		t.settle(&html),
		chromedp.Location(&finalURL),
	)
	if err != nil {
		if ctx.Err() != nil {
			return fetcher.Response{}, fmt.Errorf("headless fetch canceled: %w", ctx.Err())
		}
		return fetcher.Response{}, fmt.Errorf("chromedp run: %w", err)
	}

	status, docURL := doc.get()
	if status == 0 {
		status = http.StatusOK
	}
	responseURL := request.URL
	switch {
	case finalURL != "":
		responseURL = finalURL
	case docURL != "":
		responseURL = docURL
	}
	return fetcher.Response{
		URL:        responseURL,
		StatusCode: status,
		Headers:    http.Header{"Content-Type": {"text/html; charset=utf-8"}},
		Body:       []byte(html),
		Duration:   time.Since(start),
		Headless:   true,
	}, nil
}

func (t *Transport) prepare(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if t.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(t.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if extra := networkHeaders(headers); len(extra) > 0 {
			if err := network.SetExtraHTTPHeaders(extra).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

// settle reads the DOM until two consecutive reads match or the poll budget
// runs out.
func (t *Transport) settle(html *string) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		var prev string
		for i := 0; i < t.cfg.SettlePolls; i++ {
			var cur string
			if err := chromedp.OuterHTML("html", &cur, chromedp.ByQuery).Do(ctx); err != nil {
				return fmt.Errorf("read dom: %w", err)
			}
			*html = cur
			if settled(prev, cur) {
				return nil
			}
			prev = cur
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(t.cfg.SettleInterval):
			}
		}
		return nil
	})
}

func settled(prev, cur string) bool {
	return prev != "" && prev == cur
}

// documentStatus records the main document response seen by the tab.
type documentStatus struct {
	mu     sync.Mutex
	status int
	url    string
}

func (d *documentStatus) observe(ev any) {
	resp, ok := ev.(*network.EventResponseReceived)
	if !ok || resp.Type != network.ResourceTypeDocument || resp.Response == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	// Redirect hops arrive first; the last document response wins.
	d.status = int(resp.Response.Status)
	d.url = resp.Response.URL
}

func (d *documentStatus) get() (int, string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status, d.url
}

func networkHeaders(h http.Header) network.Headers {
	out := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			out[key] = values[0]
		default:
			out[key] = append([]string(nil), values...)
		}
	}
	return out
}
