// Package detector decides when a static listing page needs a headless re-render.
package detector

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
)

const (
	defaultThreshold = 2048
	// minVisibleText is the amount of visible text below which a page that
	// carries scripts is treated as an unrendered shell.
	minVisibleText = 200
)

// Heuristic inspects a static listing body for signs that its articles are
// injected by script.
type Heuristic struct {
	// BodyLengthThreshold marks small pages: below it, a script-heavy body is a shell.
	BodyLengthThreshold int
}

// NewHeuristic creates a new detector.
func NewHeuristic(threshold int) *Heuristic {
	if threshold == 0 {
		threshold = defaultThreshold
	}
	return &Heuristic{BodyLengthThreshold: threshold}
}

// Markers of client-side frameworks and of WordPress widgets that load posts
// after page load.
var shellMarkers = [][]byte{
	[]byte("__next"),
	[]byte("__nuxt"),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("data-reactroot"),
	[]byte("ng-version"),
	[]byte("ajax-load-more"),
	[]byte("jet-listing-grid--lazy-load"),
}

// LooksScriptRendered reports whether body is likely a client-rendered shell.
func (h *Heuristic) LooksScriptRendered(body []byte) bool {
	if len(bytes.TrimSpace(body)) == 0 {
		return true
	}
	lower := bytes.ToLower(body)
	for _, marker := range shellMarkers {
		if bytes.Contains(lower, marker) {
			return true
		}
	}
	stats := measure(body)
	if stats.script == 0 {
		return false
	}
	if stats.text < minVisibleText {
		return true
	}
	return len(body) < h.BodyLengthThreshold && stats.script*4 >= len(body)
}

type pageStats struct {
	script int // bytes inside <script> elements
	text   int // bytes of visible, non-whitespace text
}

func measure(body []byte) pageStats {
	var (
		stats    pageStats
		inScript bool
		inHidden int
	)
	z := html.NewTokenizer(bytes.NewReader(body))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return stats
		case html.StartTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				inScript = true
			case "style", "noscript", "template":
				inHidden++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "script":
				inScript = false
			case "style", "noscript", "template":
				if inHidden > 0 {
					inHidden--
				}
			}
		case html.TextToken:
			raw := z.Raw()
			switch {
			case inScript:
				stats.script += len(raw)
			case inHidden == 0:
				stats.text += len(strings.Join(strings.Fields(string(raw)), ""))
			}
		}
	}
}
