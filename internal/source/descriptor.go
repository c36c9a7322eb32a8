// Package source turns per-site selector tables into listing entries and detail text.
package source

import (
	"fmt"
	"net/url"
	"strings"
)

// Render modes for a source.
const (
	RenderStatic   = "static"
	RenderHeadless = "headless"
)

// Defaults applied by WithDefaults.
const (
	DefaultMaxItems      = 20
	DefaultExcerptLength = 300
)

// DefaultContentSelectors covers the common WordPress themes seen across sources.
var DefaultContentSelectors = []string{".entry-content", ".post-content", ".content", ".single-content"}

// Descriptor declares how to scrape one source. Every selector list is ordered:
// the first selector that yields a usable match wins.
type Descriptor struct {
	Name        string `mapstructure:"name" yaml:"name"`
	BaseURL     string `mapstructure:"base_url" yaml:"base_url"`
	ListingPath string `mapstructure:"listing_path" yaml:"listing_path"`

	Listing   []string `mapstructure:"listing" yaml:"listing"`
	TitleLink []string `mapstructure:"title_link" yaml:"title_link"`
	Excerpt   []string `mapstructure:"excerpt" yaml:"excerpt"`
	Time      []string `mapstructure:"time" yaml:"time"`
	Content   []string `mapstructure:"content" yaml:"content"`

	DateLabels       []string `mapstructure:"date_labels" yaml:"date_labels"`
	DefaultOrganizer string   `mapstructure:"default_organizer" yaml:"default_organizer"`

	MaxItems         int    `mapstructure:"max_items" yaml:"max_items"`
	ExcerptLength    int    `mapstructure:"excerpt_length" yaml:"excerpt_length"`
	SkipDetails      bool   `mapstructure:"skip_details" yaml:"skip_details"`
	Render           string `mapstructure:"render" yaml:"render"`
	HeadlessFallback bool   `mapstructure:"headless_fallback" yaml:"headless_fallback"`
	Disabled         bool   `mapstructure:"disabled" yaml:"disabled"`
}

// WithDefaults fills unset optional fields.
func (d Descriptor) WithDefaults() Descriptor {
	if d.MaxItems == 0 {
		d.MaxItems = DefaultMaxItems
	}
	if d.ExcerptLength == 0 {
		d.ExcerptLength = DefaultExcerptLength
	}
	if len(d.Content) == 0 {
		d.Content = append([]string(nil), DefaultContentSelectors...)
	}
	if d.Render == "" {
		d.Render = RenderStatic
	}
	return d
}

// Validate checks the descriptor is usable.
func (d Descriptor) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("source name is required")
	}
	if _, err := d.ListingURL(); err != nil {
		return fmt.Errorf("source %s: %w", d.Name, err)
	}
	if len(nonEmpty(d.Listing)) == 0 {
		return fmt.Errorf("source %s: at least one listing selector is required", d.Name)
	}
	if d.MaxItems < 0 {
		return fmt.Errorf("source %s: max_items must be >= 0", d.Name)
	}
	switch d.Render {
	case "", RenderStatic, RenderHeadless:
	default:
		return fmt.Errorf("source %s: render must be %q or %q", d.Name, RenderStatic, RenderHeadless)
	}
	return nil
}

// ListingURL joins the base URL and listing path.
func (d Descriptor) ListingURL() (string, error) {
	base, err := url.Parse(strings.TrimSpace(d.BaseURL))
	if err != nil {
		return "", fmt.Errorf("parse base_url: %w", err)
	}
	if (base.Scheme != "http" && base.Scheme != "https") || base.Host == "" {
		return "", fmt.Errorf("base_url must be an absolute http(s) URL")
	}
	if d.ListingPath == "" {
		return base.String(), nil
	}
	ref, err := url.Parse(strings.TrimSpace(d.ListingPath))
	if err != nil {
		return "", fmt.Errorf("parse listing_path: %w", err)
	}
	return base.ResolveReference(ref).String(), nil
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
