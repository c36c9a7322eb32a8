package source

import (
	"net/url"
	"strings"
)

// PromoConfig lists the signals that mark an entry as a call-to-action rather than a posting.
type PromoConfig struct {
	Titles         []string `mapstructure:"titles" yaml:"titles"`
	Hosts          []string `mapstructure:"hosts" yaml:"hosts"`
	LinkSubstrings []string `mapstructure:"link_substrings" yaml:"link_substrings"`
}

// DefaultPromo matches the registration buttons and chat links sites mix into listings.
func DefaultPromo() PromoConfig {
	return PromoConfig{
		Titles:         []string{"DAFTAR SEKARANG", "DAFTAR DISINI", "JOIN GRUP"},
		Hosts:          []string{"kirimwa.id", "wa.me", "*.whatsapp.com", "t.me"},
		LinkSubstrings: []string{"whatsapp"},
	}
}

// PromoFilter drops promotional entries.
type PromoFilter struct {
	titles     map[string]struct{}
	hosts      *hostPatterns
	substrings []string
}

// NewPromoFilter compiles cfg.
func NewPromoFilter(cfg PromoConfig) *PromoFilter {
	f := &PromoFilter{
		titles: make(map[string]struct{}, len(cfg.Titles)),
		hosts:  newHostPatterns(cfg.Hosts),
	}
	for _, t := range cfg.Titles {
		if t = strings.TrimSpace(t); t != "" {
			f.titles[strings.ToUpper(t)] = struct{}{}
		}
	}
	for _, s := range cfg.LinkSubstrings {
		if s = strings.TrimSpace(strings.ToLower(s)); s != "" {
			f.substrings = append(f.substrings, s)
		}
	}
	return f
}

// Blocked reports whether the entry is promotional.
func (f *PromoFilter) Blocked(title, link string) bool {
	if f == nil {
		return false
	}
	if _, ok := f.titles[strings.ToUpper(strings.TrimSpace(title))]; ok {
		return true
	}
	lower := strings.ToLower(link)
	for _, s := range f.substrings {
		if strings.Contains(lower, s) {
			return true
		}
	}
	if u, err := url.Parse(link); err == nil && f.hosts.match(u.Hostname()) {
		return true
	}
	return false
}

// hostPatterns holds exact hosts and "*.suffix" / ".suffix" wildcards.
type hostPatterns struct {
	exact    map[string]struct{}
	suffixes []string
}

func newHostPatterns(patterns []string) *hostPatterns {
	m := &hostPatterns{exact: make(map[string]struct{})}
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ToLower(raw))
		switch {
		case value == "":
		case strings.HasPrefix(value, "*."):
			m.addSuffix(strings.TrimPrefix(value, "*."))
		case strings.HasPrefix(value, "."):
			m.addSuffix(strings.TrimPrefix(value, "."))
		default:
			m.exact[value] = struct{}{}
		}
	}
	return m
}

func (m *hostPatterns) addSuffix(suffix string) {
	if suffix == "" {
		return
	}
	for _, existing := range m.suffixes {
		if existing == suffix {
			return
		}
	}
	m.suffixes = append(m.suffixes, suffix)
}

func (m *hostPatterns) match(host string) bool {
	host = strings.TrimSpace(strings.ToLower(host))
	if m == nil || host == "" {
		return false
	}
	if _, ok := m.exact[host]; ok {
		return true
	}
	for _, suffix := range m.suffixes {
		if host == suffix || strings.HasSuffix(host, "."+suffix) {
			return true
		}
	}
	return false
}
