// Package extract derives normalized fields from the raw text of a listing entry.
//
// Each field is resolved by a Chain: an ordered list of strategies sharing the
// contract func(Input) (value, ok). The first strategy that reports ok wins and
// later strategies are not consulted.
package extract

import "strings"

// Input is the raw material gathered for one listing entry.
type Input struct {
	Title   string
	Excerpt string
	Detail  string
	// TimeMarker is a machine readable date found in the markup, e.g. a time[datetime] value.
	TimeMarker string
}

// Text returns title, excerpt and detail joined by newlines.
func (in Input) Text() string {
	parts := make([]string, 0, 3)
	for _, p := range []string{in.Title, in.Excerpt, in.Detail} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, "\n")
}

// Strategy resolves one value from the input.
type Strategy[T any] func(Input) (T, bool)

// Chain tries strategies in order and falls back to Fallback.
type Chain[T any] struct {
	Strategies []Strategy[T]
	Fallback   T
}

// Resolve returns the value of the first successful strategy.
func (c Chain[T]) Resolve(in Input) T {
	for _, s := range c.Strategies {
		if v, ok := s(in); ok {
			return v
		}
	}
	return c.Fallback
}

// Fixed always yields v when v is non-empty.
func Fixed(v string) Strategy[string] {
	return func(Input) (string, bool) {
		return v, strings.TrimSpace(v) != ""
	}
}
