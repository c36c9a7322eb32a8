package extract

import (
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// Config tunes an Extractor for one source.
type Config struct {
	DateLabels       []string
	DefaultOrganizer string
}

// Result holds the derived fields for one entry.
type Result struct {
	DatePosted   string
	Location     string
	Organizer    string
	Category     string
	DegreeLevels []string
	FundingTypes []string
}

// Extractor runs every field chain over an Input.
type Extractor struct {
	date      Chain[string]
	location  Chain[string]
	organizer Chain[string]
}

// New builds an Extractor.
func New(cfg Config) *Extractor {
	return &Extractor{
		date:      NewDateChain(cfg.DateLabels),
		location:  NewLocationChain(),
		organizer: NewOrganizerChain(cfg.DefaultOrganizer),
	}
}

// Extract derives all fields. It never fails; unresolved fields carry sentinels or fallbacks.
func (e *Extractor) Extract(in Input) Result {
	text := in.Text()
	return Result{
		DatePosted:   e.date.Resolve(in),
		Location:     e.location.Resolve(in),
		Organizer:    e.organizer.Resolve(in),
		Category:     Category(in),
		DegreeLevels: Classify(text, DegreeRules, record.DegreeFallback),
		FundingTypes: Classify(text, FundingRules, record.FundingFallback),
	}
}

// Excerpt collapses whitespace and truncates text to width display cells.
func Excerpt(text string, width int) string {
	text = strings.Join(strings.Fields(text), " ")
	if width <= 0 {
		return text
	}
	return runewidth.Truncate(text, width, "")
}
