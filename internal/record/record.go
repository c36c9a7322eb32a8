// Package record defines the aggregated listing record and its identity.
package record

import (
	"bytes"
	"crypto/sha1" // #nosec G505 -- sha1 is used as a stable identifier, not for security.
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"
)

// Sentinels and vocabularies shared by the extractor, merger and persister.
const (
	// Unknown marks a date, organizer or location that could not be resolved.
	Unknown = "unknown"
	// DateLayout is the canonical layout of DatePosted.
	DateLayout = "2006-01-02"

	CategoryInternational = "Internasional"
	CategoryDomestic      = "Lokal"

	DegreeFallback  = "All"
	FundingFallback = "Other"
)

// Record is one normalized posting in the snapshot.
// Records are built once by New and never modified afterwards.
type Record struct {
	ID           string    `json:"id"`
	Source       string    `json:"source"`
	Title        string    `json:"title"`
	Link         string    `json:"link"`
	DatePosted   string    `json:"datePosted"`
	Excerpt      string    `json:"excerpt"`
	FullContent  string    `json:"fullContent"`
	Organizer    string    `json:"organizer"`
	Location     string    `json:"location"`
	Category     string    `json:"category"`
	DegreeLevels []string  `json:"degreeLevels"`
	FundingTypes []string  `json:"fundingTypes"`
	ScrapedAt    time.Time `json:"scrapedAt"`
}

// Fields carries the extracted values used to build a Record.
type Fields struct {
	Source       string
	Title        string
	Link         string
	DatePosted   string
	Excerpt      string
	FullContent  string
	Organizer    string
	Location     string
	Category     string
	DegreeLevels []string
	FundingTypes []string
}

// NewID derives the record identity from source, title and link.
func NewID(source, title, link string) string {
	sum := sha1.Sum([]byte(source + "|" + title + "|" + link)) // #nosec G401
	return hex.EncodeToString(sum[:])
}

// New builds a Record, filling sentinels and fallback tags for unresolved fields.
func New(f Fields, scrapedAt time.Time) Record {
	return Record{
		ID:           NewID(f.Source, f.Title, f.Link),
		Source:       f.Source,
		Title:        f.Title,
		Link:         f.Link,
		DatePosted:   orUnknown(f.DatePosted),
		Excerpt:      f.Excerpt,
		FullContent:  f.FullContent,
		Organizer:    orUnknown(f.Organizer),
		Location:     orUnknown(f.Location),
		Category:     category(f.Category),
		DegreeLevels: tagsOr(f.DegreeLevels, DegreeFallback),
		FundingTypes: tagsOr(f.FundingTypes, FundingFallback),
		ScrapedAt:    scrapedAt.UTC(),
	}
}

// HasKnownDate reports whether DatePosted holds a parseable calendar date.
func (r Record) HasKnownDate() bool {
	_, ok := r.Date()
	return ok
}

// Date parses DatePosted.
func (r Record) Date() (time.Time, bool) {
	if r.DatePosted == "" || r.DatePosted == Unknown {
		return time.Time{}, false
	}
	t, err := time.Parse(DateLayout, r.DatePosted)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func orUnknown(v string) string {
	if v == "" {
		return Unknown
	}
	return v
}

func category(v string) string {
	if v == CategoryInternational {
		return CategoryInternational
	}
	return CategoryDomestic
}

func tagsOr(tags []string, fallback string) []string {
	if len(tags) == 0 {
		return []string{fallback}
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// EncodeJSON renders records as the snapshot document: a JSON array with
// two-space indentation and HTML left unescaped. A nil slice encodes as [].
func EncodeJSON(records []Record) ([]byte, error) {
	if records == nil {
		records = []Record{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return nil, fmt.Errorf("encode records: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeJSON parses a snapshot document.
func DecodeJSON(data []byte) ([]Record, error) {
	var records []Record
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode records: %w", err)
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}
