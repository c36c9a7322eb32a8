package extract

import "regexp"

var organizerLabel = regexp.MustCompile(`(?i)\b(?:Penyelenggara|Organized by|Oleh)\s*:[ \t]*([^\n]*)`)

// NewOrganizerChain builds the organizer chain. An unresolved organizer is "".
func NewOrganizerChain(defaultOrganizer string) Chain[string] {
	return Chain[string]{
		Strategies: []Strategy[string]{LabeledOrganizer, Fixed(defaultOrganizer)},
		Fallback:   "",
	}
}

// LabeledOrganizer reads "Penyelenggara: ..." style phrases.
func LabeledOrganizer(in Input) (string, bool) {
	return labeledValue(organizerLabel, in.Text())
}
