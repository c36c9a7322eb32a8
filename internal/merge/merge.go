// Package merge combines per-source record lists into one ordered snapshot.
package merge

import (
	"slices"

	"github.com/JakeFAU/scholarship-aggregator/internal/dedupe"
	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// Merge concatenates sources in order, removes duplicate ids and sorts by
// datePosted descending. Records without a valid date go last; ties keep
// their concatenated order.
func Merge(sources ...[]record.Record) []record.Record {
	total := 0
	for _, s := range sources {
		total += len(s)
	}
	all := make([]record.Record, 0, total)
	for _, s := range sources {
		all = append(all, s...)
	}
	out := dedupe.Records(all)
	slices.SortStableFunc(out, compare)
	return out
}

func compare(a, b record.Record) int {
	da, okA := a.Date()
	db, okB := b.Date()
	switch {
	case okA && okB:
		return db.Compare(da)
	case okA:
		return -1
	case okB:
		return 1
	default:
		return 0
	}
}
