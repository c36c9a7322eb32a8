// Package publisher defines the notification emitted after every persisted snapshot.
package publisher

import (
	"context"
	"time"
)

// SnapshotEvent announces a new snapshot.
type SnapshotEvent struct {
	RunID         string    `json:"run_id"`
	URI           string    `json:"uri"`
	Records       int       `json:"records"`
	Sources       int       `json:"sources"`
	FailedSources []string  `json:"failed_sources"`
	FinishedAt    time.Time `json:"finished_at"`
}

// Publisher delivers snapshot events and returns a broker-assigned id.
type Publisher interface {
	Name() string
	Publish(ctx context.Context, event SnapshotEvent) (string, error)
}
