// Package redis appends snapshot events to a Redis stream.
package redis

import (
	"context"
	"encoding/json"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/JakeFAU/scholarship-aggregator/internal/publisher"
)

const defaultMaxLen = 1000

// streamAdder is the slice of the redis client the publisher needs.
type streamAdder interface {
	XAdd(ctx context.Context, a *goredis.XAddArgs) *goredis.StringCmd
}

// Config selects the stream.
type Config struct {
	Stream string
	// MaxLen trims the stream approximately (MAXLEN ~).
	MaxLen int64
}

// Publisher writes events with XADD.
type Publisher struct {
	client streamAdder
	stream string
	maxLen int64
}

// New creates a Publisher. client is usually a *goredis.Client.
func New(client streamAdder, cfg Config) (*Publisher, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client is required")
	}
	if cfg.Stream == "" {
		return nil, fmt.Errorf("redis stream is required")
	}
	if cfg.MaxLen <= 0 {
		cfg.MaxLen = defaultMaxLen
	}
	return &Publisher{client: client, stream: cfg.Stream, maxLen: cfg.MaxLen}, nil
}

// Name identifies the sink in logs and metrics.
func (p *Publisher) Name() string { return "redis" }

// Publish adds the event to the stream and returns the entry id.
func (p *Publisher) Publish(ctx context.Context, event publisher.SnapshotEvent) (string, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}
	id, err := p.client.XAdd(ctx, &goredis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]any{
			"run_id":  event.RunID,
			"uri":     event.URI,
			"records": event.Records,
			"payload": string(payload),
		},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("xadd %s: %w", p.stream, err)
	}
	return id, nil
}
