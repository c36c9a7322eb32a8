// Package gcs mirrors the snapshot document to Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

const contentTypeJSON = "application/json"

// Config captures the bucket layout.
type Config struct {
	Bucket string
	Prefix string
}

// Mirror uploads snapshots to a configured bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS mirror.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Name identifies the sink in logs and metrics.
func (m *Mirror) Name() string { return "gcs" }

// Mirror writes data as <prefix>/runs/<runID>.json and <prefix>/latest.json and
// returns the gs:// URI of the latest object.
func (m *Mirror) Mirror(ctx context.Context, runID string, data []byte) (string, error) {
	if strings.TrimSpace(runID) == "" {
		return "", fmt.Errorf("run id is required")
	}
	if _, err := m.put(ctx, m.objectPath("runs", runID+".json"), data); err != nil {
		return "", err
	}
	return m.put(ctx, m.objectPath("latest.json"), data)
}

func (m *Mirror) objectPath(parts ...string) string {
	if m.prefix == "" {
		return path.Join(parts...)
	}
	return path.Join(append([]string{m.prefix}, parts...)...)
}

func (m *Mirror) put(ctx context.Context, object string, data []byte) (string, error) {
	writer := m.client.Bucket(m.bucket).Object(object).NewWriter(ctx)
	writer.ContentType = contentTypeJSON
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("copy object %s: %w (close writer: %v)", object, err, closeErr)
		}
		return "", fmt.Errorf("copy object %s: %w", object, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer for %s: %w", object, err)
	}
	return fmt.Sprintf("gs://%s/%s", m.bucket, object), nil
}

// Close releases the client.
func (m *Mirror) Close() error {
	if err := m.client.Close(); err != nil {
		return fmt.Errorf("close storage client: %w", err)
	}
	return nil
}
