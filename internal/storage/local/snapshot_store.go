// Package local persists the snapshot document on the local filesystem.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/JakeFAU/scholarship-aggregator/internal/record"
)

// ErrNoSnapshot is returned by Load before the first successful Save.
var ErrNoSnapshot = errors.New("no snapshot has been written")

// Config captures the snapshot location.
type Config struct {
	// Path is the snapshot file, e.g. data/scholarships.json.
	Path string `mapstructure:"path" yaml:"path"`
}

// SnapshotStore replaces the snapshot file atomically.
type SnapshotStore struct {
	path string
}

// New creates the store, creating the parent directory when missing.
func New(cfg Config) (*SnapshotStore, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, fmt.Errorf("snapshot path is required")
	}
	dir := filepath.Dir(path)
	info, err := os.Stat(dir)
	switch {
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return nil, fmt.Errorf("create snapshot directory: %w", mkErr)
		}
	case err != nil:
		return nil, fmt.Errorf("stat snapshot directory: %w", err)
	case !info.IsDir():
		return nil, fmt.Errorf("snapshot directory %s is not a directory", dir)
	}
	return &SnapshotStore{path: path}, nil
}

// Path returns the snapshot file path.
func (s *SnapshotStore) Path() string {
	return s.path
}

// Save writes records to a temp file next to the snapshot, fsyncs it and renames
// it over the snapshot. On failure the previous snapshot is left untouched.
func (s *SnapshotStore) Save(ctx context.Context, records []record.Record) (string, error) {
	data, err := record.EncodeJSON(records)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", fmt.Errorf("save snapshot: %w", err)
	}
	if err := s.replace(data); err != nil {
		return "", err
	}
	abs, err := filepath.Abs(s.path)
	if err != nil {
		abs = s.path
	}
	return "file://" + filepath.ToSlash(abs), nil
}

func (s *SnapshotStore) replace(data []byte) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(s.path), "."+filepath.Base(s.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp snapshot: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err = os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp snapshot: %w", err)
	}
	if err = os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	if err = syncDir(filepath.Dir(s.path)); err != nil {
		return fmt.Errorf("sync snapshot dir: %w", err)
	}
	return nil
}

// syncDir flushes the directory entry so a completed rename survives a crash.
// Windows cannot fsync directories.
func syncDir(dir string) error {
	if runtime.GOOS == "windows" {
		return nil
	}
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		_ = d.Close()
		return err
	}
	return d.Close()
}

// Load reads the current snapshot.
func (s *SnapshotStore) Load(_ context.Context) ([]record.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoSnapshot
		}
		return nil, fmt.Errorf("read snapshot: %w", err)
	}
	return record.DecodeJSON(data)
}
