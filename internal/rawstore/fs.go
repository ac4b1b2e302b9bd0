package rawstore

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jonesrussell/jobcrawl/internal/logger"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

// FSStore keeps blobs on the local filesystem under a root directory.
type FSStore struct {
	root string
	log  logger.Interface
}

// NewFSStore creates the root directory if needed.
func NewFSStore(root string, log logger.Interface) (*FSStore, error) {
	if root == "" {
		return nil, fmt.Errorf("rawstore: fs root is required")
	}
	if err := os.MkdirAll(root, dirPerm); err != nil {
		return nil, fmt.Errorf("rawstore: create root: %w", err)
	}
	return &FSStore{root: root, log: log}, nil
}

// Put writes body to <root>/<key>, creating parent directories. An
// existing blob is left untouched: the key is the content hash, so the
// bytes are already there. Writes go through a temp file and rename so
// a crash never leaves a partial blob under the final key.
func (s *FSStore) Put(_ context.Context, key string, body []byte, _ string) (string, error) {
	full := filepath.Join(s.root, filepath.FromSlash(key))

	if _, err := os.Stat(full); err == nil {
		return key, nil
	}

	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return "", fmt.Errorf("rawstore: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".put-*")
	if err != nil {
		return "", fmt.Errorf("rawstore: create temp: %w", err)
	}
	tmpName := tmp.Name()

	if _, err = tmp.Write(body); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rawstore: write blob: %w", err)
	}
	if err = tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rawstore: close temp: %w", err)
	}
	if err = os.Chmod(tmpName, filePerm); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rawstore: chmod blob: %w", err)
	}
	if err = os.Rename(tmpName, full); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rawstore: finalize blob: %w", err)
	}

	return key, nil
}

// DeleteBefore removes whole date directories older than cutoff, then
// prunes domain directories left empty.
func (s *FSStore) DeleteBefore(_ context.Context, cutoff time.Time) (int, error) {
	cutoffDay := cutoff.UTC().Truncate(24 * time.Hour)
	removed := 0

	domains, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("rawstore: read root: %w", err)
	}

	for _, domain := range domains {
		if !domain.IsDir() {
			continue
		}
		domainPath := filepath.Join(s.root, domain.Name())

		days, err := os.ReadDir(domainPath)
		if err != nil {
			continue
		}

		for _, day := range days {
			if !day.IsDir() {
				continue
			}
			date, err := time.Parse("2006-01-02", day.Name())
			if err != nil || !date.Before(cutoffDay) {
				continue
			}

			dayPath := filepath.Join(domainPath, day.Name())
			blobs, err := os.ReadDir(dayPath)
			if err != nil {
				continue
			}
			if err := os.RemoveAll(dayPath); err != nil {
				s.log.Warn("retention sweep failed for directory",
					"path", dayPath,
					"error", err.Error(),
				)
				continue
			}
			removed += len(blobs)
		}

		// Remove is non-destructive here: it fails on non-empty dirs.
		_ = os.Remove(domainPath)
	}

	return removed, nil
}

// Healthy checks that the root exists and is writable.
func (s *FSStore) Healthy(_ context.Context) error {
	probe, err := os.CreateTemp(s.root, ".health-*")
	if err != nil {
		return fmt.Errorf("rawstore: root not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return nil
}
