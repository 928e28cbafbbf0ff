// Package cache stores rendered report JSON on disk.
package cache

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ErrInvalidKey is returned for a snapshot key that is not a UUID or a report name that
// is not a plain file name.
var ErrInvalidKey = errors.New("invalid cache key")

// ReportCache lays entries out as <dir>/<snapshot uuid>/<report>.json. Entries are keyed by
// the snapshot's UUID rather than its row id, so databases that share a cache directory
// never see each other's reports.
type ReportCache struct {
	dir          string
	maxSnapshots int
}

// NewReportCache creates dir if needed. maxSnapshots <= 0 disables the limit in Retain.
func NewReportCache(dir string, maxSnapshots int) (*ReportCache, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &ReportCache{dir: dir, maxSnapshots: maxSnapshots}, nil
}

func (c *ReportCache) Dir() string {
	return c.dir
}

func snapshotKey(key string) (string, error) {
	id, err := uuid.Parse(key)
	if err != nil {
		return "", fmt.Errorf("%w: snapshot %q", ErrInvalidKey, key)
	}
	return id.String(), nil
}

func validName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for _, r := range name {
		if !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9' || r == '-' || r == '_') {
			return false
		}
	}
	return true
}

func (c *ReportCache) entryPath(key, name string) (string, error) {
	dir, err := snapshotKey(key)
	if err != nil {
		return "", err
	}
	if !validName(name) {
		return "", fmt.Errorf("%w: report %q", ErrInvalidKey, name)
	}
	return filepath.Join(c.dir, dir, name+".json"), nil
}

// Get returns the cached report, if any.
func (c *ReportCache) Get(key, name string) ([]byte, bool) {
	path, err := c.entryPath(key, name)
	if err != nil {
		return nil, false
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	return data, true
}

// Put stores data atomically: readers see either the old entry or the new one.
func (c *ReportCache) Put(key, name string, data []byte) error {
	path, err := c.entryPath(key, name)
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot cache dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, name+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp report: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		return fmt.Errorf("write temp report: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename report: %w", err)
	}
	return nil
}

// GetOrBuild returns the cached JSON for name, or encodes the value build returns and
// caches it. A failed write is not an error; the encoded value is still returned.
func (c *ReportCache) GetOrBuild(key, name string, build func() (any, error)) ([]byte, error) {
	if data, ok := c.Get(key, name); ok {
		return data, nil
	}

	v, err := build()
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	_ = c.Put(key, name, data)

	return data, nil
}

// Retain removes every snapshot directory except the first maxSnapshots keys of keep,
// which is expected newest first. Entries that are not snapshot directories are left alone.
func (c *ReportCache) Retain(keep []string) error {
	if c.maxSnapshots > 0 && len(keep) > c.maxSnapshots {
		keep = keep[:c.maxSnapshots]
	}
	kept := make(map[string]bool, len(keep))
	for _, key := range keep {
		if dir, err := snapshotKey(key); err == nil {
			kept[dir] = true
		}
	}

	entries, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read cache dir: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || kept[entry.Name()] {
			continue
		}
		if _, err := uuid.Parse(entry.Name()); err != nil {
			continue
		}
		if err := os.RemoveAll(filepath.Join(c.dir, entry.Name())); err != nil {
			return fmt.Errorf("remove cache of snapshot %s: %w", entry.Name(), err)
		}
	}
	return nil
}

// Drop removes every cached report of one snapshot.
func (c *ReportCache) Drop(key string) error {
	dir, err := snapshotKey(key)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(filepath.Join(c.dir, dir)); err != nil {
		return fmt.Errorf("remove cache of snapshot %s: %w", dir, err)
	}
	return nil
}
