// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package metadata

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// Cache keeps one JSON file of raw items per (ISSN, year). Files are
// written whole through a temp file and rename, so a reader never sees a
// partial file. An empty response or an unreadable file is discarded as a
// miss, so the pair is fetched again.
type Cache struct {
	dir string
}

// NewCache returns a cache rooted at dir, creating it if needed.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

// Path returns the cache file for (issn, year).
func (c *Cache) Path(issn string, year int) string {
	return filepath.Join(c.dir, fmt.Sprintf("cache_%s_%d.json", issn, year))
}

// Load returns the cached items for (issn, year). ok is false on a miss.
func (c *Cache) Load(issn string, year int) (items []RawItem, ok bool) {
	path := c.Path(issn, year)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, false
	}
	if err == nil && len(data) > 0 {
		if err = json.Unmarshal(data, &items); err == nil && len(items) > 0 {
			return items, true
		}
	}
	if err != nil {
		slog.Warn("discarding unreadable cache file", "path", path, "error", err)
	} else {
		slog.Debug("discarding empty cache file", "path", path)
	}
	os.Remove(path)
	return nil, false
}

// Store writes items for (issn, year).
func (c *Cache) Store(issn string, year int, items []RawItem) error {
	if items == nil {
		items = []RawItem{}
	}
	data, err := json.MarshalIndent(items, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	dest := c.Path(issn, year)
	tmp, err := os.CreateTemp(c.dir, ".cache-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing cache: %w", writeErr)
	}
	if closeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("closing temp file: %w", closeErr)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("renaming temp file: %w", err)
	}
	return nil
}
