// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Subdirectories of the data directory.
const (
	PagesDir     = "pages"
	ArtifactsDir = "artifacts"
)

// homePrefix marks a stored path as relative to the user's home directory
// so the database can move between machines.
const homePrefix = "$HOME/"

// PageStore keeps raw pages and downloaded artifacts under a data
// directory.
type PageStore struct {
	root string
	home string
}

// NewPageStore returns a PageStore rooted at dataDir, creating the page
// and artifact directories.
func NewPageStore(dataDir string) (*PageStore, error) {
	root, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("resolving data dir: %w", err)
	}
	for _, d := range []string{PagesDir, ArtifactsDir} {
		if err := os.MkdirAll(filepath.Join(root, d), 0o755); err != nil {
			return nil, fmt.Errorf("creating %s directory: %w", d, err)
		}
	}
	home, _ := os.UserHomeDir()
	return &PageStore{root: root, home: home}, nil
}

// Slug returns a filesystem-safe filename stem for identifier.
func Slug(identifier string) string {
	return strings.NewReplacer("/", "-", ":", "-", "\\", "-").Replace(identifier)
}

// SavePage writes html for identifier and returns the portable path.
func (p *PageStore) SavePage(identifier, html string) (string, error) {
	dest := filepath.Join(p.root, PagesDir, Slug(identifier)+".html")
	if err := writeAtomic(dest, []byte(html)); err != nil {
		return "", fmt.Errorf("saving page for %s: %w", identifier, err)
	}
	return p.Portable(dest), nil
}

// LoadPage reads a page previously saved under the portable path stored.
func (p *PageStore) LoadPage(stored string) (string, error) {
	data, err := os.ReadFile(p.Expand(stored))
	if err != nil {
		return "", fmt.Errorf("loading page: %w", err)
	}
	return string(data), nil
}

// ArtifactPath is where the artifact for identifier is written.
func (p *PageStore) ArtifactPath(identifier string) string {
	return filepath.Join(p.root, ArtifactsDir, Slug(identifier)+".pdf")
}

// Portable rewrites an absolute path under the home directory to start
// with "$HOME/".
func (p *PageStore) Portable(path string) string {
	if p.home == "" {
		return path
	}
	rel, err := filepath.Rel(p.home, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return path
	}
	return homePrefix + filepath.ToSlash(rel)
}

// Expand resolves a portable path against the current home directory.
func (p *PageStore) Expand(stored string) string {
	if rest, ok := strings.CutPrefix(stored, homePrefix); ok && p.home != "" {
		return filepath.Join(p.home, filepath.FromSlash(rest))
	}
	return stored
}

// writeAtomic writes data to a temp file beside dest and renames it into
// place.
func writeAtomic(dest string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(dest), ".harvest-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()

	_, writeErr := tmp.Write(data)
	closeErr := tmp.Close()
	if writeErr != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing temp file: %w", writeErr)
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
