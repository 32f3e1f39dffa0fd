//go:build mage

// Package main contains Mage build targets for paper-harvest developer tooling.
package main

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

// projectDirs lists the working directories the pipeline expects.
var projectDirs = []string{
	"data/cache/crossref",
	"data/cache/openalex",
	"data/pages",
	"data/artifacts",
	"logs",
}

// Init creates the project directory structure for the pipeline.
func Init() error {
	for _, dir := range projectDirs {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating %s: %w", dir, err)
		}
		fmt.Println("  ", dir)
	}
	fmt.Println("Project directories initialized.")
	return nil
}

const (
	binDir  = "bin"
	binName = "harvest"
	cmdPkg  = "./cmd/harvest"

	// buildTags enables the SQLite full-text search module.
	buildTags = "sqlite_fts5"
)

// Build compiles the CLI binary into bin/.
func Build() error {
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", binDir, err)
	}
	out := filepath.Join(binDir, binName)
	if err := sh.RunV("go", "build", "-tags", buildTags, "-o", out, cmdPkg); err != nil {
		return fmt.Errorf("go build: %w", err)
	}
	fmt.Printf("Built %s\n", out)
	return nil
}

// Test runs the unit tests with the build tags the store needs.
func Test() error {
	if err := sh.RunV("go", "test", "-tags", buildTags, "./..."); err != nil {
		return fmt.Errorf("go test: %w", err)
	}
	return nil
}

// Pipeline builds the CLI and runs collect, scrape, and download in order.
func Pipeline() error {
	mg.Deps(Init, Build)
	bin := filepath.Join(binDir, binName)
	for _, stage := range []string{"collect", "scrape", "download"} {
		fmt.Printf("== %s\n", stage)
		if err := sh.RunV(bin, stage); err != nil {
			return fmt.Errorf("%s: %w", stage, err)
		}
	}
	return nil
}

// Stats prints non-blank Go lines per package, production and tests.
func Stats() error {
	counts := map[string]*[2]int{}
	err := filepath.WalkDir(".", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if name := d.Name(); path != "." && (name[0] == '_' || name[0] == '.') {
				return filepath.SkipDir
			}
			return nil
		}
		if filepath.Ext(path) != ".go" {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		pkg := filepath.Dir(path)
		if counts[pkg] == nil {
			counts[pkg] = new([2]int)
		}
		col := 0
		if strings.HasSuffix(path, "_test.go") {
			col = 1
		}
		for line := range strings.Lines(string(data)) {
			if strings.TrimSpace(line) != "" {
				counts[pkg][col]++
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	pkgs := make([]string, 0, len(counts))
	for pkg := range counts {
		pkgs = append(pkgs, pkg)
	}
	sort.Strings(pkgs)

	var prod, test int
	for _, pkg := range pkgs {
		c := counts[pkg]
		fmt.Printf("%-24s %6d %6d\n", pkg, c[0], c[1])
		prod += c[0]
		test += c[1]
	}
	fmt.Printf("%-24s %6d %6d\n", "total (prod, test)", prod, test)
	return nil
}
