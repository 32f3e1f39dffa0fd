// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package catalog lists the journals the pipeline collects. The built-in
// list can be replaced by a YAML file with the same shape.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/paper-harvest/pkg/types"
)

// FieldAll selects every journal.
const FieldAll = "all"

//go:embed journals.yaml
var builtin []byte

// Catalog is an ordered journal list.
type Catalog struct {
	journals []types.Journal
}

// Default returns the built-in catalog.
func Default() *Catalog {
	c, err := Parse(builtin)
	if err != nil {
		panic(fmt.Sprintf("built-in journal catalog: %v", err))
	}
	return c
}

// Load reads a catalog from a YAML file. An empty path returns Default.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML journal list. Every journal needs a name and an
// ISSN, and ISSNs must be unique.
func Parse(data []byte) (*Catalog, error) {
	var journals []types.Journal
	if err := yaml.Unmarshal(data, &journals); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	seen := make(map[string]bool, len(journals))
	for i, j := range journals {
		if j.Name == "" || j.ISSN == "" {
			return nil, fmt.Errorf("catalog entry %d: name and issn are required", i+1)
		}
		if seen[j.ISSN] {
			return nil, fmt.Errorf("catalog entry %d: duplicate issn %s", i+1, j.ISSN)
		}
		seen[j.ISSN] = true
		journals[i].Field = strings.ToLower(j.Field)
	}
	return &Catalog{journals: journals}, nil
}

// All returns every journal in catalog order.
func (c *Catalog) All() []types.Journal {
	return append([]types.Journal(nil), c.journals...)
}

// ByField returns the journals in field, or all of them for FieldAll.
func (c *Catalog) ByField(field string) ([]types.Journal, error) {
	field = strings.ToLower(strings.TrimSpace(field))
	if field == "" || field == FieldAll {
		return c.All(), nil
	}
	var out []types.Journal
	for _, j := range c.journals {
		if j.Field == field {
			out = append(out, j)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unknown field %q (known: %s, %s)", field, strings.Join(c.Fields(), ", "), FieldAll)
	}
	return out, nil
}

// ByISSN looks up one journal.
func (c *Catalog) ByISSN(issn string) (types.Journal, bool) {
	for _, j := range c.journals {
		if strings.EqualFold(j.ISSN, issn) {
			return j, true
		}
	}
	return types.Journal{}, false
}

// Fields returns the distinct fields, sorted.
func (c *Catalog) Fields() []string {
	set := make(map[string]bool)
	for _, j := range c.journals {
		set[j.Field] = true
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Years returns the inclusive range from..to in ascending order.
func Years(from, to int) ([]int, error) {
	if from <= 0 || to < from {
		return nil, fmt.Errorf("invalid year range %d-%d", from, to)
	}
	years := make([]int, 0, to-from+1)
	for y := from; y <= to; y++ {
		years = append(years, y)
	}
	return years, nil
}
