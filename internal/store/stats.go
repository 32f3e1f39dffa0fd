// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package store

import (
	"context"
	"fmt"
	"sort"
	"strings"
)

// YearStats holds per-year counts.
type YearStats struct {
	Year       int `json:"year" yaml:"year"`
	Total      int `json:"total" yaml:"total"`
	Resolved   int `json:"resolved" yaml:"resolved"`
	Downloaded int `json:"downloaded" yaml:"downloaded"`
}

// ErrorClassCount counts acquisition records sharing an error class.
type ErrorClassCount struct {
	Class string `json:"class" yaml:"class"`
	Count int    `json:"count" yaml:"count"`
}

// Stats holds the aggregate counts the status view reports.
type Stats struct {
	Total            int               `json:"total" yaml:"total"`
	Attempted        int               `json:"attempted" yaml:"attempted"`
	Resolved         int               `json:"resolved" yaml:"resolved"`
	WithAbstract     int               `json:"with_abstract" yaml:"with_abstract"`
	Downloaded       int               `json:"downloaded" yaml:"downloaded"`
	PendingSearch    int               `json:"pending_search" yaml:"pending_search"`
	PendingDownload  int               `json:"pending_download" yaml:"pending_download"`
	PendingReprocess int               `json:"pending_reprocess" yaml:"pending_reprocess"`
	LogEntries       int               `json:"log_entries" yaml:"log_entries"`
	ByYear           []YearStats       `json:"by_year" yaml:"by_year"`
	Errors           []ErrorClassCount `json:"errors" yaml:"errors"`
}

// Stats computes aggregate counts over all three tables.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats

	counts := []struct {
		dest *int
		q    string
	}{
		{&st.Total, `SELECT count(*) FROM canonical_records`},
		{&st.Attempted, `SELECT count(*) FROM acquisition_records`},
		{&st.Resolved, `SELECT count(*) FROM acquisition_records WHERE resolved_url IS NOT NULL`},
		{&st.WithAbstract, `SELECT count(*) FROM acquisition_records WHERE abstract IS NOT NULL AND abstract != ''`},
		{&st.Downloaded, `SELECT count(*) FROM acquisition_records WHERE artifact_downloaded = 1`},
		{&st.PendingDownload, `SELECT count(*) FROM acquisition_records WHERE resolved_url IS NOT NULL AND artifact_downloaded = 0`},
		{&st.PendingReprocess, `SELECT count(*) FROM acquisition_records WHERE page_path IS NOT NULL AND (abstract IS NULL OR abstract = '')`},
		{&st.LogEntries, `SELECT count(*) FROM attempt_log`},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, c.q).Scan(c.dest); err != nil {
			return Stats{}, fmt.Errorf("computing stats: %w", err)
		}
	}
	st.PendingSearch = st.Total - st.Attempted

	rows, err := s.db.QueryContext(ctx,
		`SELECT c.year, count(*),
			count(a.resolved_url),
			COALESCE(sum(a.artifact_downloaded), 0)
		 FROM canonical_records c
		 LEFT JOIN acquisition_records a ON a.identifier = c.identifier
		 GROUP BY c.year ORDER BY c.year DESC`)
	if err != nil {
		return Stats{}, fmt.Errorf("querying year stats: %w", err)
	}
	for rows.Next() {
		var y YearStats
		if err := rows.Scan(&y.Year, &y.Total, &y.Resolved, &y.Downloaded); err != nil {
			rows.Close()
			return Stats{}, fmt.Errorf("scanning year stats: %w", err)
		}
		st.ByYear = append(st.ByYear, y)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return Stats{}, err
	}

	st.Errors, err = s.errorClasses(ctx)
	if err != nil {
		return Stats{}, err
	}
	return st, nil
}

// errorClasses groups stored errors by class. The class is the error text
// before any parenthesized detail, so "no match above threshold (best
// score 71.2)" and "(best score 64.0)" count together.
func (s *Store) errorClasses(ctx context.Context) ([]ErrorClassCount, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT error FROM acquisition_records WHERE error IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("querying errors: %w", err)
	}
	defer rows.Close()

	byClass := make(map[string]int)
	for rows.Next() {
		var e string
		if err := rows.Scan(&e); err != nil {
			return nil, fmt.Errorf("scanning error: %w", err)
		}
		byClass[ErrorClass(e)]++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]ErrorClassCount, 0, len(byClass))
	for class, n := range byClass {
		out = append(out, ErrorClassCount{Class: class, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Class < out[j].Class
	})
	return out, nil
}

// ErrorClass returns the class part of a stored error description.
func ErrorClass(e string) string {
	if i := strings.IndexAny(e, "(:"); i > 0 {
		e = e[:i]
	}
	return strings.TrimSpace(e)
}
