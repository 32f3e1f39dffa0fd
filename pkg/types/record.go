// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package types defines shared data structures for the paper-harvest pipeline.
// The State Store persists these records; every other component passes them
// around as plain values.
package types

import "time"

// UnknownAuthor is the sentinel author recorded when the metadata source
// lists no usable author names.
const UnknownAuthor = "Unknown"

// UnknownPublisher is the default publisher when the source omits one.
const UnknownPublisher = "Unknown"

// Stage names a pipeline stage. Stage names are written to the attempt log
// and select pending sets from the store.
type Stage string

const (
	StageMetadata  Stage = "metadata"
	StageSearch    Stage = "search"
	StageDownload  Stage = "download"
	StageReprocess Stage = "reprocess"
)

// Status is the outcome recorded in an attempt log entry.
type Status string

const (
	StatusSuccess Status = "success"
	StatusPartial Status = "partial"
	StatusNoMatch Status = "no_match"
	StatusFailed  Status = "failed"
	StatusBlocked Status = "blocked"
	StatusSkipped Status = "skipped"
)

// Journal identifies a source journal in the catalog.
type Journal struct {
	// Name is the journal's display name.
	Name string `json:"name" yaml:"name"`

	// ISSN is the print ISSN used to query the metadata source.
	ISSN string `json:"issn" yaml:"issn"`

	// Field groups journals by discipline (accounting, finance, economics).
	Field string `json:"field" yaml:"field"`

	// Publisher is the journal publisher as listed in the catalog.
	Publisher string `json:"publisher,omitempty" yaml:"publisher,omitempty"`
}

// CanonicalRecord is one scholarly work from the authoritative metadata
// source. Identifier (a DOI) is immutable; re-ingesting the same identifier
// refreshes Title and Authors only.
type CanonicalRecord struct {
	// Identifier is the DOI.
	Identifier string `json:"identifier" yaml:"identifier"`

	// Title is HTML-stripped with whitespace collapsed.
	Title string `json:"title" yaml:"title"`

	// Authors lists author names in source order. A single UnknownAuthor
	// entry means the source listed none.
	Authors []string `json:"authors" yaml:"authors"`

	// Year is the publication year.
	Year int `json:"year" yaml:"year"`

	// JournalID is the ISSN of the source journal.
	JournalID string `json:"journal_id" yaml:"journal_id"`

	// JournalName is the source journal's display name.
	JournalName string `json:"journal_name" yaml:"journal_name"`

	// Publisher defaults to UnknownPublisher.
	Publisher string `json:"publisher" yaml:"publisher"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// AcquisitionRecord is the outcome of locating a CanonicalRecord on the
// secondary source. Empty strings stand for absent (NULL) values. After a
// search attempt exactly one of ResolvedURL and Error is set.
type AcquisitionRecord struct {
	Identifier string `json:"identifier" yaml:"identifier"`

	// ResolvedURL is the matched page on the secondary source.
	ResolvedURL string `json:"resolved_url,omitempty" yaml:"resolved_url,omitempty"`

	// Confidence is the combined similarity score (0-100) of the best
	// candidate, kept for below-threshold outcomes too. Nil when no
	// candidate was scored.
	Confidence *float64 `json:"confidence,omitempty" yaml:"confidence,omitempty"`

	// Abstract is the extracted abstract text.
	Abstract string `json:"abstract,omitempty" yaml:"abstract,omitempty"`

	// ArtifactURL is the download link for the full-text artifact.
	ArtifactURL string `json:"artifact_url,omitempty" yaml:"artifact_url,omitempty"`

	// ArtifactDownloaded reports whether the artifact is stored locally.
	ArtifactDownloaded bool `json:"artifact_downloaded" yaml:"artifact_downloaded"`

	// ArtifactPath is the portable path of the downloaded artifact.
	ArtifactPath string `json:"artifact_path,omitempty" yaml:"artifact_path,omitempty"`

	// PagePath is the portable path of the raw fetched page.
	PagePath string `json:"page_path,omitempty" yaml:"page_path,omitempty"`

	// Error describes why the attempt produced no resolved URL.
	Error string `json:"error,omitempty" yaml:"error,omitempty"`

	// AttemptedAt is when the last attempt finished.
	AttemptedAt time.Time `json:"attempted_at" yaml:"attempted_at"`
}

// Resolved reports whether the attempt located a page.
func (r AcquisitionRecord) Resolved() bool {
	return r.ResolvedURL != ""
}

// AttemptLogEntry is one append-only audit row.
type AttemptLogEntry struct {
	ID         int64     `json:"id" yaml:"id"`
	Identifier string    `json:"identifier" yaml:"identifier"`
	Stage      Stage     `json:"stage" yaml:"stage"`
	Status     Status    `json:"status" yaml:"status"`
	Error      string    `json:"error,omitempty" yaml:"error,omitempty"`
	RunID      string    `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	LoggedAt   time.Time `json:"logged_at" yaml:"logged_at"`
}

// PendingRecord joins a canonical record with its acquisition record (if
// any) for stages that need both.
type PendingRecord struct {
	CanonicalRecord
	Acquisition *AcquisitionRecord `json:"acquisition,omitempty" yaml:"acquisition,omitempty"`
}

// Candidate is one entry from a search-results page on the secondary source.
type Candidate struct {
	// Index is the position on the results page, starting at zero.
	Index int `json:"index" yaml:"index"`

	URL   string `json:"url" yaml:"url"`
	Title string `json:"title" yaml:"title"`
}

// SearchHit is a ranked full-text search result over titles or abstracts.
type SearchHit struct {
	Identifier  string  `json:"identifier" yaml:"identifier"`
	Title       string  `json:"title" yaml:"title"`
	Authors     string  `json:"authors" yaml:"authors"`
	Year        int     `json:"year" yaml:"year"`
	JournalName string  `json:"journal_name" yaml:"journal_name"`
	Snippet     string  `json:"snippet,omitempty" yaml:"snippet,omitempty"`
	Score       float64 `json:"score" yaml:"score"`
}
