// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package pipeline runs the acquisition stages over the state store: the
// search stage resolves canonical records to pages on the secondary
// source, the download stage fetches their artifacts, and the reprocess
// stage re-extracts abstracts from stored pages. Stages process one
// record at a time; a record's failure is recorded and the batch goes on.
package pipeline

import (
	"context"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/pdiddy/paper-harvest/internal/fetch"
	"github.com/pdiddy/paper-harvest/pkg/types"
)

// ExtractionError is logged when a page was resolved and fetched but no
// abstract could be extracted from it.
const ExtractionError = "extraction error: no abstract found"

// Store is the slice of the state store the stages use.
type Store interface {
	PendingForStage(ctx context.Context, stage types.Stage, limit int) ([]types.PendingRecord, error)
	CommitAttempt(ctx context.Context, rec types.AcquisitionRecord, entry *types.AttemptLogEntry) error
	AppendLog(ctx context.Context, entry types.AttemptLogEntry) error
	MarkArtifact(ctx context.Context, identifier, artifactURL, path string, downloaded bool) error
	UpdateExtraction(ctx context.Context, identifier, abstract, artifactURL string) error
	RebuildIndex(ctx context.Context) error
}

// NewRunID returns an identifier stamped on every audit entry of one run.
func NewRunID() string {
	return uuid.NewString()
}

// Summary counts record outcomes for one stage run.
type Summary struct {
	Stage     types.Stage
	Attempted int
	Succeeded int
	Partial   int
	NoMatch   int
	Failed    int
	Blocked   int

	// Interrupted is set when the run stopped on cancellation.
	Interrupted bool
}

// Add counts one outcome.
func (s *Summary) Add(status types.Status) {
	s.Attempted++
	switch status {
	case types.StatusSuccess:
		s.Succeeded++
	case types.StatusPartial:
		s.Partial++
	case types.StatusNoMatch:
		s.NoMatch++
	case types.StatusBlocked:
		s.Blocked++
	default:
		s.Failed++
	}
}

// HasFailures reports whether any record failed or was blocked.
func (s Summary) HasFailures() bool {
	return s.Failed > 0 || s.Blocked > 0
}

// Print writes the summary line.
func (s Summary) Print(w io.Writer) {
	suffix := ""
	if s.Interrupted {
		suffix = ", interrupted"
	}
	fmt.Fprintf(w, "\n%s summary: %d succeeded, %d partial, %d no match, %d failed, %d blocked (attempted: %d%s)\n",
		s.Stage, s.Succeeded, s.Partial, s.NoMatch, s.Failed, s.Blocked, s.Attempted, suffix)
}

// failureStatus maps a classified fetch error to an audit status.
func failureStatus(err error) types.Status {
	if fetch.KindOf(err) == fetch.KindBlocked {
		return types.StatusBlocked
	}
	return types.StatusFailed
}

// rebuild refreshes the full-text indexes after a stage, even when the
// stage itself was interrupted.
func rebuild(ctx context.Context, s Store) error {
	if err := s.RebuildIndex(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("rebuilding index: %w", err)
	}
	return nil
}
