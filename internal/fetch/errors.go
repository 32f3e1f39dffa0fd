// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
)

// Kind classifies a terminal fetch failure. The Kind's string is the
// prefix of the error description stored on the acquisition record, which
// is what operators reset by. Match outcomes ("no search results found",
// "no match above threshold") are classified by the match package.
type Kind string

const (
	KindSearchFailed Kind = "failed to search"
	KindOpenFailed   Kind = "failed to open page"
	KindBlocked      Kind = "blocked by bot verification"
	KindDownload     Kind = "download failed"
)

// Sentinel conditions reported by sessions.
var (
	// ErrChallenge means a bot-verification page did not clear in time.
	ErrChallenge = errors.New("challenge did not clear")

	// ErrTransient marks timeouts and navigation hiccups worth retrying.
	ErrTransient = errors.New("transient fetch failure")

	// ErrNotPDF means a download returned something other than a PDF.
	ErrNotPDF = errors.New("response is not a PDF")
)

// Error is a classified terminal failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// KindOf returns the Kind of err, or "" when err is not a classified
// fetch error.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return ""
}

// Transient wraps err so the retry policy treats it as recoverable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}

// Retryable reports whether err is worth another attempt: explicit
// transient failures, network timeouts, and deadline overruns of a single
// operation. Bot-verification blocks are not retried within a run. The
// retry policy checks cancellation of the run itself before asking.
func Retryable(err error) bool {
	if err == nil || errors.Is(err, ErrChallenge) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, ErrTransient) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
