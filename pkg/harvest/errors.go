package harvest

import (
	"errors"
	"fmt"
)

// Error types for distinguishing failure reasons.
// Check with errors.Is(err, harvest.ErrExhausted) or errors.As for the typed errors.
var (
	// ErrExhausted indicates no further page exists or is reachable.
	ErrExhausted = errors.New("result set exhausted")
	// ErrModeMismatch indicates a sink was asked to write in a mode it does not support.
	ErrModeMismatch = errors.New("sink does not support this write mode")
)

// TransientPageError is a page that failed to load or render. The harvester
// retries it a bounded number of times.
type TransientPageError struct {
	Token PageToken
	Err   error
}

func (e *TransientPageError) Error() string {
	return fmt.Sprintf("transient page error at %s: %v", e.Token, e.Err)
}

func (e *TransientPageError) Unwrap() error { return e.Err }

// RecordExtractionError is one record or field missing its expected
// structure. The record is skipped and the run continues.
type RecordExtractionError struct {
	Ref   string
	Field string
	Err   error
}

func (e *RecordExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extract %s from %s: %v", e.Field, e.Ref, e.Err)
	}
	return fmt.Sprintf("extract %s: %v", e.Ref, e.Err)
}

func (e *RecordExtractionError) Unwrap() error { return e.Err }

// NavigationDriftError is raised when the traversal position after
// enrichment does not match the listing it was taken from.
type NavigationDriftError struct {
	Expected string
	Actual   string
	Err      error
}

func (e *NavigationDriftError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("navigation drift: expected %s: %v", e.Expected, e.Err)
	}
	return fmt.Sprintf("navigation drift: expected %s, at %s", e.Expected, e.Actual)
}

func (e *NavigationDriftError) Unwrap() error { return e.Err }

// SinkError is a destination that is unreachable or rejected a write. It
// always aborts the run.
type SinkError struct {
	Op  string
	Err error
}

func (e *SinkError) Error() string {
	return fmt.Sprintf("sink %s: %v", e.Op, e.Err)
}

func (e *SinkError) Unwrap() error { return e.Err }
