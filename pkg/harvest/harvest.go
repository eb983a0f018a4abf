// Package harvest provides incremental paginated collection with per-record
// persistence and page-advance retry.
//
// A Harvester composes four collaborators that never depend on each other:
// a PageCursor that walks the remote result set, a RecordFetcher that lists
// the records on a page, an optional DetailEnricher that completes link-only
// records, and a Destination that opens the Sink records are written to.
package harvest

import "context"

// PageCursor walks an externally paged result set.
type PageCursor interface {
	// Current returns the position of the page last reached.
	Current() PageToken

	// HasNext reports whether a page follows the current one.
	HasNext(ctx context.Context) (bool, error)

	// Advance moves to the next page. It returns ErrExhausted (possibly
	// wrapped with the reason) when there is none.
	Advance(ctx context.Context) (PageToken, error)
}

// Seeker is implemented by cursors that can resume from a saved token.
type Seeker interface {
	Seek(ctx context.Context, token PageToken) error
}

// Reacquirer is implemented by cursors whose position lives in a remote
// session and can be re-established after navigation drift.
type Reacquirer interface {
	Reacquire(ctx context.Context) error
}

// RecordFetcher lists the records on a page.
type RecordFetcher interface {
	FetchPage(ctx context.Context, token PageToken) ([]RecordHandle, error)
}

// DetailEnricher turns a link-only handle into a full Record.
type DetailEnricher interface {
	Enrich(ctx context.Context, handle RecordHandle) (Record, error)
}

// Sequential is implemented by enrichers that share one remote session and
// must never run on more than one worker.
type Sequential interface {
	Sequential() bool
}

// Mode is a sink durability discipline.
type Mode int

const (
	// ModeAppend persists each record as soon as it is produced.
	ModeAppend Mode = iota
	// ModeReplace discards the destination and rewrites it in full.
	ModeReplace
)

func (m Mode) String() string {
	switch m {
	case ModeAppend:
		return "append"
	case ModeReplace:
		return "replace"
	default:
		return "unknown"
	}
}

// Sink is an open destination. Close must be called on every exit path.
type Sink interface {
	// Mode returns the write discipline the sink supports.
	Mode() Mode

	// Append durably writes one record before returning (append mode).
	Append(ctx context.Context, r Record) error

	// ReplaceAll discards existing contents and writes records (replace mode).
	ReplaceAll(ctx context.Context, records []Record) error

	// Close flushes and releases the underlying file or connection.
	Close() error
}

// Destination opens a Sink.
type Destination interface {
	Open(ctx context.Context) (Sink, error)
}

// DestinationFunc adapts a function to Destination.
type DestinationFunc func(ctx context.Context) (Sink, error)

// Open calls f.
func (f DestinationFunc) Open(ctx context.Context) (Sink, error) {
	return f(ctx)
}

// CheckpointStore persists the last completed page of a run so an
// interrupted append-mode harvest can resume.
type CheckpointStore interface {
	Load(ctx context.Context, key string) (PageToken, bool, error)
	Save(ctx context.Context, key string, token PageToken) error
	Delete(ctx context.Context, key string) error
}
