package harvest

import "time"

// State is a Harvester state.
type State int

const (
	StateStarting State = iota
	StateFetchingPage
	StateEmittingRecords
	StateAdvancing
	StateExhausted
	StateClosed
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateFetchingPage:
		return "fetching_page"
	case StateEmittingRecords:
		return "emitting_records"
	case StateAdvancing:
		return "advancing"
	case StateExhausted:
		return "exhausted"
	case StateClosed:
		return "closed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Run is one traversal from the first page to exhaustion or abort.
// It is mutated only by the Harvester that owns it.
type Run struct {
	Source     string
	Token      PageToken
	State      State
	Exhausted  bool // Traversal reached the end before closing
	Pages      int  // Pages fetched
	Records    int  // Records persisted (or buffered for replace)
	Failures   int  // Records skipped after an extraction error
	Duplicates int  // Records dropped by natural-key dedupe
	Drifts     int  // Listing re-acquisitions
	Warnings   []string
	StartedAt  time.Time
	FinishedAt time.Time
	Err        error
}

// Duration returns how long the run took.
func (r *Run) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r *Run) warn(msg string) {
	r.Warnings = append(r.Warnings, msg)
}
