package harvest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	gocache "github.com/patrickmn/go-cache"
	"github.com/sourcegraph/conc/pool"

	"github.com/jmylchreest/harvest/internal/logger"
)

// Harvester owns the traversal loop: fetch a page, enrich and persist each
// record, advance the cursor, repeat until the result set is exhausted.
// A Harvester runs one traversal at a time.
type Harvester struct {
	source  string
	cursor  PageCursor
	fetcher RecordFetcher
	dest    Destination
	config  Config

	run           *Run
	checkpointing bool
	seen          *gocache.Cache

	mu       sync.Mutex // guards run counters and buffered
	sinkMu   sync.Mutex // serializes sink writes
	buffered []Record
}

// New creates a Harvester for source.
func New(source string, cursor PageCursor, fetcher RecordFetcher, dest Destination, opts ...Option) (*Harvester, error) {
	if cursor == nil || fetcher == nil || dest == nil {
		return nil, errors.New("cursor, fetcher and destination are required")
	}

	cfg := DefaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	if cfg.Workers > 1 {
		if s, ok := cfg.Enricher.(Sequential); ok && s.Sequential() {
			return nil, fmt.Errorf("enricher %T shares one session and cannot run on %d workers", cfg.Enricher, cfg.Workers)
		}
	}
	if cfg.Checkpoint != nil && cfg.CheckpointKey == "" {
		cfg.CheckpointKey = source
	}

	return &Harvester{
		source:  source,
		cursor:  cursor,
		fetcher: fetcher,
		dest:    dest,
		config:  cfg,
	}, nil
}

// Run performs one traversal. It returns a nil error when the result set
// was exhausted, including exhaustion after page failures (reported as
// warnings on the Run). Sink failures, cursor acquisition failures past the
// retry bound, and cancellation return a non-nil error.
func (h *Harvester) Run(ctx context.Context) (*Run, error) {
	h.run = &Run{Source: h.source, State: StateStarting, StartedAt: time.Now()}
	h.buffered = nil
	h.seen = nil
	if h.config.DedupeField != "" {
		h.seen = gocache.New(gocache.NoExpiration, 0)
		for _, key := range h.config.DedupeSeed {
			h.seen.SetDefault(key, struct{}{})
		}
	}

	logger.Info("harvest starting", "source", h.source, "workers", h.config.Workers)

	sink, err := h.dest.Open(ctx)
	if err != nil {
		return h.abort(sinkError("open", err))
	}

	err = h.traverse(ctx, sink)
	if closeErr := sink.Close(); closeErr != nil && err == nil {
		err = sinkError("close", closeErr)
	}

	switch {
	case err == nil:
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		h.run.Err = err
		h.run.FinishedAt = time.Now()
		h.transition(StateClosed)
		logger.Warn("harvest interrupted", "source", h.source, "records", h.run.Records, "error", err)
		return h.run, err
	default:
		return h.abort(err)
	}

	h.run.FinishedAt = time.Now()
	h.transition(StateClosed)
	logger.Info("harvest complete",
		"source", h.source,
		"pages", h.run.Pages,
		"records", h.run.Records,
		"failures", h.run.Failures,
		"warnings", len(h.run.Warnings),
		"duration", h.run.Duration())
	return h.run, nil
}

func (h *Harvester) traverse(ctx context.Context, sink Sink) error {
	run := h.run
	mode := sink.Mode()
	h.resume(ctx, mode)

	token := h.cursor.Current()
	complete := true
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		run.Token = token
		h.transition(StateFetchingPage)
		handles, err := h.fetchPage(ctx, token)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			logger.Warn("page unavailable, treating as last page",
				"source", h.source, "page", token.Number, "url", token.URL, "error", err)
			run.warn(err.Error())
			break
		}
		run.Pages++
		logger.Debug("page fetched", "source", h.source, "page", token.Number, "handles", len(handles))

		h.transition(StateEmittingRecords)
		if err := h.emit(ctx, sink, token, handles); err != nil {
			return err
		}

		h.transition(StateAdvancing)
		if h.config.MaxPages > 0 && run.Pages >= h.config.MaxPages {
			logger.Info("reached max pages", "source", h.source, "max_pages", h.config.MaxPages)
			complete = false
			break
		}

		next, err := h.advance(ctx)
		if errors.Is(err, ErrExhausted) {
			if err != ErrExhausted { //nolint:errorlint // bare sentinel means a clean end
				logger.Warn("cursor exhausted early", "source", h.source, "page", token.Number, "reason", err)
				run.warn(err.Error())
			}
			break
		}
		if err != nil {
			return err
		}

		h.saveCheckpoint(ctx, next)
		token = next

		if h.config.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(h.config.Delay):
			}
		}
	}

	h.transition(StateExhausted)
	run.Exhausted = true

	if mode == ModeReplace {
		h.sinkMu.Lock()
		err := sink.ReplaceAll(ctx, h.buffered)
		h.sinkMu.Unlock()
		if err != nil {
			return sinkError("replace", err)
		}
	}
	if complete {
		h.clearCheckpoint(ctx)
	}
	return nil
}

func (h *Harvester) fetchPage(ctx context.Context, token PageToken) ([]RecordHandle, error) {
	var handles []RecordHandle
	op := func() error {
		hs, err := h.fetcher.FetchPage(ctx, token)
		if err != nil {
			return err
		}
		handles = hs
		return nil
	}
	if err := backoff.RetryNotify(op, h.backoff(ctx, h.config.PageRetries), h.notify("page fetch failed, retrying")); err != nil {
		return nil, &TransientPageError{Token: token, Err: err}
	}
	return handles, nil
}

func (h *Harvester) advance(ctx context.Context) (PageToken, error) {
	var next PageToken
	op := func() error {
		more, err := h.cursor.HasNext(ctx)
		if err != nil {
			return err
		}
		if !more {
			return backoff.Permanent(ErrExhausted)
		}
		t, err := h.cursor.Advance(ctx)
		if err != nil {
			if errors.Is(err, ErrExhausted) {
				return backoff.Permanent(err)
			}
			return err
		}
		next = t
		return nil
	}

	err := backoff.RetryNotify(op, h.backoff(ctx, h.config.ReacquireRetries), h.notify("cursor advance failed, retrying"))
	switch {
	case err == nil:
		return next, nil
	case errors.Is(err, ErrExhausted):
		return PageToken{}, err
	case ctx.Err() != nil:
		return PageToken{}, ctx.Err()
	default:
		return PageToken{}, fmt.Errorf("cursor acquisition failed after %d retries: %w", h.config.ReacquireRetries, err)
	}
}

func (h *Harvester) emit(ctx context.Context, sink Sink, token PageToken, handles []RecordHandle) error {
	if h.config.Workers > 1 && len(handles) > 1 {
		return h.emitConcurrent(ctx, sink, handles)
	}

	drifts := 0
	for i := 0; i < len(handles); {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := h.process(ctx, sink, handles[i])
		var drift *NavigationDriftError
		switch {
		case err == nil:
			i++
		case errors.As(err, &drift):
			drifts++
			h.run.Drifts++
			logger.Warn("navigation drift, re-acquiring listing",
				"source", h.source, "page", token.Number, "ref", handles[i].Ref, "error", err)
			if drifts > h.config.ReacquireRetries {
				return fmt.Errorf("listing re-acquisition exceeded %d retries: %w", h.config.ReacquireRetries, err)
			}
			if err := h.reacquire(ctx); err != nil {
				return err
			}
		default:
			return err
		}
	}
	return nil
}

func (h *Harvester) emitConcurrent(ctx context.Context, sink Sink, handles []RecordHandle) error {
	p := pool.New().
		WithContext(ctx).
		WithMaxGoroutines(h.config.Workers).
		WithCancelOnError().
		WithFirstError()
	for _, handle := range handles {
		p.Go(func(ctx context.Context) error {
			return h.process(ctx, sink, handle)
		})
	}
	return p.Wait()
}

// process enriches and persists one handle. Extraction failures are logged
// and swallowed; drift, sink and context errors are returned.
func (h *Harvester) process(ctx context.Context, sink Sink, handle RecordHandle) error {
	rec, err := h.resolve(ctx, handle)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		var drift *NavigationDriftError
		if errors.As(err, &drift) {
			return err
		}
		h.mu.Lock()
		h.run.Failures++
		h.mu.Unlock()
		logger.Warn("skipping record", "source", h.source, "ref", handle.Ref, "error", err)
		return nil
	}
	return h.persist(ctx, sink, rec)
}

func (h *Harvester) resolve(ctx context.Context, handle RecordHandle) (Record, error) {
	var rec Record
	switch {
	case handle.Complete():
		rec = *handle.Record
	case h.config.Enricher == nil:
		return Record{}, &RecordExtractionError{Ref: handle.Ref, Err: errors.New("handle needs enrichment but no enricher is configured")}
	default:
		var err error
		if rec, err = h.config.Enricher.Enrich(ctx, handle); err != nil {
			return Record{}, err
		}
	}

	if h.config.Transform == nil {
		return rec, nil
	}
	out, err := h.config.Transform(rec)
	if err != nil {
		var extractErr *RecordExtractionError
		if !errors.As(err, &extractErr) {
			err = &RecordExtractionError{Ref: handle.Ref, Err: err}
		}
		return Record{}, err
	}
	return out, nil
}

func (h *Harvester) persist(ctx context.Context, sink Sink, rec Record) error {
	if h.duplicate(rec) {
		h.mu.Lock()
		h.run.Duplicates++
		h.mu.Unlock()
		logger.Debug("dropping duplicate record", "source", h.source, "key", rec.String(h.config.DedupeField))
		return nil
	}

	if sink.Mode() == ModeReplace {
		h.mu.Lock()
		h.buffered = append(h.buffered, rec)
		h.run.Records++
		h.mu.Unlock()
		return nil
	}

	h.sinkMu.Lock()
	err := sink.Append(ctx, rec)
	h.sinkMu.Unlock()
	if err != nil {
		return sinkError("append", err)
	}

	h.mu.Lock()
	h.run.Records++
	h.mu.Unlock()
	return nil
}

func (h *Harvester) duplicate(rec Record) bool {
	if h.seen == nil {
		return false
	}
	key := rec.String(h.config.DedupeField)
	if key == "" {
		return false
	}
	return h.seen.Add(key, struct{}{}, gocache.NoExpiration) != nil
}

func (h *Harvester) reacquire(ctx context.Context) error {
	r, ok := h.cursor.(Reacquirer)
	if !ok {
		return &NavigationDriftError{
			Expected: h.cursor.Current().URL,
			Err:      fmt.Errorf("cursor %T cannot re-acquire its position", h.cursor),
		}
	}

	op := func() error { return r.Reacquire(ctx) }
	if err := backoff.RetryNotify(op, h.backoff(ctx, h.config.ReacquireRetries), h.notify("listing re-acquisition failed, retrying")); err != nil {
		return &NavigationDriftError{Expected: h.cursor.Current().URL, Err: err}
	}
	logger.Info("listing re-acquired", "source", h.source, "url", h.cursor.Current().URL)
	return nil
}

func (h *Harvester) resume(ctx context.Context, mode Mode) {
	h.checkpointing = false
	store := h.config.Checkpoint
	if store == nil {
		return
	}
	if mode == ModeReplace {
		logger.Warn("checkpoints are ignored for replace-mode sinks", "source", h.source)
		return
	}
	h.checkpointing = true

	token, ok, err := store.Load(ctx, h.config.CheckpointKey)
	if err != nil {
		logger.Warn("failed to load checkpoint, starting from first page", "source", h.source, "error", err)
		return
	}
	if !ok {
		return
	}

	seeker, ok := h.cursor.(Seeker)
	if !ok {
		logger.Warn("cursor cannot resume, starting from first page", "source", h.source, "cursor", fmt.Sprintf("%T", h.cursor))
		return
	}
	if err := seeker.Seek(ctx, token); err != nil {
		logger.Warn("failed to resume, starting from first page", "source", h.source, "token", token.String(), "error", err)
		return
	}
	logger.Info("resuming from checkpoint", "source", h.source, "page", token.Number, "url", token.URL)
}

func (h *Harvester) saveCheckpoint(ctx context.Context, token PageToken) {
	if !h.checkpointing {
		return
	}
	if err := h.config.Checkpoint.Save(ctx, h.config.CheckpointKey, token); err != nil {
		logger.Warn("failed to save checkpoint", "source", h.source, "error", err)
	}
}

func (h *Harvester) clearCheckpoint(ctx context.Context) {
	if !h.checkpointing {
		return
	}
	if err := h.config.Checkpoint.Delete(ctx, h.config.CheckpointKey); err != nil {
		logger.Warn("failed to delete checkpoint", "source", h.source, "error", err)
	}
}

func (h *Harvester) backoff(ctx context.Context, retries int) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = h.config.RetryBackoff
	b.MaxInterval = h.config.MaxBackoff
	b.MaxElapsedTime = 0
	if retries < 0 {
		retries = 0
	}
	return backoff.WithContext(backoff.WithMaxRetries(b, uint64(retries)), ctx)
}

func (h *Harvester) notify(msg string) backoff.Notify {
	return func(err error, wait time.Duration) {
		logger.Warn(msg, "source", h.source, "error", err, "backoff", wait)
	}
}

func (h *Harvester) transition(to State) {
	from := h.run.State
	h.run.State = to
	logger.Debug("harvest state", "source", h.source, "from", from.String(), "to", to.String())
}

func (h *Harvester) abort(err error) (*Run, error) {
	h.run.Err = err
	h.run.FinishedAt = time.Now()
	logger.Error("harvest aborted", "source", h.source, "state", h.run.State.String(), "records", h.run.Records, "error", err)
	h.transition(StateAborted)
	return h.run, err
}

func sinkError(op string, err error) error {
	var se *SinkError
	if errors.As(err, &se) {
		return err
	}
	return &SinkError{Op: op, Err: err}
}
