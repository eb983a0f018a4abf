package apisource

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmylchreest/harvest/pkg/harvest"
)

// SplitDestination writes every record to Primary after Trim, and the
// record Derive produces from it (if any) to Derived. Both sinks must
// share a write mode.
type SplitDestination struct {
	Primary harvest.Destination
	Derived harvest.Destination
	Trim    func(harvest.Record) harvest.Record
	Derive  func(harvest.Record) (harvest.Record, bool)
}

// Open opens both destinations.
func (d SplitDestination) Open(ctx context.Context) (harvest.Sink, error) {
	primary, err := d.Primary.Open(ctx)
	if err != nil {
		return nil, err
	}
	derived, err := d.Derived.Open(ctx)
	if err != nil {
		_ = primary.Close()
		return nil, err
	}
	if primary.Mode() != derived.Mode() {
		_ = primary.Close()
		_ = derived.Close()
		return nil, fmt.Errorf("%w: primary is %s, derived is %s", harvest.ErrModeMismatch, primary.Mode(), derived.Mode())
	}
	return &splitSink{dest: d, primary: primary, derived: derived}, nil
}

type splitSink struct {
	dest    SplitDestination
	primary harvest.Sink
	derived harvest.Sink
}

func (s *splitSink) Mode() harvest.Mode {
	return s.primary.Mode()
}

func (s *splitSink) split(r harvest.Record) (harvest.Record, harvest.Record, bool) {
	var (
		derived harvest.Record
		ok      bool
	)
	if s.dest.Derive != nil {
		derived, ok = s.dest.Derive(r)
	}
	if s.dest.Trim != nil {
		r = s.dest.Trim(r)
	}
	return r, derived, ok
}

func (s *splitSink) Append(ctx context.Context, r harvest.Record) error {
	primary, derived, ok := s.split(r)
	if err := s.primary.Append(ctx, primary); err != nil {
		return err
	}
	if !ok {
		return nil
	}
	return s.derived.Append(ctx, derived)
}

func (s *splitSink) ReplaceAll(ctx context.Context, records []harvest.Record) error {
	primary := make([]harvest.Record, 0, len(records))
	var derived []harvest.Record
	for _, r := range records {
		p, d, ok := s.split(r)
		primary = append(primary, p)
		if ok {
			derived = append(derived, d)
		}
	}
	if err := s.primary.ReplaceAll(ctx, primary); err != nil {
		return err
	}
	return s.derived.ReplaceAll(ctx, derived)
}

func (s *splitSink) Close() error {
	return errors.Join(s.primary.Close(), s.derived.Close())
}
