package storage

import (
	"context"
	"time"
)

// QueryObserver receives the outcome of every data source query.
type QueryObserver func(operation string, err error, latency time.Duration)

// InstrumentedSource reports query latency and status to an observer.
type InstrumentedSource struct {
	next    TabularSource
	observe QueryObserver
}

// NewInstrumentedSource wraps next.
func NewInstrumentedSource(next TabularSource, observe QueryObserver) *InstrumentedSource {
	return &InstrumentedSource{next: next, observe: observe}
}

func (s *InstrumentedSource) GroupSum(ctx context.Context, q GroupSumQuery) ([]GroupRow, error) {
	start := time.Now()
	rows, err := s.next.GroupSum(ctx, q)
	s.observe("group_sum", err, time.Since(start))
	return rows, err
}

func (s *InstrumentedSource) Sum(ctx context.Context, q SumQuery) (float64, error) {
	start := time.Now()
	total, err := s.next.Sum(ctx, q)
	s.observe("sum", err, time.Since(start))
	return total, err
}

func (s *InstrumentedSource) SampleRow(ctx context.Context, table string) (*Row, error) {
	start := time.Now()
	row, err := s.next.SampleRow(ctx, table)
	s.observe("sample_row", err, time.Since(start))
	return row, err
}

func (s *InstrumentedSource) Ping(ctx context.Context) error {
	start := time.Now()
	err := s.next.Ping(ctx)
	s.observe("ping", err, time.Since(start))
	return err
}
