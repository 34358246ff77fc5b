package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
	"go.uber.org/zap"
)

// BreakerSettings configures BreakerSource.
type BreakerSettings struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
	// OnStateChange is called after every transition; optional.
	OnStateChange func(from, to gobreaker.State)
}

// BreakerSource decorates a TabularSource with a circuit breaker. Only
// connectivity faults count as failures: schema mismatches are expected
// outcomes of candidate probing and never trip the breaker.
type BreakerSource struct {
	next   TabularSource
	cb     *gobreaker.CircuitBreaker[any]
	logger *zap.Logger
}

// NewBreakerSource wraps next with a circuit breaker.
func NewBreakerSource(next TabularSource, s BreakerSettings, logger *zap.Logger) *BreakerSource {
	b := &BreakerSource{next: next, logger: logger}

	threshold := s.FailureThreshold
	if threshold == 0 {
		threshold = 5
	}

	b.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        s.Name,
		MaxRequests: s.MaxRequests,
		Interval:    s.Interval,
		Timeout:     s.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsSchemaMismatch(err) || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("data source circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
			if s.OnStateChange != nil {
				s.OnStateChange(from, to)
			}
		},
	})

	return b
}

// State returns the current breaker state.
func (b *BreakerSource) State() gobreaker.State {
	return b.cb.State()
}

// GroupSum delegates through the breaker.
func (b *BreakerSource) GroupSum(ctx context.Context, q GroupSumQuery) ([]GroupRow, error) {
	v, err := b.execute(func() (any, error) {
		rows, err := b.next.GroupSum(ctx, q)
		return rows, err
	})
	if err != nil {
		return nil, err
	}
	rows, _ := v.([]GroupRow)
	return rows, nil
}

// Sum delegates through the breaker.
func (b *BreakerSource) Sum(ctx context.Context, q SumQuery) (float64, error) {
	v, err := b.execute(func() (any, error) {
		total, err := b.next.Sum(ctx, q)
		return total, err
	})
	if err != nil {
		return 0, err
	}
	total, _ := v.(float64)
	return total, nil
}

// SampleRow delegates through the breaker.
func (b *BreakerSource) SampleRow(ctx context.Context, table string) (*Row, error) {
	v, err := b.execute(func() (any, error) {
		row, err := b.next.SampleRow(ctx, table)
		return row, err
	})
	if err != nil {
		return nil, err
	}
	row, _ := v.(*Row)
	return row, nil
}

// Ping bypasses the breaker so health checks observe the real source.
func (b *BreakerSource) Ping(ctx context.Context) error {
	return b.next.Ping(ctx)
}

func (b *BreakerSource) execute(fn func() (any, error)) (any, error) {
	v, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return v, err
}
