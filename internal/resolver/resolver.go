// Package resolver maps logical metrics onto the first schema candidate that
// actually holds data.
//
// Each candidate attempt ends in one of three outcomes: rows, empty or failed.
// A schema mismatch or a per-candidate timeout is a failed attempt and the
// resolver moves on to the next candidate. Only data source unavailability
// (and cancellation of the caller's context) escapes as an error.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/metrics"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/storage"
)

// DefaultCandidateTimeout bounds a single candidate query.
const DefaultCandidateTimeout = 5 * time.Second

// Point is one (bucket key, value) pair of a resolved series.
type Point struct {
	// Key is a time.Time or string for date buckets, a label for categories.
	Key   any     `json:"key"`
	Value float64 `json:"value"`
}

// Series is the result of resolving a metric. Source is nil when no
// candidate produced rows.
type Series struct {
	Points []Point
	Source *registry.Candidate
}

// Empty reports whether the series has no points.
func (s Series) Empty() bool {
	return len(s.Points) == 0
}

// Scalar is a resolved aggregate.
type Scalar struct {
	Value  float64
	Source *registry.Candidate
}

// Pair is a resolved two-column aggregate such as android/ios installs.
type Pair struct {
	First, Second float64
	Source        *registry.Candidate
}

// Options configures a Resolver.
type Options struct {
	// CandidateTimeout bounds each candidate query; zero uses DefaultCandidateTimeout.
	CandidateTimeout time.Duration
	Metrics          *metrics.Metrics
}

// Resolver tries the registry candidates of a metric in order against a
// tabular data source.
type Resolver struct {
	source   storage.TabularSource
	registry *registry.Registry
	logger   *zap.Logger
	metrics  *metrics.Metrics
	timeout  time.Duration
}

// New creates a resolver.
func New(source storage.TabularSource, reg *registry.Registry, logger *zap.Logger, opts Options) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.CandidateTimeout
	if timeout <= 0 {
		timeout = DefaultCandidateTimeout
	}
	return &Resolver{
		source:   source,
		registry: reg,
		logger:   logger,
		metrics:  opts.Metrics,
		timeout:  timeout,
	}
}

// Registry returns the candidate registry the resolver reads.
func (r *Resolver) Registry() *registry.Registry {
	return r.registry
}

// ResolveTimeSeries groups by each candidate's date column, summing its value
// column over rows dated at or after since, ordered ascending by date. The
// first candidate returning rows wins. A zero since reads the whole table.
func (r *Resolver) ResolveTimeSeries(ctx context.Context, id registry.MetricID, since time.Time) (Series, error) {
	m := r.registry.Metric(id)
	return resolveSeries(ctx, r, m.Name, r.registry.Candidates(id), func(ctx context.Context, c registry.Candidate) ([]storage.GroupRow, error) {
		return r.source.GroupSum(ctx, storage.GroupSumQuery{
			Table:   c.Table,
			GroupBy: c.Date,
			Value:   c.Value,
			Filter:  storage.Filter{DateColumn: c.Date, Since: since},
			Order:   storage.OrderKeyAsc,
		})
	})
}

// ResolveTopN groups by each candidate's label column and returns the n
// largest sums in descending order. n <= 0 keeps every group.
func (r *Resolver) ResolveTopN(ctx context.Context, id registry.MetricID, n int) (Series, error) {
	m := r.registry.Metric(id)
	return r.topN(ctx, m.Name, r.registry.Candidates(id), n)
}

// TopNFor runs the top-N query against an ad-hoc candidate, typically one
// produced by column detection.
func (r *Resolver) TopNFor(ctx context.Context, name string, c registry.Candidate, n int) (Series, error) {
	return r.topN(ctx, name, []registry.Candidate{c}, n)
}

func (r *Resolver) topN(ctx context.Context, name string, candidates []registry.Candidate, n int) (Series, error) {
	if n < 0 {
		n = 0
	}
	return resolveSeries(ctx, r, name, candidates, func(ctx context.Context, c registry.Candidate) ([]storage.GroupRow, error) {
		return r.source.GroupSum(ctx, storage.GroupSumQuery{
			Table:   c.Table,
			GroupBy: c.Label,
			Value:   c.Value,
			Order:   storage.OrderSumDesc,
			Limit:   n,
		})
	})
}

// ResolveScalarTotal sums each candidate's value column over the whole table.
// The first candidate with a non-zero total wins; otherwise the total is 0.
func (r *Resolver) ResolveScalarTotal(ctx context.Context, id registry.MetricID) (Scalar, error) {
	return r.ResolveWindowTotal(ctx, id, time.Time{})
}

// ResolveWindowTotal is ResolveScalarTotal restricted to rows dated at or
// after since on candidates that carry a date column.
func (r *Resolver) ResolveWindowTotal(ctx context.Context, id registry.MetricID, since time.Time) (Scalar, error) {
	m := r.registry.Metric(id)
	v, src, err := fold(ctx, r, m.Name, r.registry.Candidates(id), func(ctx context.Context, c registry.Candidate) (float64, bool, error) {
		total, err := r.source.Sum(ctx, storage.SumQuery{
			Table:  c.Table,
			Value:  c.Value,
			Filter: storage.Filter{DateColumn: c.Date, Since: since},
		})
		return total, total != 0, err
	})
	if err != nil {
		return Scalar{}, err
	}
	return Scalar{Value: v, Source: src}, nil
}

// ResolvePairTotals sums the value and secondary columns of each candidate,
// each over its non-null rows. A candidate is accepted when either total is
// non-zero.
func (r *Resolver) ResolvePairTotals(ctx context.Context, id registry.MetricID) (Pair, error) {
	m := r.registry.Metric(id)
	p, src, err := fold(ctx, r, m.Name, r.registry.Candidates(id), func(ctx context.Context, c registry.Candidate) (Pair, bool, error) {
		first, err := r.source.Sum(ctx, storage.SumQuery{
			Table:  c.Table,
			Value:  c.Value,
			Filter: storage.Filter{NotNull: c.Value},
		})
		if err != nil {
			return Pair{}, false, err
		}
		second, err := r.source.Sum(ctx, storage.SumQuery{
			Table:  c.Table,
			Value:  c.Secondary,
			Filter: storage.Filter{NotNull: c.Secondary},
		})
		if err != nil {
			return Pair{}, false, err
		}
		return Pair{First: first, Second: second}, first != 0 || second != 0, nil
	})
	if err != nil {
		return Pair{}, err
	}
	p.Source = src
	return p, nil
}

// ResolveCompositeGroups groups by each candidate's label column and sums the
// value and secondary columns together per label, ordered by label.
func (r *Resolver) ResolveCompositeGroups(ctx context.Context, id registry.MetricID) (Series, error) {
	m := r.registry.Metric(id)
	return resolveSeries(ctx, r, m.Name, r.registry.Candidates(id), func(ctx context.Context, c registry.Candidate) ([]storage.GroupRow, error) {
		primary, err := r.source.GroupSum(ctx, storage.GroupSumQuery{
			Table:   c.Table,
			GroupBy: c.Label,
			Value:   c.Value,
			Order:   storage.OrderKeyAsc,
		})
		if err != nil || c.Secondary == "" {
			return primary, err
		}
		secondary, err := r.source.GroupSum(ctx, storage.GroupSumQuery{
			Table:   c.Table,
			GroupBy: c.Label,
			Value:   c.Secondary,
			Order:   storage.OrderKeyAsc,
		})
		if err != nil {
			return nil, err
		}
		return mergeGroups(primary, secondary), nil
	})
}

// mergeGroups adds b's sums into a by key, appending keys only present in b.
func mergeGroups(a, b []storage.GroupRow) []storage.GroupRow {
	index := make(map[string]int, len(a))
	out := append([]storage.GroupRow(nil), a...)
	for i, row := range out {
		index[fmt.Sprint(row.Key)] = i
	}
	for _, row := range b {
		k := fmt.Sprint(row.Key)
		if i, ok := index[k]; ok {
			out[i].Sum += row.Sum
			continue
		}
		index[k] = len(out)
		out = append(out, row)
	}
	return out
}

func resolveSeries(
	ctx context.Context,
	r *Resolver,
	name string,
	candidates []registry.Candidate,
	query func(context.Context, registry.Candidate) ([]storage.GroupRow, error),
) (Series, error) {
	rows, src, err := fold(ctx, r, name, candidates, func(ctx context.Context, c registry.Candidate) ([]storage.GroupRow, bool, error) {
		rows, err := query(ctx, c)
		return rows, len(rows) > 0, err
	})
	if err != nil {
		return Series{}, err
	}
	points := make([]Point, len(rows))
	for i, row := range rows {
		points[i] = Point{Key: row.Key, Value: row.Sum}
	}
	return Series{Points: points, Source: src}, nil
}

type outcome int

const (
	outcomeRows outcome = iota
	outcomeEmpty
	outcomeFailed
)

func (o outcome) String() string {
	switch o {
	case outcomeRows:
		return "rows"
	case outcomeEmpty:
		return "empty"
	default:
		return "failed"
	}
}

type attempt[T any] struct {
	outcome outcome
	value   T
	err     error
}

// try runs one candidate query under the per-candidate deadline and tags its
// result.
func try[T any](ctx context.Context, timeout time.Duration, c registry.Candidate, q func(context.Context, registry.Candidate) (T, bool, error)) attempt[T] {
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	v, ok, err := q(actx, c)
	switch {
	case err != nil:
		return attempt[T]{outcome: outcomeFailed, err: err}
	case !ok:
		return attempt[T]{outcome: outcomeEmpty}
	default:
		return attempt[T]{outcome: outcomeRows, value: v}
	}
}

// fold walks candidates strictly in order and returns the first attempt with
// rows. When no candidate yields rows it returns the zero value and a nil
// source.
func fold[T any](
	ctx context.Context,
	r *Resolver,
	name string,
	candidates []registry.Candidate,
	q func(context.Context, registry.Candidate) (T, bool, error),
) (T, *registry.Candidate, error) {
	var zero T
	for i := range candidates {
		c := candidates[i]
		a := try(ctx, r.timeout, c, q)
		switch a.outcome {
		case outcomeRows:
			r.record(name, true)
			return a.value, &c, nil
		case outcomeEmpty:
			continue
		}

		if err := ctx.Err(); err != nil {
			return zero, nil, err
		}
		if !recoverable(a.err) {
			r.logger.Error("Data source unavailable during resolution",
				zap.String("metric", name),
				zap.String("table", c.Table),
				zap.Error(a.err),
			)
			return zero, nil, fmt.Errorf("resolve %s: %w", name, a.err)
		}
		r.logger.Debug("Candidate failed",
			zap.String("metric", name),
			zap.Int("candidate", i),
			zap.Stringer("columns", c),
			zap.Error(a.err),
		)
		if r.metrics != nil {
			r.metrics.RecordCandidateError(name, c.Table)
		}
	}
	r.record(name, false)
	return zero, nil, nil
}

// recoverable reports whether a failed attempt lets resolution continue.
func recoverable(err error) bool {
	if storage.IsSchemaMismatch(err) {
		return true
	}
	// The caller's context is checked first, so a deadline here is the
	// per-candidate timeout.
	return errors.Is(err, context.DeadlineExceeded)
}

func (r *Resolver) record(name string, resolved bool) {
	if r.metrics != nil {
		r.metrics.RecordResolution(name, resolved)
	}
}
