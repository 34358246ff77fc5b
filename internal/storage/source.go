package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrSchemaMismatch marks a query that failed because a table or column is
	// absent or has an incompatible type. Callers treat it as a missing candidate.
	ErrSchemaMismatch = errors.New("schema mismatch")

	// ErrUnavailable marks a connectivity or transport fault of the data source.
	ErrUnavailable = errors.New("data source unavailable")
)

// IsSchemaMismatch reports whether err is a recoverable schema mismatch.
func IsSchemaMismatch(err error) bool {
	return errors.Is(err, ErrSchemaMismatch)
}

// Order selects the ordering of grouped rows.
type Order int

const (
	// OrderKeyAsc orders groups ascending by their key.
	OrderKeyAsc Order = iota
	// OrderSumDesc orders groups descending by their summed value.
	OrderSumDesc
)

// Filter restricts the rows an aggregation reads.
type Filter struct {
	// DateColumn and Since together keep rows with DateColumn >= Since.
	DateColumn string
	Since      time.Time
	// NotNull keeps rows where this column is not null.
	NotNull string
}

func (f Filter) hasSince() bool {
	return f.DateColumn != "" && !f.Since.IsZero()
}

// GroupSumQuery groups a table by one column and sums another.
type GroupSumQuery struct {
	Table   string
	GroupBy string
	Value   string
	Filter  Filter
	Order   Order
	// Limit truncates the result when positive.
	Limit int
}

// SumQuery sums one column over a whole table.
type SumQuery struct {
	Table  string
	Value  string
	Filter Filter
}

// GroupRow is one group produced by GroupSum.
type GroupRow struct {
	// Key is the group value as returned by the driver: time.Time for date
	// columns, string for labels.
	Key any
	// Sum is the summed value; groups whose values are all null sum to zero.
	Sum float64
}

// Row is a single sampled table row with columns in table order.
type Row struct {
	Columns []string
	Values  []any
}

// Get returns the value of the named column.
func (r *Row) Get(column string) (any, bool) {
	for i, c := range r.Columns {
		if c == column {
			return r.Values[i], true
		}
	}
	return nil, false
}

// TabularSource is the read-only data store consumed by metric resolution.
// Implementations wrap "table or column does not exist" failures with
// ErrSchemaMismatch and connectivity faults with ErrUnavailable.
type TabularSource interface {
	// GroupSum groups q.Table by q.GroupBy and sums q.Value.
	GroupSum(ctx context.Context, q GroupSumQuery) ([]GroupRow, error)
	// Sum aggregates q.Value over the filtered table.
	Sum(ctx context.Context, q SumQuery) (float64, error)
	// SampleRow returns one arbitrary row, or nil when the table is empty.
	SampleRow(ctx context.Context, table string) (*Row, error)
	// Ping checks the data source is reachable.
	Ping(ctx context.Context) error
}
