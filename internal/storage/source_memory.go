package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MemoryTable is an in-memory table: ordered columns and positional rows.
type MemoryTable struct {
	Columns []string
	Rows    [][]any
}

func (t *MemoryTable) index(column string) int {
	for i, c := range t.Columns {
		if c == column {
			return i
		}
	}
	return -1
}

// MemorySource implements TabularSource in memory. It backs the service when
// no database is configured and serves as the test double for resolution.
type MemorySource struct {
	mu      sync.RWMutex
	tables  map[string]*MemoryTable
	failure error
	calls   atomic.Int64
}

// NewMemorySource creates an empty in-memory tabular source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tables: make(map[string]*MemoryTable)}
}

// CreateTable creates or replaces a table with the given columns.
func (m *MemorySource) CreateTable(name string, columns ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tables[name] = &MemoryTable{Columns: append([]string(nil), columns...)}
}

// Insert appends one row; values are positional and must match the columns.
func (m *MemorySource) Insert(table string, values ...any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("insert into %s: %w", table, ErrSchemaMismatch)
	}
	if len(values) != len(t.Columns) {
		return fmt.Errorf("insert into %s: got %d values for %d columns", table, len(values), len(t.Columns))
	}
	t.Rows = append(t.Rows, append([]any(nil), values...))
	return nil
}

// SetFailure makes every subsequent call fail with err wrapped in
// ErrUnavailable. A nil err restores normal operation.
func (m *MemorySource) SetFailure(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failure = err
}

// Calls returns how many queries have been issued.
func (m *MemorySource) Calls() int64 {
	return m.calls.Load()
}

// GroupSum groups and sums one column of a table.
func (m *MemorySource) GroupSum(ctx context.Context, q GroupSumQuery) ([]GroupRow, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failure != nil {
		return nil, fmt.Errorf("group sum %s: %w: %w", q.Table, ErrUnavailable, m.failure)
	}

	t, err := m.table(q.Table)
	if err != nil {
		return nil, err
	}
	keyIdx, valIdx := t.index(q.GroupBy), t.index(q.Value)
	if keyIdx < 0 || valIdx < 0 {
		return nil, fmt.Errorf("group sum %s: %w: column %q or %q", q.Table, ErrSchemaMismatch, q.GroupBy, q.Value)
	}

	keep, err := m.filter(t, q.Filter)
	if err != nil {
		return nil, err
	}

	type group struct {
		key any
		sum float64
	}
	groups := make(map[string]*group)
	var order []string

	for _, row := range t.Rows {
		if !keep(row) {
			continue
		}
		v, err := numeric(row[valIdx])
		if err != nil {
			return nil, fmt.Errorf("group sum %s: %w: %w", q.Table, ErrSchemaMismatch, err)
		}
		k := groupKey(row[keyIdx])
		g, ok := groups[k]
		if !ok {
			g = &group{key: row[keyIdx]}
			groups[k] = g
			order = append(order, k)
		}
		g.sum += v
	}

	out := make([]GroupRow, 0, len(order))
	for _, k := range order {
		out = append(out, GroupRow{Key: groups[k].key, Sum: groups[k].sum})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if q.Order == OrderSumDesc && out[i].Sum != out[j].Sum {
			return out[i].Sum > out[j].Sum
		}
		return lessKey(out[i].Key, out[j].Key)
	})

	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

// Sum aggregates one column over the filtered table.
func (m *MemorySource) Sum(ctx context.Context, q SumQuery) (float64, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failure != nil {
		return 0, fmt.Errorf("sum %s: %w: %w", q.Table, ErrUnavailable, m.failure)
	}

	t, err := m.table(q.Table)
	if err != nil {
		return 0, err
	}
	valIdx := t.index(q.Value)
	if valIdx < 0 {
		return 0, fmt.Errorf("sum %s: %w: column %q", q.Table, ErrSchemaMismatch, q.Value)
	}

	keep, err := m.filter(t, q.Filter)
	if err != nil {
		return 0, err
	}

	var total float64
	for _, row := range t.Rows {
		if !keep(row) {
			continue
		}
		v, err := numeric(row[valIdx])
		if err != nil {
			return 0, fmt.Errorf("sum %s: %w: %w", q.Table, ErrSchemaMismatch, err)
		}
		total += v
	}
	return total, nil
}

// SampleRow returns the first row of the table.
func (m *MemorySource) SampleRow(ctx context.Context, table string) (*Row, error) {
	m.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.failure != nil {
		return nil, fmt.Errorf("sample %s: %w: %w", table, ErrUnavailable, m.failure)
	}

	t, err := m.table(table)
	if err != nil {
		return nil, err
	}
	if len(t.Rows) == 0 {
		return nil, nil
	}

	return &Row{
		Columns: append([]string(nil), t.Columns...),
		Values:  append([]any(nil), t.Rows[0]...),
	}, nil
}

// Ping reports the configured failure, if any.
func (m *MemorySource) Ping(ctx context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.failure != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, m.failure)
	}
	return nil
}

func (m *MemorySource) table(name string) (*MemoryTable, error) {
	t, ok := m.tables[name]
	if !ok {
		return nil, fmt.Errorf("table %q: %w", name, ErrSchemaMismatch)
	}
	return t, nil
}

func (m *MemorySource) filter(t *MemoryTable, f Filter) (func([]any) bool, error) {
	dateIdx, nnIdx := -1, -1
	if f.hasSince() {
		if dateIdx = t.index(f.DateColumn); dateIdx < 0 {
			return nil, fmt.Errorf("filter %q: %w", f.DateColumn, ErrSchemaMismatch)
		}
	}
	if f.NotNull != "" {
		if nnIdx = t.index(f.NotNull); nnIdx < 0 {
			return nil, fmt.Errorf("filter %q: %w", f.NotNull, ErrSchemaMismatch)
		}
	}

	return func(row []any) bool {
		if nnIdx >= 0 && row[nnIdx] == nil {
			return false
		}
		if dateIdx >= 0 {
			ts, ok := row[dateIdx].(time.Time)
			if !ok || ts.Before(f.Since) {
				return false
			}
		}
		return true
	}, nil
}

// numeric converts a stored value for summation; nil sums as zero.
func numeric(v any) (float64, error) {
	switch n := v.(type) {
	case nil:
		return 0, nil
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int32:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case uint32:
		return float64(n), nil
	case uint64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("cannot sum %T", v)
	}
}

func groupKey(v any) string {
	if t, ok := v.(time.Time); ok {
		return fmt.Sprintf("time:%d", t.UnixNano())
	}
	return fmt.Sprintf("%T:%v", v, v)
}

// lessKey orders group keys ascending with nulls last.
func lessKey(a, b any) bool {
	if a == nil || b == nil {
		return a != nil && b == nil
	}
	switch x := a.(type) {
	case time.Time:
		if y, ok := b.(time.Time); ok {
			return x.Before(y)
		}
	case string:
		if y, ok := b.(string); ok {
			return x < y
		}
	}
	fa, errA := numeric(a)
	fb, errB := numeric(b)
	if errA == nil && errB == nil {
		return fa < fb
	}
	return fmt.Sprint(a) < fmt.Sprint(b)
}
