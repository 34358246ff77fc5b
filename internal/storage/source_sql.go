package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
)

// Dialect describes how SQLSource renders queries for one database/sql driver.
type Dialect struct {
	Name string
	// Quote renders a safe identifier.
	Quote func(name string) string
	// SumExpr renders a null-safe float sum of an already quoted column.
	SumExpr func(column string) string
	// TimeArg converts a lower bound into a bind argument.
	TimeArg func(t time.Time) any
	// SinceCond renders "column is at or after the bound" for an already
	// quoted column and one placeholder.
	SinceCond func(column string) string
	// SchemaMismatch reports whether a driver error means table or column absence.
	SchemaMismatch func(err error) bool
}

// SQLiteDialect renders queries for modernc.org/sqlite.
var SQLiteDialect = Dialect{
	Name:  "sqlite",
	Quote: doubleQuote,
	SumExpr: func(column string) string {
		return fmt.Sprintf("CAST(COALESCE(SUM(%s), 0) AS REAL)", column)
	},
	TimeArg: func(t time.Time) any {
		return t.UTC().Format("2006-01-02 15:04:05")
	},
	// Date columns hold text in mixed layouts, so bounds compare as instants.
	SinceCond: func(column string) string {
		return "julianday(" + column + ") >= julianday(?)"
	},
	SchemaMismatch: func(err error) bool {
		msg := strings.ToLower(err.Error())
		return strings.Contains(msg, "no such table") ||
			strings.Contains(msg, "no such column") ||
			strings.Contains(msg, "no such function") ||
			strings.Contains(msg, "datatype mismatch")
	},
}

// clickHouseMismatchCodes are server exception codes for absent or
// type-incompatible tables and columns.
var clickHouseMismatchCodes = map[int32]bool{
	16: true, // NO_SUCH_COLUMN_IN_TABLE
	43: true, // ILLEGAL_TYPE_OF_ARGUMENT
	47: true, // UNKNOWN_IDENTIFIER
	53: true, // TYPE_MISMATCH
	60: true, // UNKNOWN_TABLE
	81: true, // UNKNOWN_DATABASE
}

// ClickHouseDialect renders queries for clickhouse-go's database/sql interface.
var ClickHouseDialect = Dialect{
	Name: "clickhouse",
	Quote: func(name string) string {
		return "`" + strings.ReplaceAll(name, "`", "\\`") + "`"
	},
	SumExpr: func(column string) string {
		return fmt.Sprintf("toFloat64(coalesce(sum(%s), 0))", column)
	},
	TimeArg: func(t time.Time) any {
		return t
	},
	SinceCond: func(column string) string {
		return column + " >= ?"
	},
	SchemaMismatch: func(err error) bool {
		var ex *clickhouse.Exception
		if errors.As(err, &ex) {
			return clickHouseMismatchCodes[ex.Code]
		}
		return false
	},
}

func doubleQuote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// SQLSource implements TabularSource on top of database/sql.
type SQLSource struct {
	db      *sql.DB
	dialect Dialect
}

// NewSQLSource creates a tabular source for db rendered with dialect.
func NewSQLSource(db *sql.DB, dialect Dialect) *SQLSource {
	return &SQLSource{db: db, dialect: dialect}
}

// GroupSum groups and sums one column of a table.
func (s *SQLSource) GroupSum(ctx context.Context, q GroupSumQuery) ([]GroupRow, error) {
	key := s.dialect.Quote(q.GroupBy)
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s AS bucket_key, %s AS bucket_sum FROM %s",
		key, s.dialect.SumExpr(s.dialect.Quote(q.Value)), s.dialect.Quote(q.Table))

	where, args := s.where(q.Filter)
	sb.WriteString(where)
	fmt.Fprintf(&sb, " GROUP BY %s", key)

	if q.Order == OrderSumDesc {
		sb.WriteString(" ORDER BY bucket_sum DESC")
	} else {
		fmt.Fprintf(&sb, " ORDER BY %s ASC", key)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, s.classify("group sum "+q.Table, err)
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var r GroupRow
		if err := rows.Scan(&r.Key, &r.Sum); err != nil {
			return nil, s.classify("scan group sum "+q.Table, err)
		}
		r.Key = normalizeSQLValue(r.Key)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify("group sum "+q.Table, err)
	}

	return out, nil
}

// Sum aggregates one column over the filtered table.
func (s *SQLSource) Sum(ctx context.Context, q SumQuery) (float64, error) {
	where, args := s.where(q.Filter)
	query := fmt.Sprintf("SELECT %s FROM %s%s",
		s.dialect.SumExpr(s.dialect.Quote(q.Value)), s.dialect.Quote(q.Table), where)

	var total float64
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&total); err != nil {
		return 0, s.classify("sum "+q.Table, err)
	}
	return total, nil
}

// SampleRow fetches one arbitrary row.
func (s *SQLSource) SampleRow(ctx context.Context, table string) (*Row, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 1", s.dialect.Quote(table)))
	if err != nil {
		return nil, s.classify("sample "+table, err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, s.classify("sample "+table, err)
	}

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, s.classify("sample "+table, err)
		}
		return nil, nil
	}

	values := make([]any, len(columns))
	ptrs := make([]any, len(columns))
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, s.classify("sample "+table, err)
	}
	for i := range values {
		values[i] = normalizeSQLValue(values[i])
	}

	return &Row{Columns: columns, Values: values}, nil
}

// Ping checks the database connection.
func (s *SQLSource) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (s *SQLSource) where(f Filter) (string, []any) {
	var conds []string
	var args []any

	if f.hasSince() {
		conds = append(conds, s.dialect.SinceCond(s.dialect.Quote(f.DateColumn)))
		args = append(args, s.dialect.TimeArg(f.Since))
	}
	if f.NotNull != "" {
		conds = append(conds, s.dialect.Quote(f.NotNull)+" IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func (s *SQLSource) classify(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}
	if s.dialect.SchemaMismatch(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrSchemaMismatch, err)
	}
	return fmt.Errorf("%s (%s): %w: %w", op, s.dialect.Name, ErrUnavailable, err)
}

func normalizeSQLValue(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
