package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresSource implements TabularSource using PostgreSQL.
type PostgresSource struct {
	pool *pgxpool.Pool
}

// NewPostgresSource creates a new PostgreSQL-backed tabular source.
func NewPostgresSource(pool *pgxpool.Pool) *PostgresSource {
	return &PostgresSource{pool: pool}
}

// GroupSum groups and sums one column of a table.
func (s *PostgresSource) GroupSum(ctx context.Context, q GroupSumQuery) ([]GroupRow, error) {
	key := pgIdent(q.GroupBy)
	var sb strings.Builder
	fmt.Fprintf(&sb, "SELECT %s, COALESCE(SUM(%s), 0)::double precision FROM %s",
		key, pgIdent(q.Value), pgIdent(q.Table))

	where, args := pgWhere(q.Filter)
	sb.WriteString(where)
	fmt.Fprintf(&sb, " GROUP BY %s", key)

	if q.Order == OrderSumDesc {
		sb.WriteString(" ORDER BY 2 DESC")
	} else {
		fmt.Fprintf(&sb, " ORDER BY %s ASC", key)
	}
	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}

	rows, err := s.pool.Query(ctx, sb.String(), args...)
	if err != nil {
		return nil, classifyPgError("group sum "+q.Table, err)
	}
	defer rows.Close()

	var out []GroupRow
	for rows.Next() {
		var r GroupRow
		if err := rows.Scan(&r.Key, &r.Sum); err != nil {
			return nil, classifyPgError("scan group sum "+q.Table, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPgError("group sum "+q.Table, err)
	}

	return out, nil
}

// Sum aggregates one column over the filtered table.
func (s *PostgresSource) Sum(ctx context.Context, q SumQuery) (float64, error) {
	where, args := pgWhere(q.Filter)
	query := fmt.Sprintf("SELECT COALESCE(SUM(%s), 0)::double precision FROM %s%s",
		pgIdent(q.Value), pgIdent(q.Table), where)

	var total float64
	if err := s.pool.QueryRow(ctx, query, args...).Scan(&total); err != nil {
		return 0, classifyPgError("sum "+q.Table, err)
	}
	return total, nil
}

// SampleRow fetches one arbitrary row.
func (s *PostgresSource) SampleRow(ctx context.Context, table string) (*Row, error) {
	rows, err := s.pool.Query(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT 1", pgIdent(table)))
	if err != nil {
		return nil, classifyPgError("sample "+table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, classifyPgError("sample "+table, err)
		}
		return nil, nil
	}

	values, err := rows.Values()
	if err != nil {
		return nil, classifyPgError("sample "+table, err)
	}

	fields := rows.FieldDescriptions()
	row := &Row{
		Columns: make([]string, len(fields)),
		Values:  make([]any, len(fields)),
	}
	for i, f := range fields {
		row.Columns[i] = f.Name
		row.Values[i] = normalizePgValue(values[i])
	}

	return row, nil
}

// Ping checks the database connection.
func (s *PostgresSource) Ping(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func pgIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

func pgWhere(f Filter) (string, []any) {
	var conds []string
	var args []any

	if f.hasSince() {
		args = append(args, f.Since)
		conds = append(conds, fmt.Sprintf("%s >= $%d", pgIdent(f.DateColumn), len(args)))
	}
	if f.NotNull != "" {
		conds = append(conds, pgIdent(f.NotNull)+" IS NOT NULL")
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// normalizePgValue converts driver-specific numeric types to float64.
func normalizePgValue(v any) any {
	if n, ok := v.(pgtype.Numeric); ok {
		f, err := n.Float64Value()
		if err != nil || !f.Valid {
			return nil
		}
		return f.Float64
	}
	return v
}

// classifyPgError maps PostgreSQL failures onto the source error taxonomy.
// SQLSTATE classes 42 (syntax/access, incl. undefined table/column/function)
// and 22 (data exception) are schema mismatches; everything else is treated
// as the source being unavailable.
func classifyPgError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if strings.HasPrefix(pgErr.Code, "42") || strings.HasPrefix(pgErr.Code, "22") {
			return fmt.Errorf("%s: %w: %w", op, ErrSchemaMismatch, err)
		}
	}

	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
