// Package detect guesses the label and value columns of a categorical table
// from the names and contents of one sampled row. It is a best-effort pass
// used only after the static candidates of a metric produced nothing.
package detect

import (
	"context"
	"math"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/metrics"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/storage"
)

var (
	// Label patterns, most specific first.
	labelPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)audience[^a-z0-9]*country`),
		regexp.MustCompile(`(?i)country`),
	}

	// Value patterns in priority order.
	valuePatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)percent`),
		regexp.MustCompile(`(?i)followers`),
		regexp.MustCompile(`(?i)value`),
	}
)

// Columns is a detected label/value column pair.
type Columns struct {
	Table string
	Label string
	Value string
}

// Candidate converts the detected pair into a categorical schema candidate.
func (c Columns) Candidate() registry.Candidate {
	return registry.Candidate{Table: c.Table, Label: c.Label, Value: c.Value}
}

// Detector samples tables through a tabular source.
type Detector struct {
	source  storage.TabularSource
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// New creates a detector. m may be nil.
func New(source storage.TabularSource, logger *zap.Logger, m *metrics.Metrics) *Detector {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Detector{source: source, logger: logger, metrics: m}
}

// Detect samples one row of table and picks its label and value columns.
// It returns nil when the table is missing, empty, or either column cannot
// be determined. Only data source unavailability is returned as an error.
func (d *Detector) Detect(ctx context.Context, table string) (*Columns, error) {
	row, err := d.source.SampleRow(ctx, table)
	if err != nil {
		if storage.IsSchemaMismatch(err) {
			d.record(table, false)
			return nil, nil
		}
		return nil, err
	}
	if row == nil {
		d.record(table, false)
		return nil, nil
	}

	cols := FromRow(row)
	if cols == nil {
		d.logger.Debug("Column detection failed",
			zap.String("table", table),
			zap.Strings("columns", row.Columns),
		)
		d.record(table, false)
		return nil, nil
	}
	cols.Table = table
	d.record(table, true)
	return cols, nil
}

func (d *Detector) record(table string, found bool) {
	if d.metrics != nil {
		d.metrics.RecordDetection(table, found)
	}
}

// FromRow applies the column heuristics to a sampled row. The returned
// Columns has no table set.
func FromRow(row *storage.Row) *Columns {
	label := matchLabel(row.Columns)
	if label == "" {
		return nil
	}

	for _, p := range valuePatterns {
		for i, name := range row.Columns {
			if name == label || !p.MatchString(name) {
				continue
			}
			if _, ok := Numeric(row.Values[i]); ok {
				return &Columns{Label: label, Value: name}
			}
		}
	}
	return nil
}

func matchLabel(columns []string) string {
	for _, p := range labelPatterns {
		for _, name := range columns {
			if p.MatchString(name) {
				return name
			}
		}
	}
	return ""
}

// Numeric coerces a sampled value to a finite number. Numbers and numeric
// strings qualify; nil, booleans and everything else do not.
func Numeric(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int8:
		f = float64(n)
	case int16:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint8:
		f = float64(n)
	case uint16:
		f = float64(n)
	case uint32:
		f = float64(n)
	case uint64:
		f = float64(n)
	case string:
		s := strings.TrimSpace(n)
		if s == "" {
			return 0, false
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case []byte:
		return Numeric(string(n))
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}
