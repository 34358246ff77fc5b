// Package derive turns resolved series into chart buckets and KPIs.
//
// Every function returns a finite number for any finite input: ratios with a
// zero denominator and trends from a zero baseline are 0.
package derive

import (
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"

	"github.com/radiusdt/vector-insights/internal/resolver"
)

// Bars is the chart contract: parallel labels and values.
type Bars struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

// EmptyBars returns bars with non-nil empty slices.
func EmptyBars() Bars {
	return Bars{Labels: []string{}, Values: []float64{}}
}

// Clone returns a deep copy of b.
func (b Bars) Clone() Bars {
	return Bars{
		Labels: append([]string{}, b.Labels...),
		Values: append([]float64{}, b.Values...),
	}
}

// Sum returns the sum of the bar values.
func (b Bars) Sum() float64 {
	var total float64
	for _, v := range b.Values {
		total += v
	}
	return total
}

// Bucketize converts a series into bars. Time keys become the two-digit day
// of month; string keys are kept verbatim.
func Bucketize(s resolver.Series) Bars {
	out := Bars{
		Labels: make([]string, len(s.Points)),
		Values: make([]float64, len(s.Points)),
	}
	for i, p := range s.Points {
		out.Labels[i] = BucketLabel(p.Key)
		out.Values[i] = finite(p.Value)
	}
	return out
}

// BucketLabel formats a bucket key for display.
func BucketLabel(key any) string {
	switch k := key.(type) {
	case time.Time:
		return k.Format("02")
	case *time.Time:
		if k == nil {
			return ""
		}
		return k.Format("02")
	case string:
		return k
	case nil:
		return ""
	default:
		return fmt.Sprint(k)
	}
}

// Key returns a stable string form of a bucket key used to join series.
func Key(key any) string {
	switch k := key.(type) {
	case time.Time:
		return k.UTC().Format(time.RFC3339Nano)
	case nil:
		return ""
	default:
		return fmt.Sprint(k)
	}
}

// Total sums a series.
func Total(s resolver.Series) float64 {
	var total float64
	for _, p := range s.Points {
		total += p.Value
	}
	return finite(total)
}

// First returns the first value of a series, 0 when empty.
func First(s resolver.Series) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return finite(s.Points[0].Value)
}

// Last returns the last value of a series, 0 when empty.
func Last(s resolver.Series) float64 {
	if len(s.Points) == 0 {
		return 0
	}
	return finite(s.Points[len(s.Points)-1].Value)
}

// TrendPct is the percentage change from first to last; 0 when first <= 0.
func TrendPct(first, last float64) float64 {
	if first <= 0 || math.IsNaN(first) || math.IsInf(first, 0) {
		return 0
	}
	return finite((last - first) / first * 100)
}

// Ratio returns num/den*100, or 0 when den <= 0.
func Ratio(num, den float64) float64 {
	if den <= 0 || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	return finite(num / den * 100)
}

// RatePoint is one entry of a rate join. It encodes as a [key, rate] pair.
type RatePoint struct {
	Key  string
	Rate float64
}

// MarshalJSON encodes the point as a two element array.
func (p RatePoint) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]any{p.Key, finite(p.Rate)})
}

// RateJoin divides num by den per bucket key, as a percentage, in num's
// order. Keys missing from den or with a non-positive denominator yield 0.
func RateJoin(num, den resolver.Series) []RatePoint {
	lookup := make(map[string]float64, len(den.Points))
	for _, p := range den.Points {
		lookup[Key(p.Key)] = p.Value
	}
	out := make([]RatePoint, len(num.Points))
	for i, p := range num.Points {
		k := Key(p.Key)
		out[i] = RatePoint{Key: k, Rate: Ratio(p.Value, lookup[k])}
	}
	return out
}

// LastRate returns the rate of the last joined point, 0 when empty.
func LastRate(points []RatePoint) float64 {
	if len(points) == 0 {
		return 0
	}
	return points[len(points)-1].Rate
}

// Progress is min(100, current/target*100). A non-positive target means no
// target is configured and yields nil.
func Progress(current, target float64) *float64 {
	if target <= 0 {
		return nil
	}
	p := math.Min(100, Ratio(current, target))
	return &p
}

// CPI divides the spend proxy by installs, 0 when there are no installs.
// The spend proxy is the sum of every bar chart value: an approximation, not
// an actual spend figure.
func CPI(totalSpentProxy, installs float64) float64 {
	if installs <= 0 {
		return 0
	}
	return finite(totalSpentProxy / installs)
}

// SpendProxy sums the values of all given bar charts.
func SpendProxy(bars ...Bars) float64 {
	var total float64
	for _, b := range bars {
		total += b.Sum()
	}
	return finite(total)
}

// InstalledBaseDelta estimates installs in a window from a cumulative
// installed-base series as last-first, floored at 0. The estimate assumes the
// base never decreases; decreasing data is reported through the flag.
func InstalledBaseDelta(base resolver.Series) (installs float64, nonMonotonic bool) {
	for i := 1; i < len(base.Points); i++ {
		if base.Points[i].Value < base.Points[i-1].Value {
			nonMonotonic = true
			break
		}
	}
	return math.Max(0, Last(base)-First(base)), nonMonotonic
}

// Installs picks the install count for a window: the total of the daily
// installs series when it has data, otherwise the installed-base delta.
func Installs(daily, base resolver.Series) (installs float64, nonMonotonic bool) {
	if !daily.Empty() {
		return Total(daily), false
	}
	return InstalledBaseDelta(base)
}

// SubscriptionsPct is min(100, views/reach*100), 0 without reach.
func SubscriptionsPct(views, reach float64) float64 {
	return math.Min(100, Ratio(views, reach))
}

// PlaceholderBars generates deterministic bars for days days ending before
// now, starting at the beginning of the day days ago.
func PlaceholderBars(now time.Time, days int) Bars {
	if days <= 0 {
		return EmptyBars()
	}
	y, m, d := now.AddDate(0, 0, -days).Date()
	start := time.Date(y, m, d, 0, 0, 0, 0, now.Location())

	out := Bars{
		Labels: make([]string, days),
		Values: make([]float64, days),
	}
	for i := 0; i < days; i++ {
		out.Labels[i] = start.AddDate(0, 0, i).Format("02")
		v := 50 + float64(i*7%80)
		if i%3 == 0 {
			v += 35
		}
		out.Values[i] = v
	}
	return out
}

// Categorical turns a ranked series into pie bars.
func Categorical(s resolver.Series) Bars {
	out := Bars{
		Labels: make([]string, len(s.Points)),
		Values: make([]float64, len(s.Points)),
	}
	for i, p := range s.Points {
		out.Labels[i] = fmt.Sprint(p.Key)
		if p.Key == nil {
			out.Labels[i] = ""
		}
		out.Values[i] = finite(p.Value)
	}
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
