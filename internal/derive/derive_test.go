package derive

import (
	"math"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/radiusdt/vector-insights/internal/resolver"
)

func series(points ...resolver.Point) resolver.Series {
	return resolver.Series{Points: points}
}

func pt(key any, v float64) resolver.Point {
	return resolver.Point{Key: key, Value: v}
}

func TestBucketize(t *testing.T) {
	d := time.Date(2026, 10, 7, 0, 0, 0, 0, time.UTC)
	b := Bucketize(series(pt(d, 3), pt(d.AddDate(0, 0, 1), 4), pt("2026-10-09", 5)))

	wantLabels := []string{"07", "08", "2026-10-09"}
	for i, l := range wantLabels {
		if b.Labels[i] != l {
			t.Errorf("label %d = %q, want %q", i, b.Labels[i], l)
		}
	}
	if b.Values[2] != 5 {
		t.Errorf("values = %v", b.Values)
	}

	empty := Bucketize(resolver.Series{})
	if empty.Labels == nil || empty.Values == nil {
		t.Error("Bucketize(empty) must encode as empty arrays, not null")
	}
}

func TestTrendPct(t *testing.T) {
	tests := []struct {
		first, last, want float64
	}{
		{100, 150, 50},
		{200, 100, -50},
		{0, 100, 0},
		{0, 0, 0},
		{-5, 10, 0},
		{math.NaN(), 1, 0},
		{1e-300, 1e300, 0}, // overflows to +Inf
	}
	for _, tt := range tests {
		got := TrendPct(tt.first, tt.last)
		if math.IsNaN(got) || math.IsInf(got, 0) {
			t.Errorf("TrendPct(%v, %v) is not finite", tt.first, tt.last)
		}
		if got != tt.want {
			t.Errorf("TrendPct(%v, %v) = %v, want %v", tt.first, tt.last, got, tt.want)
		}
	}
}

func TestFirstLastTotal(t *testing.T) {
	s := series(pt("a", 2), pt("b", 3), pt("c", 7))
	if First(s) != 2 || Last(s) != 7 || Total(s) != 12 {
		t.Errorf("First/Last/Total = %v/%v/%v", First(s), Last(s), Total(s))
	}
	var empty resolver.Series
	if First(empty) != 0 || Last(empty) != 0 || Total(empty) != 0 {
		t.Error("empty series must derive zeros")
	}
}

func TestRateJoin(t *testing.T) {
	num := series(pt("d1", 10), pt("d2", 20))
	den := series(pt("d1", 0), pt("d2", 50))

	got := RateJoin(num, den)
	want := []RatePoint{{Key: "d1", Rate: 0}, {Key: "d2", Rate: 40}}
	if len(got) != len(want) {
		t.Fatalf("RateJoin() = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if LastRate(got) != 40 || LastRate(nil) != 0 {
		t.Error("LastRate() mismatch")
	}
}

func TestRateJoin_TimeKeysAndMissingDenominator(t *testing.T) {
	d1 := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	// Same instant in another zone must still join.
	other := d1.In(time.FixedZone("EET", 2*3600))

	got := RateJoin(series(pt(d1, 5), pt(d2, 5)), series(pt(other, 10)))
	if got[0].Rate != 50 || got[1].Rate != 0 {
		t.Errorf("RateJoin() = %+v", got)
	}
}

func TestRatePointJSON(t *testing.T) {
	out, err := json.Marshal([]RatePoint{{Key: "d1", Rate: 12.5}})
	if err != nil {
		t.Fatalf("Marshal() failed: %v", err)
	}
	if string(out) != `[["d1",12.5]]` {
		t.Errorf("Marshal() = %s", out)
	}
}

func TestProgress(t *testing.T) {
	if Progress(50, 0) != nil {
		t.Error("Progress without target must be nil")
	}
	if p := Progress(50, 200); p == nil || *p != 25 {
		t.Errorf("Progress(50, 200) = %v", p)
	}
	if p := Progress(500, 200); p == nil || *p != 100 {
		t.Errorf("Progress(500, 200) = %v, want capped at 100", p)
	}
	if p := Progress(0, 200); p == nil || *p != 0 {
		t.Errorf("Progress(0, 200) = %v, want 0 not nil", p)
	}
}

func TestCPIAndSpendProxy(t *testing.T) {
	spent := SpendProxy(
		Bars{Values: []float64{1, 2}},
		Bars{Values: []float64{3}},
		EmptyBars(),
	)
	if spent != 6 {
		t.Errorf("SpendProxy() = %v, want 6", spent)
	}
	if CPI(spent, 3) != 2 {
		t.Errorf("CPI(6, 3) = %v", CPI(spent, 3))
	}
	if CPI(spent, 0) != 0 {
		t.Error("CPI without installs must be 0")
	}
}

func TestInstalledBaseDelta(t *testing.T) {
	tests := []struct {
		name         string
		base         resolver.Series
		want         float64
		nonMonotonic bool
	}{
		{"growing", series(pt("d1", 100), pt("d2", 100), pt("d3", 140)), 40, false},
		{"decreasing", series(pt("d1", 140), pt("d2", 100)), 0, true},
		{"dip then recover", series(pt("d1", 100), pt("d2", 90), pt("d3", 120)), 20, true},
		{"empty", resolver.Series{}, 0, false},
		{"single", series(pt("d1", 100)), 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, flag := InstalledBaseDelta(tt.base)
			if got != tt.want || flag != tt.nonMonotonic {
				t.Errorf("InstalledBaseDelta() = %v, %v; want %v, %v", got, flag, tt.want, tt.nonMonotonic)
			}
		})
	}
}

func TestInstalls_PrefersDaily(t *testing.T) {
	base := series(pt("d1", 100), pt("d3", 140))
	if got, _ := Installs(series(pt("d1", 3), pt("d2", 4)), base); got != 7 {
		t.Errorf("Installs() with daily = %v, want 7", got)
	}
	if got, _ := Installs(resolver.Series{}, base); got != 40 {
		t.Errorf("Installs() without daily = %v, want 40", got)
	}
}

func TestSubscriptionsPct(t *testing.T) {
	if got := SubscriptionsPct(50, 200); got != 25 {
		t.Errorf("SubscriptionsPct(50, 200) = %v", got)
	}
	if got := SubscriptionsPct(500, 200); got != 100 {
		t.Errorf("SubscriptionsPct(500, 200) = %v, want 100", got)
	}
	if got := SubscriptionsPct(10, 0); got != 0 {
		t.Errorf("SubscriptionsPct(10, 0) = %v, want 0", got)
	}
}

func TestPlaceholderBars(t *testing.T) {
	now := time.Date(2026, 10, 19, 15, 30, 0, 0, time.UTC)
	b := PlaceholderBars(now, 7)

	if len(b.Labels) != 7 || len(b.Values) != 7 {
		t.Fatalf("PlaceholderBars() length = %d/%d, want 7", len(b.Labels), len(b.Values))
	}
	if b.Labels[0] != "12" || b.Labels[6] != "18" {
		t.Errorf("labels = %v", b.Labels)
	}
	wantValues := []float64{85, 57, 64, 106, 78, 85, 127}
	for i, v := range wantValues {
		if b.Values[i] != v {
			t.Errorf("value %d = %v, want %v", i, b.Values[i], v)
		}
	}

	again := PlaceholderBars(now, 7)
	for i := range b.Values {
		if again.Values[i] != b.Values[i] || again.Labels[i] != b.Labels[i] {
			t.Fatal("PlaceholderBars() is not deterministic")
		}
	}

	if e := PlaceholderBars(now, 0); len(e.Labels) != 0 || e.Labels == nil {
		t.Errorf("PlaceholderBars(0) = %+v", e)
	}
}

func TestCategorical(t *testing.T) {
	b := Categorical(series(pt("A", 50), pt(nil, 3), pt(int64(7), 1)))
	want := []string{"A", "", "7"}
	for i, l := range want {
		if b.Labels[i] != l {
			t.Errorf("label %d = %q, want %q", i, b.Labels[i], l)
		}
	}
}
