package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/metrics"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/storage"
)

var day0 = time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

func day(n int) time.Time {
	return day0.AddDate(0, 0, n)
}

func testRegistry() *registry.Registry {
	return registry.New(
		registry.Definition{
			Metric: registry.Metric{ID: registry.IGBars, Name: "ig_bars", Kind: registry.KindTimeSeries},
			Candidates: []registry.Candidate{
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Engagement__Followers"},
				{Table: "instagram_insights", Date: "Report__Start_date", Value: "Performance__Reach"},
				{Table: "instagram_followers", Date: "By_Day", Value: "Followers"},
			},
		},
		registry.Definition{
			Metric: registry.Metric{ID: registry.CountryInstagram, Name: "ig_country", Kind: registry.KindCategorical},
			Candidates: []registry.Candidate{
				{Table: "instagram_demographics", Label: "country", Value: "percent"},
			},
		},
		registry.Definition{
			Metric: registry.Metric{ID: registry.DailyInstalls, Name: "installs", Kind: registry.KindTimeSeries},
			Candidates: []registry.Candidate{
				{Table: "installs_v1", Date: "date", Value: "n"},
				{Table: "installs_v2", Date: "date", Value: "n"},
			},
		},
		registry.Definition{
			Metric: registry.Metric{ID: registry.OSSplit, Name: "os", Kind: registry.KindScalar},
			Candidates: []registry.Candidate{
				{Table: "device_acquisition", Value: "android", Secondary: "ios"},
				{Table: "device_acquisition", Value: "device_acquisition__android", Secondary: "device_acquisition__ios"},
			},
		},
		registry.Definition{
			Metric: registry.Metric{ID: registry.AudienceAge, Name: "age", Kind: registry.KindCategorical},
			Candidates: []registry.Candidate{
				{Table: "instagram_ageandgender", Label: "age_gender", Value: "women", Secondary: "men"},
			},
		},
	)
}

func newTestResolver(src storage.TabularSource) *Resolver {
	return New(src, testRegistry(), zap.NewNop(), Options{CandidateTimeout: time.Second})
}

func TestResolveTimeSeries_FallsThroughSchemaMismatch(t *testing.T) {
	src := storage.NewMemorySource()
	// First candidate's column does not exist.
	src.CreateTable("instagram_insights", "Report__Start_date", "Performance__Reach")
	_ = src.Insert("instagram_insights", day(1), 5)
	_ = src.Insert("instagram_insights", day(0), 3)
	_ = src.Insert("instagram_insights", day(1), 2)

	r := newTestResolver(src)
	s, err := r.ResolveTimeSeries(context.Background(), registry.IGBars, time.Time{})
	if err != nil {
		t.Fatalf("ResolveTimeSeries() failed: %v", err)
	}
	if s.Source == nil || s.Source.Value != "Performance__Reach" {
		t.Fatalf("Source = %v, want second candidate", s.Source)
	}
	if len(s.Points) != 2 || s.Points[0].Key != day(0) || s.Points[0].Value != 3 || s.Points[1].Value != 7 {
		t.Errorf("Points = %+v", s.Points)
	}
}

func TestResolveTimeSeries_SkipsEmptyCandidate(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("installs_v1", "date", "n")
	src.CreateTable("installs_v2", "date", "n")
	_ = src.Insert("installs_v2", day(3), 4)

	r := newTestResolver(src)
	s, err := r.ResolveTimeSeries(context.Background(), registry.DailyInstalls, time.Time{})
	if err != nil {
		t.Fatalf("ResolveTimeSeries() failed: %v", err)
	}
	if s.Source == nil || s.Source.Table != "installs_v2" {
		t.Errorf("Source = %v, want installs_v2", s.Source)
	}
}

func TestResolveTimeSeries_SinceFilter(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("installs_v1", "date", "n")
	_ = src.Insert("installs_v1", day(0), 1)
	_ = src.Insert("installs_v1", day(5), 2)
	src.CreateTable("installs_v2", "date", "n")
	_ = src.Insert("installs_v2", day(9), 100)

	r := newTestResolver(src)
	s, err := r.ResolveTimeSeries(context.Background(), registry.DailyInstalls, day(6))
	if err != nil {
		t.Fatalf("ResolveTimeSeries() failed: %v", err)
	}
	// installs_v1 has no rows in the window, so the next candidate wins.
	if s.Source == nil || s.Source.Table != "installs_v2" || len(s.Points) != 1 {
		t.Errorf("Series = %+v from %v", s.Points, s.Source)
	}
}

func TestResolveTimeSeries_AllCandidatesFail(t *testing.T) {
	r := newTestResolver(storage.NewMemorySource())

	s, err := r.ResolveTimeSeries(context.Background(), registry.IGBars, day(0))
	if err != nil {
		t.Fatalf("ResolveTimeSeries() error = %v, want nil", err)
	}
	if !s.Empty() || s.Source != nil {
		t.Errorf("Series = %+v, want explicit empty result", s)
	}
	if len(s.Points) != 0 {
		t.Errorf("Points = %v, want none", s.Points)
	}
}

func TestResolveTimeSeries_UnavailableEscapes(t *testing.T) {
	src := storage.NewMemorySource()
	src.SetFailure(errors.New("connection refused"))

	r := newTestResolver(src)
	_, err := r.ResolveTimeSeries(context.Background(), registry.IGBars, day(0))
	if !errors.Is(err, storage.ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
	if src.Calls() != 1 {
		t.Errorf("Calls() = %d, want 1 (no further candidates after outage)", src.Calls())
	}
}

// blockingSource hangs on one table until the query context is done.
type blockingSource struct {
	*storage.MemorySource
	table string
}

func (b *blockingSource) GroupSum(ctx context.Context, q storage.GroupSumQuery) ([]storage.GroupRow, error) {
	if q.Table == b.table {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	return b.MemorySource.GroupSum(ctx, q)
}

func TestResolveTimeSeries_CandidateTimeout(t *testing.T) {
	mem := storage.NewMemorySource()
	mem.CreateTable("installs_v2", "date", "n")
	_ = mem.Insert("installs_v2", day(1), 9)
	src := &blockingSource{MemorySource: mem, table: "installs_v1"}

	r := New(src, testRegistry(), zap.NewNop(), Options{CandidateTimeout: 20 * time.Millisecond})
	s, err := r.ResolveTimeSeries(context.Background(), registry.DailyInstalls, time.Time{})
	if err != nil {
		t.Fatalf("ResolveTimeSeries() failed: %v", err)
	}
	if s.Source == nil || s.Source.Table != "installs_v2" {
		t.Errorf("Source = %v, want installs_v2 after timeout", s.Source)
	}
}

func TestResolveTimeSeries_CallerCancellation(t *testing.T) {
	src := &blockingSource{MemorySource: storage.NewMemorySource(), table: "installs_v1"}
	r := New(src, testRegistry(), zap.NewNop(), Options{CandidateTimeout: time.Minute})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := r.ResolveTimeSeries(ctx, registry.DailyInstalls, time.Time{}); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want caller deadline", err)
	}
}

func seedCountries(t *testing.T, src *storage.MemorySource) {
	t.Helper()
	src.CreateTable("instagram_demographics", "country", "percent")
	for _, r := range []struct {
		country string
		pct     float64
	}{
		{"C", 10}, {"A", 50}, {"D", 5}, {"B", 30},
	} {
		if err := src.Insert("instagram_demographics", r.country, r.pct); err != nil {
			t.Fatal(err)
		}
	}
}

func TestResolveTopN(t *testing.T) {
	src := storage.NewMemorySource()
	seedCountries(t, src)
	r := newTestResolver(src)
	ctx := context.Background()

	tests := []struct {
		name     string
		n        int
		wantKeys []string
	}{
		{"truncates", 3, []string{"A", "B", "C"}},
		{"fewer than n", 10, []string{"A", "B", "C", "D"}},
		{"exactly n", 4, []string{"A", "B", "C", "D"}},
		{"no limit", 0, []string{"A", "B", "C", "D"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := r.ResolveTopN(ctx, registry.CountryInstagram, tt.n)
			if err != nil {
				t.Fatalf("ResolveTopN() failed: %v", err)
			}
			if len(s.Points) != len(tt.wantKeys) {
				t.Fatalf("got %d points, want %d", len(s.Points), len(tt.wantKeys))
			}
			for i, k := range tt.wantKeys {
				if s.Points[i].Key != k {
					t.Errorf("point %d key = %v, want %s", i, s.Points[i].Key, k)
				}
				if i > 0 && s.Points[i].Value > s.Points[i-1].Value {
					t.Errorf("points not descending at %d", i)
				}
			}
		})
	}
}

func TestTopNFor_DetectedCandidate(t *testing.T) {
	src := storage.NewMemorySource()
	seedCountries(t, src)
	r := newTestResolver(src)

	s, err := r.TopNFor(context.Background(), "detected", registry.Candidate{
		Table: "instagram_demographics", Label: "country", Value: "percent",
	}, 2)
	if err != nil {
		t.Fatalf("TopNFor() failed: %v", err)
	}
	if len(s.Points) != 2 || s.Points[0].Key != "A" || s.Points[1].Key != "B" {
		t.Errorf("Points = %+v", s.Points)
	}
}

func TestResolveScalarTotal_Idempotent(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("installs_v2", "date", "n")
	_ = src.Insert("installs_v2", day(0), 4)
	_ = src.Insert("installs_v2", day(1), 6)
	r := newTestResolver(src)
	ctx := context.Background()

	first, err := r.ResolveScalarTotal(ctx, registry.DailyInstalls)
	if err != nil {
		t.Fatalf("ResolveScalarTotal() failed: %v", err)
	}
	second, err := r.ResolveScalarTotal(ctx, registry.DailyInstalls)
	if err != nil {
		t.Fatalf("ResolveScalarTotal() failed: %v", err)
	}
	if first.Value != 10 || first.Value != second.Value || *first.Source != *second.Source {
		t.Errorf("totals = %+v, %+v", first, second)
	}
}

func TestResolveScalarTotal_ZeroWhenNothingResolves(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("installs_v1", "date", "n")
	r := newTestResolver(src)

	s, err := r.ResolveScalarTotal(context.Background(), registry.DailyInstalls)
	if err != nil || s.Value != 0 || s.Source != nil {
		t.Errorf("ResolveScalarTotal() = %+v, %v", s, err)
	}
}

func TestResolveWindowTotal(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("installs_v1", "date", "n")
	_ = src.Insert("installs_v1", day(0), 4)
	_ = src.Insert("installs_v1", day(2), 6)
	r := newTestResolver(src)

	s, err := r.ResolveWindowTotal(context.Background(), registry.DailyInstalls, day(1))
	if err != nil || s.Value != 6 {
		t.Errorf("ResolveWindowTotal() = %+v, %v", s, err)
	}
}

func TestResolvePairTotals(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("device_acquisition", "device_acquisition__android", "device_acquisition__ios")
	_ = src.Insert("device_acquisition", 70, 20)
	_ = src.Insert("device_acquisition", nil, 10)
	r := newTestResolver(src)

	p, err := r.ResolvePairTotals(context.Background(), registry.OSSplit)
	if err != nil {
		t.Fatalf("ResolvePairTotals() failed: %v", err)
	}
	if p.First != 70 || p.Second != 30 {
		t.Errorf("pair = %v/%v, want 70/30", p.First, p.Second)
	}
	if p.Source == nil || p.Source.Value != "device_acquisition__android" {
		t.Errorf("Source = %v", p.Source)
	}
}

func TestResolveCompositeGroups(t *testing.T) {
	src := storage.NewMemorySource()
	src.CreateTable("instagram_ageandgender", "age_gender", "women", "men")
	_ = src.Insert("instagram_ageandgender", "25-34", 10, 5)
	_ = src.Insert("instagram_ageandgender", "18-24", 3, 4)
	_ = src.Insert("instagram_ageandgender", "18-24", 1, nil)
	r := newTestResolver(src)

	s, err := r.ResolveCompositeGroups(context.Background(), registry.AudienceAge)
	if err != nil {
		t.Fatalf("ResolveCompositeGroups() failed: %v", err)
	}
	want := []Point{{Key: "18-24", Value: 8}, {Key: "25-34", Value: 15}}
	if len(s.Points) != len(want) {
		t.Fatalf("Points = %+v", s.Points)
	}
	for i := range want {
		if s.Points[i] != want[i] {
			t.Errorf("point %d = %+v, want %+v", i, s.Points[i], want[i])
		}
	}
}

func TestResolverMetrics(t *testing.T) {
	m := metrics.NewMetrics("test")
	src := storage.NewMemorySource()
	seedCountries(t, src)
	r := New(src, testRegistry(), zap.NewNop(), Options{Metrics: m})
	ctx := context.Background()

	_, _ = r.ResolveTopN(ctx, registry.CountryInstagram, 3)
	_, _ = r.ResolveTimeSeries(ctx, registry.IGBars, time.Time{})

	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues("ig_country", "resolved")); got != 1 {
		t.Errorf("resolved = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues("ig_bars", "empty")); got != 1 {
		t.Errorf("empty = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.CandidateErrors.WithLabelValues("ig_bars", "instagram_insights")); got != 2 {
		t.Errorf("candidate errors = %v, want 2", got)
	}
}
