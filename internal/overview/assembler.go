// Package overview assembles dashboard payloads from independently resolved
// metrics. Missing data degrades to documented defaults; only data source
// unavailability fails a request.
package overview

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/derive"
	"github.com/radiusdt/vector-insights/internal/detect"
	"github.com/radiusdt/vector-insights/internal/metrics"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/resolver"
)

// Platform selects the country breakdown source.
type Platform string

const (
	PlatformFacebook  Platform = "Facebook"
	PlatformInstagram Platform = "Instagram"
)

// ParsePlatform maps free-form input onto a platform: anything starting with
// "f" is Facebook, everything else Instagram.
func ParsePlatform(s string) Platform {
	if strings.HasPrefix(strings.ToLower(strings.TrimSpace(s)), "f") {
		return PlatformFacebook
	}
	return PlatformInstagram
}

// Fallback defaults.
var (
	osFallback      = derive.Bars{Labels: []string{"Android", "iOS"}, Values: []float64{60, 40}}
	channelFallback = derive.Bars{Labels: []string{"Facebook", "Instagram", "TikTok"}, Values: []float64{1, 1, 1}}
)

// Targets are the configured reach goals; zero means not configured.
type Targets struct {
	IGReach float64
	FBReach float64
}

// Options configures an Assembler.
type Options struct {
	DefaultDays            int
	MaxDays                int
	DefaultCountryLimit    int
	DefaultCountryPlatform Platform
	// WideWindowDays is the retry window for empty bar series; 0 disables it.
	WideWindowDays int
	// DashboardCountryLimit caps the dashboard country pie.
	DashboardCountryLimit int
	Targets               Targets
	Metrics               *metrics.Metrics
	// Now is the clock; nil uses time.Now.
	Now func() time.Time
}

func (o *Options) setDefaults() {
	if o.DefaultDays <= 0 {
		o.DefaultDays = 30
	}
	if o.MaxDays <= 0 {
		o.MaxDays = 365
	}
	if o.DefaultCountryLimit <= 0 {
		o.DefaultCountryLimit = 5
	}
	if o.DefaultCountryPlatform == "" {
		o.DefaultCountryPlatform = PlatformFacebook
	}
	if o.DashboardCountryLimit <= 0 {
		o.DashboardCountryLimit = 10
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// Assembler builds overview and dashboard payloads.
type Assembler struct {
	resolver *resolver.Resolver
	detector *detect.Detector
	logger   *zap.Logger
	metrics  *metrics.Metrics
	opts     Options
}

// New creates an Assembler. detector may be nil to disable column detection.
func New(r *resolver.Resolver, d *detect.Detector, logger *zap.Logger, opts Options) *Assembler {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.setDefaults()
	return &Assembler{
		resolver: r,
		detector: d,
		logger:   logger,
		metrics:  opts.Metrics,
		opts:     opts,
	}
}

// Params are the overview query parameters.
type Params struct {
	Days            int
	CountryPlatform Platform
	CountryLimit    int
}

// Normalize applies defaults and bounds: non-positive days use the default,
// days are capped at the maximum and non-positive limits use the default.
func (a *Assembler) Normalize(p Params) Params {
	p.Days = a.NormalizeDays(p.Days)
	if p.CountryPlatform == "" {
		p.CountryPlatform = a.opts.DefaultCountryPlatform
	} else {
		p.CountryPlatform = ParsePlatform(string(p.CountryPlatform))
	}
	if p.CountryLimit <= 0 {
		p.CountryLimit = a.opts.DefaultCountryLimit
	}
	return p
}

// NormalizeDays bounds a requested window length.
func (a *Assembler) NormalizeDays(days int) int {
	if days <= 0 {
		return a.opts.DefaultDays
	}
	if days > a.opts.MaxDays {
		return a.opts.MaxDays
	}
	return days
}

// CacheKey identifies normalized parameters.
func (p Params) CacheKey() string {
	return fmt.Sprintf("overview:%d:%s:%d", p.Days, p.CountryPlatform, p.CountryLimit)
}

// windowStart is the start of the day days ago.
func windowStart(now time.Time, days int) time.Time {
	y, m, d := now.AddDate(0, 0, -days).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location())
}

// timeSeriesWidened resolves a time series and, when the window is empty,
// retries once with the wide window.
func (a *Assembler) timeSeriesWidened(ctx context.Context, id registry.MetricID, since, now time.Time) (resolver.Series, error) {
	s, err := a.resolver.ResolveTimeSeries(ctx, id, since)
	if err != nil || !s.Empty() || a.opts.WideWindowDays <= 0 {
		return s, err
	}
	a.fallback("wide_window")
	return a.resolver.ResolveTimeSeries(ctx, id, now.AddDate(0, 0, -a.opts.WideWindowDays))
}

// windowTotalOrAllTime sums a series in the window and falls back to the
// all-time total when the window sums to zero.
func (a *Assembler) windowTotalOrAllTime(ctx context.Context, id registry.MetricID, since time.Time) (float64, error) {
	s, err := a.resolver.ResolveTimeSeries(ctx, id, since)
	if err != nil {
		return 0, err
	}
	if total := derive.Total(s); total != 0 {
		return total, nil
	}
	all, err := a.resolver.ResolveScalarTotal(ctx, id)
	if err != nil {
		return 0, err
	}
	return all.Value, nil
}

// topCountries resolves a country ranking in three stages: static
// candidates, column detection on the candidate tables, then empty bars.
func (a *Assembler) topCountries(ctx context.Context, id registry.MetricID, limit int) (derive.Bars, error) {
	s, err := a.resolver.ResolveTopN(ctx, id, limit)
	if err != nil {
		return derive.Bars{}, err
	}
	if !s.Empty() {
		return derive.Categorical(s), nil
	}

	if a.detector != nil {
		name := a.resolver.Registry().Metric(id).Name
		for _, table := range a.resolver.Registry().Tables(id) {
			cols, err := a.detector.Detect(ctx, table)
			if err != nil {
				return derive.Bars{}, err
			}
			if cols == nil {
				continue
			}
			s, err := a.resolver.TopNFor(ctx, name, cols.Candidate(), limit)
			if err != nil {
				return derive.Bars{}, err
			}
			if !s.Empty() {
				a.logger.Debug("Country breakdown resolved by column detection",
					zap.String("table", cols.Table),
					zap.String("label", cols.Label),
					zap.String("value", cols.Value),
				)
				return derive.Categorical(s), nil
			}
		}
	}

	a.fallback("countries")
	return derive.EmptyBars(), nil
}

func (a *Assembler) fallback(component string) {
	if a.metrics != nil {
		a.metrics.RecordFallback(component)
	}
}

func (a *Assembler) observe(payload string, err error, start time.Time) {
	if a.metrics != nil {
		a.metrics.RecordAssemble(payload, err, time.Since(start))
	}
}
