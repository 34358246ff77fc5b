package overview

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radiusdt/vector-insights/internal/derive"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/resolver"
)

// ageOrder is the display order of audience age buckets. Unknown buckets
// sort before all known ones.
var ageOrder = []string{"13-17", "18-24", "25-34", "35-44", "45-54", "55-64", "65+"}

// DashboardKPIs are the latest values and trends of the reach series.
type DashboardKPIs struct {
	IGReachNow   float64 `json:"igReachNow"`
	IGReachTrend float64 `json:"igReachTrend"`
	IGViewsNow   float64 `json:"igViewsNow"`
	IGViewsTrend float64 `json:"igViewsTrend"`
	FBReachNow   float64 `json:"fbReachNow"`
	FBReachTrend float64 `json:"fbReachTrend"`
}

// DashboardSeries are the raw daily series.
type DashboardSeries struct {
	IGReach       []resolver.Point `json:"igReach"`
	IGViews       []resolver.Point `json:"igViews"`
	FBReach       []resolver.Point `json:"fbReach"`
	FBViews       []resolver.Point `json:"fbViews"`
	TKViews       []resolver.Point `json:"tkViews"`
	InstallsDaily []resolver.Point `json:"installsDaily"`
}

// Engagement holds engagement-over-reach rates.
type Engagement struct {
	IGRateDaily []derive.RatePoint `json:"igRateDaily"`
	FBRateDaily []derive.RatePoint `json:"fbRateDaily"`
	IGRateNow   float64            `json:"igRateNow"`
	FBRateNow   float64            `json:"fbRateNow"`
}

// TargetProgress reports progress towards configured reach targets. A nil
// progress means no target is configured.
type TargetProgress struct {
	IGReachTarget      float64  `json:"igReachTarget"`
	IGReachProgressPct *float64 `json:"igReachProgressPct"`
	FBReachTarget      float64  `json:"fbReachTarget"`
	FBReachProgressPct *float64 `json:"fbReachProgressPct"`
}

// Totals are window aggregates.
type Totals struct {
	Installs float64 `json:"installs"`
}

// DashboardPies holds the dashboard breakdowns.
type DashboardPies struct {
	ByCountry derive.Bars `json:"byCountry"`
}

// AgeBucket is one audience age group.
type AgeBucket struct {
	Age   string  `json:"age"`
	Value float64 `json:"value"`
}

// Audience holds audience demographics.
type Audience struct {
	IGAge []AgeBucket `json:"igAge"`
}

// PlatformSources names the candidates behind one platform's series.
type PlatformSources struct {
	Views       *registry.Candidate `json:"views"`
	Reach       *registry.Candidate `json:"reach"`
	Engagements *registry.Candidate `json:"engagements"`
}

type TikTokSources struct {
	Views *registry.Candidate `json:"views"`
}

type InstallSources struct {
	Daily *registry.Candidate `json:"daily"`
	Base  *registry.Candidate `json:"base"`
}

// SourceEcho names the candidate that produced each series, nil when none did.
type SourceEcho struct {
	IG       PlatformSources `json:"ig"`
	FB       PlatformSources `json:"fb"`
	TikTok   TikTokSources   `json:"tiktok"`
	Installs InstallSources  `json:"installs"`
}

// Dashboard is the marketing dashboard payload.
type Dashboard struct {
	KPIs       DashboardKPIs   `json:"kpis"`
	Series     DashboardSeries `json:"series"`
	Engagement Engagement      `json:"engagement"`
	Targets    TargetProgress  `json:"targets"`
	Totals     Totals          `json:"totals"`
	Pies       DashboardPies   `json:"pies"`
	Audience   Audience        `json:"audience"`
	Cfg        SourceEcho      `json:"cfg"`
}

// DashboardCacheKey identifies a normalized dashboard request.
func DashboardCacheKey(days int) string {
	return fmt.Sprintf("dashboard:%d", days)
}

// Dashboard assembles the dashboard payload for a window of days.
func (a *Assembler) Dashboard(ctx context.Context, days int) (out *Dashboard, err error) {
	start := time.Now()
	defer func() { a.observe("dashboard", err, start) }()

	days = a.NormalizeDays(days)
	since := windowStart(a.opts.Now(), days)

	daily := []registry.MetricID{
		registry.IGViews,
		registry.FBViews,
		registry.TikTokViews,
		registry.IGReach,
		registry.FBReach,
		registry.IGEngagements,
		registry.FBEngagements,
		registry.DailyInstalls,
		registry.InstalledBase,
	}
	resolved := make(map[registry.MetricID]resolver.Series, len(daily))
	results := make([]resolver.Series, len(daily))

	var (
		byCountry derive.Bars
		igAge     []AgeBucket
	)

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range daily {
		g.Go(func() error {
			s, err := a.resolver.ResolveTimeSeries(gctx, id, since)
			results[i] = s
			return err
		})
	}
	g.Go(func() error {
		var err error
		byCountry, err = a.topCountries(gctx, registry.AudienceCountry, a.opts.DashboardCountryLimit)
		return err
	})
	g.Go(func() error {
		s, err := a.resolver.ResolveCompositeGroups(gctx, registry.AudienceAge)
		if err != nil {
			return err
		}
		igAge = sortAges(s)
		return nil
	})

	if err := g.Wait(); err != nil {
		a.logger.Error("Failed to assemble dashboard", zap.Int("days", days), zap.Error(err))
		return nil, fmt.Errorf("assemble dashboard: %w", err)
	}
	for i, id := range daily {
		resolved[id] = results[i]
	}

	igReach, igViews := resolved[registry.IGReach], resolved[registry.IGViews]
	fbReach, fbViews := resolved[registry.FBReach], resolved[registry.FBViews]
	installsDaily, base := resolved[registry.DailyInstalls], resolved[registry.InstalledBase]

	kpis := DashboardKPIs{
		IGReachNow:   derive.Last(igReach),
		IGReachTrend: derive.TrendPct(derive.First(igReach), derive.Last(igReach)),
		IGViewsNow:   derive.Last(igViews),
		IGViewsTrend: derive.TrendPct(derive.First(igViews), derive.Last(igViews)),
		FBReachNow:   derive.Last(fbReach),
		FBReachTrend: derive.TrendPct(derive.First(fbReach), derive.Last(fbReach)),
	}

	igRates := derive.RateJoin(resolved[registry.IGEngagements], igReach)
	fbRates := derive.RateJoin(resolved[registry.FBEngagements], fbReach)

	installs, nonMonotonic := derive.Installs(installsDaily, base)
	if nonMonotonic {
		a.logger.Warn("Installed base decreases within window, installs estimate is floored",
			zap.Int("days", days),
			zap.Float64("installs", installs),
		)
	}

	targets := a.opts.Targets
	return &Dashboard{
		KPIs: kpis,
		Series: DashboardSeries{
			IGReach:       points(igReach),
			IGViews:       points(igViews),
			FBReach:       points(fbReach),
			FBViews:       points(fbViews),
			TKViews:       points(resolved[registry.TikTokViews]),
			InstallsDaily: points(installsDaily),
		},
		Engagement: Engagement{
			IGRateDaily: igRates,
			FBRateDaily: fbRates,
			IGRateNow:   derive.LastRate(igRates),
			FBRateNow:   derive.LastRate(fbRates),
		},
		Targets: TargetProgress{
			IGReachTarget:      targets.IGReach,
			IGReachProgressPct: derive.Progress(kpis.IGReachNow, targets.IGReach),
			FBReachTarget:      targets.FBReach,
			FBReachProgressPct: derive.Progress(kpis.FBReachNow, targets.FBReach),
		},
		Totals:   Totals{Installs: installs},
		Pies:     DashboardPies{ByCountry: byCountry},
		Audience: Audience{IGAge: igAge},
		Cfg: SourceEcho{
			IG: PlatformSources{
				Views:       igViews.Source,
				Reach:       igReach.Source,
				Engagements: resolved[registry.IGEngagements].Source,
			},
			FB: PlatformSources{
				Views:       fbViews.Source,
				Reach:       fbReach.Source,
				Engagements: resolved[registry.FBEngagements].Source,
			},
			TikTok:   TikTokSources{Views: resolved[registry.TikTokViews].Source},
			Installs: InstallSources{Daily: installsDaily.Source, Base: base.Source},
		},
	}, nil
}

func points(s resolver.Series) []resolver.Point {
	if s.Points == nil {
		return []resolver.Point{}
	}
	return s.Points
}

func sortAges(s resolver.Series) []AgeBucket {
	out := make([]AgeBucket, len(s.Points))
	for i, p := range s.Points {
		out[i] = AgeBucket{Age: derive.BucketLabel(p.Key), Value: p.Value}
	}
	rank := func(age string) int {
		for i, a := range ageOrder {
			if a == age {
				return i
			}
		}
		return -1
	}
	sort.SliceStable(out, func(i, j int) bool {
		return rank(out[i].Age) < rank(out[j].Age)
	})
	return out
}
