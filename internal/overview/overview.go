package overview

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/radiusdt/vector-insights/internal/derive"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/resolver"
)

// KPIs are the headline overview figures.
type KPIs struct {
	// TotalSpent is the sum of all bar values, a spend proxy.
	TotalSpent       float64 `json:"totalSpent"`
	CPI              float64 `json:"cpi"`
	Installs         float64 `json:"installs"`
	SubscriptionsPct float64 `json:"subscriptionsPct"`
}

// BarSet holds the per-platform bar charts.
type BarSet struct {
	FB     derive.Bars `json:"fb"`
	IG     derive.Bars `json:"ig"`
	TikTok derive.Bars `json:"tiktok"`
}

// PieSet holds the categorical breakdowns.
type PieSet struct {
	ByCountry derive.Bars `json:"byCountry"`
	ByOS      derive.Bars `json:"byOS"`
	ByChannel derive.Bars `json:"byChannel"`
}

// Overview is the marketing overview payload.
type Overview struct {
	KPIs KPIs   `json:"kpis"`
	Bars BarSet `json:"bars"`
	Pies PieSet `json:"pies"`
}

var channels = []struct {
	label string
	id    registry.MetricID
}{
	{"Facebook", registry.ChannelFacebook},
	{"Instagram", registry.ChannelInstagram},
	{"TikTok", registry.ChannelTikTok},
}

// Overview assembles the overview payload. Every resolution runs
// concurrently; the returned error is non-nil only when the data source is
// unavailable or ctx is done.
func (a *Assembler) Overview(ctx context.Context, p Params) (out *Overview, err error) {
	start := time.Now()
	defer func() { a.observe("overview", err, start) }()

	p = a.Normalize(p)
	now := a.opts.Now()
	since := windowStart(now, p.Days)

	var (
		fb, ig                     resolver.Series
		tiktok, byCountry, byOS    derive.Bars
		installs, igViews, igReach float64
	)
	channelTotals := make([]float64, len(channels))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error
		fb, err = a.timeSeriesWidened(gctx, registry.FBBars, since, now)
		return err
	})
	g.Go(func() error {
		var err error
		ig, err = a.timeSeriesWidened(gctx, registry.IGBars, since, now)
		return err
	})
	g.Go(func() error {
		s, err := a.resolver.ResolveTimeSeries(gctx, registry.TikTokBars, since)
		if err != nil {
			return err
		}
		if s.Empty() {
			a.fallback("tiktok_bars")
			tiktok = derive.PlaceholderBars(now, p.Days)
			return nil
		}
		tiktok = derive.Bucketize(s)
		return nil
	})
	g.Go(func() error {
		var err error
		installs, err = a.installsInWindow(gctx, since)
		return err
	})
	g.Go(func() error {
		var err error
		igViews, err = a.windowTotalOrAllTime(gctx, registry.IGViews, since)
		return err
	})
	g.Go(func() error {
		var err error
		igReach, err = a.windowTotalOrAllTime(gctx, registry.IGReach, since)
		return err
	})
	g.Go(func() error {
		id := registry.CountryInstagram
		if p.CountryPlatform == PlatformFacebook {
			id = registry.CountryFacebook
		}
		var err error
		byCountry, err = a.topCountries(gctx, id, p.CountryLimit)
		return err
	})
	g.Go(func() error {
		pair, err := a.resolver.ResolvePairTotals(gctx, registry.OSSplit)
		if err != nil {
			return err
		}
		if pair.Source == nil {
			a.fallback("os_split")
			byOS = osFallback.Clone()
			return nil
		}
		byOS = derive.Bars{Labels: []string{"Android", "iOS"}, Values: []float64{pair.First, pair.Second}}
		return nil
	})
	for i, ch := range channels {
		g.Go(func() error {
			total, err := a.resolver.ResolveWindowTotal(gctx, ch.id, since)
			if err != nil {
				return err
			}
			channelTotals[i] = total.Value
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		a.logger.Error("Failed to assemble overview",
			zap.Int("days", p.Days),
			zap.String("country_platform", string(p.CountryPlatform)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("assemble overview: %w", err)
	}

	fbBars, igBars := derive.Bucketize(fb), derive.Bucketize(ig)
	spent := derive.SpendProxy(fbBars, igBars, tiktok)

	return &Overview{
		KPIs: KPIs{
			TotalSpent:       spent,
			CPI:              derive.CPI(spent, installs),
			Installs:         installs,
			SubscriptionsPct: derive.SubscriptionsPct(igViews, igReach),
		},
		Bars: BarSet{FB: fbBars, IG: igBars, TikTok: tiktok},
		Pies: PieSet{
			ByCountry: byCountry,
			ByOS:      byOS,
			ByChannel: a.channelPie(channelTotals),
		},
	}, nil
}

// installsInWindow prefers daily installs, then the installed-base delta,
// then the all-time daily installs total.
func (a *Assembler) installsInWindow(ctx context.Context, since time.Time) (float64, error) {
	daily, err := a.resolver.ResolveTimeSeries(ctx, registry.DailyInstalls, since)
	if err != nil {
		return 0, err
	}

	var base resolver.Series
	if daily.Empty() {
		if base, err = a.resolver.ResolveTimeSeries(ctx, registry.InstalledBase, since); err != nil {
			return 0, err
		}
	}

	installs, nonMonotonic := derive.Installs(daily, base)
	if nonMonotonic {
		a.logger.Warn("Installed base decreases within window, installs estimate is floored",
			zap.Time("since", since),
			zap.Float64("installs", installs),
		)
	}
	if installs != 0 {
		return installs, nil
	}

	all, err := a.resolver.ResolveScalarTotal(ctx, registry.DailyInstalls)
	if err != nil {
		return 0, err
	}
	return all.Value, nil
}

func (a *Assembler) channelPie(totals []float64) derive.Bars {
	out := derive.EmptyBars()
	for i, ch := range channels {
		if totals[i] != 0 {
			out.Labels = append(out.Labels, ch.label)
			out.Values = append(out.Values, totals[i])
		}
	}
	if len(out.Labels) == 0 {
		a.fallback("channels")
		return channelFallback.Clone()
	}
	return out
}
