// Package registry maps logical dashboard metrics onto the ordered schema
// candidates that may hold their data.
package registry

import "fmt"

// MetricID enumerates the logical metrics the dashboards request.
type MetricID int

const (
	FBBars MetricID = iota
	IGBars
	TikTokBars
	DailyInstalls
	InstalledBase
	IGViews
	IGReach
	IGEngagements
	FBViews
	FBReach
	FBEngagements
	TikTokViews
	CountryFacebook
	CountryInstagram
	AudienceCountry
	OSSplit
	ChannelFacebook
	ChannelInstagram
	ChannelTikTok
	AudienceAge

	metricCount
)

// Kind is the shape of data a metric resolves to.
type Kind int

const (
	KindTimeSeries Kind = iota
	KindCategorical
	KindScalar
)

func (k Kind) String() string {
	switch k {
	case KindTimeSeries:
		return "time_series"
	case KindCategorical:
		return "categorical"
	case KindScalar:
		return "scalar"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Metric describes one logical metric.
type Metric struct {
	ID   MetricID
	Name string
	Kind Kind
}

// Candidate is one concrete mapping hypothesis for a metric.
type Candidate struct {
	Table string `json:"table"`
	// Date is the time bucket column; empty for non time-series metrics.
	Date string `json:"date,omitempty"`
	// Label is the grouping column for categorical metrics.
	Label string `json:"label,omitempty"`
	Value string `json:"value"`
	// Secondary is the second value column of composite metrics
	// (android/ios, women/men).
	Secondary string `json:"secondary,omitempty"`
}

func (c Candidate) String() string {
	switch {
	case c.Date != "":
		return fmt.Sprintf("%s(%s, %s)", c.Table, c.Date, c.Value)
	case c.Label != "":
		return fmt.Sprintf("%s(%s, %s)", c.Table, c.Label, c.Value)
	case c.Secondary != "":
		return fmt.Sprintf("%s(%s, %s)", c.Table, c.Value, c.Secondary)
	default:
		return fmt.Sprintf("%s(%s)", c.Table, c.Value)
	}
}

type entry struct {
	metric     Metric
	candidates []Candidate
}

// Registry is an immutable lookup from metric to ordered candidates.
type Registry struct {
	entries [metricCount]*entry
}

// Definition registers one metric with its candidates, highest preference first.
type Definition struct {
	Metric     Metric
	Candidates []Candidate
}

// New builds a registry. It panics when a metric is defined twice or defined
// without candidates: both are programming errors in static configuration.
func New(defs ...Definition) *Registry {
	r := &Registry{}
	for _, d := range defs {
		id := d.Metric.ID
		if id < 0 || id >= metricCount {
			panic(fmt.Sprintf("registry: metric id %d out of range", id))
		}
		if r.entries[id] != nil {
			panic(fmt.Sprintf("registry: metric %s defined twice", d.Metric.Name))
		}
		if len(d.Candidates) == 0 {
			panic(fmt.Sprintf("registry: metric %s has no candidates", d.Metric.Name))
		}
		r.entries[id] = &entry{
			metric:     d.Metric,
			candidates: append([]Candidate(nil), d.Candidates...),
		}
	}
	return r
}

// Has reports whether id is registered.
func (r *Registry) Has(id MetricID) bool {
	return id >= 0 && id < metricCount && r.entries[id] != nil
}

// Metric returns the metric definition for id. Unknown ids panic.
func (r *Registry) Metric(id MetricID) Metric {
	return r.lookup(id).metric
}

// Candidates returns a copy of the ordered candidates for id. Unknown ids panic.
func (r *Registry) Candidates(id MetricID) []Candidate {
	return append([]Candidate(nil), r.lookup(id).candidates...)
}

// Tables returns the distinct tables referenced by id's candidates in order.
func (r *Registry) Tables(id MetricID) []string {
	seen := make(map[string]bool)
	var tables []string
	for _, c := range r.lookup(id).candidates {
		if !seen[c.Table] {
			seen[c.Table] = true
			tables = append(tables, c.Table)
		}
	}
	return tables
}

func (r *Registry) lookup(id MetricID) *entry {
	if !r.Has(id) {
		panic(fmt.Sprintf("registry: unknown metric id %d", id))
	}
	return r.entries[id]
}

// AllMetricIDs lists every declared metric id.
func AllMetricIDs() []MetricID {
	ids := make([]MetricID, 0, metricCount)
	for id := MetricID(0); id < metricCount; id++ {
		ids = append(ids, id)
	}
	return ids
}
