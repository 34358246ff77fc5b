package registry

import "testing"

func TestDefault_CoversEveryMetric(t *testing.T) {
	r := Default()
	for _, id := range AllMetricIDs() {
		if !r.Has(id) {
			t.Errorf("metric id %d is not registered", id)
			continue
		}
		if len(r.Candidates(id)) == 0 {
			t.Errorf("metric %s has no candidates", r.Metric(id).Name)
		}
	}
}

func TestDefault_TimeSeriesCandidatesHaveDates(t *testing.T) {
	r := Default()
	for _, id := range AllMetricIDs() {
		m := r.Metric(id)
		for _, c := range r.Candidates(id) {
			switch m.Kind {
			case KindTimeSeries:
				if c.Date == "" {
					t.Errorf("%s candidate %s has no date column", m.Name, c)
				}
			case KindCategorical:
				if c.Label == "" {
					t.Errorf("%s candidate %s has no label column", m.Name, c)
				}
			}
			if c.Table == "" || c.Value == "" {
				t.Errorf("%s candidate %+v is incomplete", m.Name, c)
			}
		}
	}
}

func TestCandidates_PreserveOrder(t *testing.T) {
	r := Default()
	got := r.Candidates(IGBars)
	if len(got) != 3 {
		t.Fatalf("IGBars candidates = %d, want 3", len(got))
	}
	if got[0].Value != "Engagement__Followers" || got[2].Table != "instagram_followers" {
		t.Errorf("IGBars order = %v", got)
	}

	// Mutating the returned slice must not leak into the registry.
	got[0].Value = "mutated"
	if r.Candidates(IGBars)[0].Value != "Engagement__Followers" {
		t.Error("Candidates() returned shared storage")
	}
}

func TestTables_Distinct(t *testing.T) {
	r := Default()
	tables := r.Tables(CountryInstagram)
	if len(tables) != 1 || tables[0] != "instagram_demographics" {
		t.Errorf("Tables(CountryInstagram) = %v", tables)
	}
}

func TestUnknownMetricPanics(t *testing.T) {
	r := New(Definition{
		Metric:     Metric{ID: FBBars, Name: "fb"},
		Candidates: []Candidate{{Table: "t", Date: "d", Value: "v"}},
	})

	defer func() {
		if recover() == nil {
			t.Error("Candidates() on unregistered metric should panic")
		}
	}()
	r.Candidates(IGBars)
}

func TestNew_RejectsEmptyCandidates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New() with no candidates should panic")
		}
	}()
	New(Definition{Metric: Metric{ID: FBBars, Name: "fb"}})
}

func TestNew_RejectsDuplicates(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("New() with duplicate metric should panic")
		}
	}()
	c := []Candidate{{Table: "t", Date: "d", Value: "v"}}
	New(
		Definition{Metric: Metric{ID: FBBars, Name: "a"}, Candidates: c},
		Definition{Metric: Metric{ID: FBBars, Name: "b"}, Candidates: c},
	)
}

func TestCandidateString(t *testing.T) {
	tests := []struct {
		c    Candidate
		want string
	}{
		{Candidate{Table: "t", Date: "d", Value: "v"}, "t(d, v)"},
		{Candidate{Table: "t", Label: "l", Value: "v"}, "t(l, v)"},
		{Candidate{Table: "t", Value: "a", Secondary: "b"}, "t(a, b)"},
		{Candidate{Table: "t", Value: "v"}, "t(v)"},
	}
	for _, tt := range tests {
		if got := tt.c.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}
