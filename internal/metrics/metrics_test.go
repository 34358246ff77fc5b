package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordResolution(t *testing.T) {
	m := NewMetrics("test")

	m.RecordResolution("instagram_daily_reach", true)
	m.RecordResolution("instagram_daily_reach", true)
	m.RecordResolution("instagram_daily_reach", false)

	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues("instagram_daily_reach", "resolved")); got != 2 {
		t.Errorf("resolved = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.Resolutions.WithLabelValues("instagram_daily_reach", "empty")); got != 1 {
		t.Errorf("empty = %v, want 1", got)
	}
}

func TestRecordFallbackAndDetection(t *testing.T) {
	m := NewMetrics("test")

	m.RecordFallback("os_split")
	m.RecordDetection("instagram_demographics", false)

	if got := testutil.ToFloat64(m.Fallbacks.WithLabelValues("os_split")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Detections.WithLabelValues("instagram_demographics", "false")); got != 1 {
		t.Errorf("detections = %v, want 1", got)
	}
}

func TestRecordQueryStatus(t *testing.T) {
	m := NewMetrics("test")

	m.RecordQuery("group_sum", nil, time.Millisecond)
	m.RecordQuery("group_sum", errors.New("boom"), time.Millisecond)

	if n := testutil.CollectAndCount(m.QueryLatency); n != 2 {
		t.Errorf("query latency series = %d, want 2", n)
	}
}

func TestIndependentRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	a := NewMetrics("test")
	b := NewMetrics("test")
	a.RecordHTTPRequest("/overview", 200, time.Millisecond)

	if got := testutil.ToFloat64(b.HTTPRequests.WithLabelValues("/overview", "200")); got != 0 {
		t.Errorf("second instance counter = %v, want 0", got)
	}
}

func TestHandlerExposesNamespace(t *testing.T) {
	m := NewMetrics("vector_insights")
	m.RecordFallback("channels")

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `vector_insights_fallbacks_total{component="channels"} 1`) {
		t.Error("metrics output missing fallback counter")
	}
}
