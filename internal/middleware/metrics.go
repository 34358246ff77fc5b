package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/radiusdt/vector-insights/internal/metrics"
)

// MetricsMiddleware records request counts and latency per chi route pattern.
type MetricsMiddleware struct {
	metrics *metrics.Metrics
}

// NewMetricsMiddleware creates a metrics middleware. m may be nil.
func NewMetricsMiddleware(m *metrics.Metrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: m}
}

func (mm *MetricsMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if mm.metrics == nil {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		rw := wrap(w)
		next.ServeHTTP(rw, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		mm.metrics.RecordHTTPRequest(route, rw.status, time.Since(start))
	})
}
