package httpserver

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/cache"
	"github.com/radiusdt/vector-insights/internal/config"
	"github.com/radiusdt/vector-insights/internal/metrics"
	"github.com/radiusdt/vector-insights/internal/middleware"
	"github.com/radiusdt/vector-insights/internal/overview"
	"github.com/radiusdt/vector-insights/internal/storage"
)

const healthTimeout = 2 * time.Second

// Dependencies holds all external dependencies for the server.
type Dependencies struct {
	Assembler *overview.Assembler
	Source    storage.TabularSource
	Cache     *cache.PayloadCache
	Config    *config.Config
	Logger    *zap.Logger
	Metrics   *metrics.Metrics

	// RateLimiter is built from Config.RateLimit when nil.
	RateLimiter *middleware.RateLimitMiddleware
}

// Server wraps the HTTP handlers for the marketing endpoints.
type Server struct {
	assembler *overview.Assembler
	source    storage.TabularSource
	cache     *cache.PayloadCache
	logger    *zap.Logger
	config    *config.Config
	metrics   *metrics.Metrics
}

// envelope is the response body of every data endpoint.
type envelope struct {
	OK    bool   `json:"ok"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

// NewServer constructs a new http.Handler with all routes and middleware
// registered.
func NewServer(deps *Dependencies) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		assembler: deps.Assembler,
		source:    deps.Source,
		cache:     deps.Cache,
		logger:    logger,
		config:    deps.Config,
		metrics:   deps.Metrics,
	}

	cfg := deps.Config
	r := chi.NewRouter()
	r.Use(middleware.NewLoggingMiddleware(logger, "/health", cfg.Metrics.Path).Handler)
	r.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	r.Use(middleware.NewMetricsMiddleware(deps.Metrics).Handler)

	r.Get("/health", s.handleHealth)
	if cfg.Metrics.Enabled && deps.Metrics != nil {
		r.Method(http.MethodGet, cfg.Metrics.Path, deps.Metrics.Handler())
	}

	rl := deps.RateLimiter
	if rl == nil {
		rl = middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, deps.Metrics)
	}
	r.Group(func(r chi.Router) {
		r.Use(rl.Handler)
		r.Use(rl.HandlerPerIP)
		r.Use(middleware.NewAuthMiddleware(cfg.Auth, logger).Handler)

		r.Get("/overview", s.handleOverview)
		r.Get("/admin/api/marketing/overview", s.handleOverview)
		r.Get("/dashboard", s.handleDashboard)
		r.Get("/admin/api/marketing/dashboard", s.handleDashboard)
	})

	return r
}

// ---- Health Check ----

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()

	if err := s.source.Ping(ctx); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ---- Marketing ----

func (s *Server) handleOverview(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	p := s.assembler.Normalize(overview.Params{
		Days:            intParam(q.Get("days")),
		CountryPlatform: overview.Platform(q.Get("countryPlatform")),
		CountryLimit:    intParam(q.Get("countryLimit")),
	})

	key := p.CacheKey()
	var cached json.RawMessage
	if s.cache.Get(r.Context(), "overview", key, &cached) {
		s.jsonResponse(w, cached)
		return
	}

	out, err := s.assembler.Overview(r.Context(), p)
	if err != nil {
		s.serverError(w, r, "overview", err)
		return
	}
	s.cache.Set(r.Context(), key, out)
	s.jsonResponse(w, out)
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	days := s.assembler.NormalizeDays(intParam(r.URL.Query().Get("days")))

	key := overview.DashboardCacheKey(days)
	var cached json.RawMessage
	if s.cache.Get(r.Context(), "dashboard", key, &cached) {
		s.jsonResponse(w, cached)
		return
	}

	out, err := s.assembler.Dashboard(r.Context(), days)
	if err != nil {
		s.serverError(w, r, "dashboard", err)
		return
	}
	s.cache.Set(r.Context(), key, out)
	s.jsonResponse(w, out)
}

// intParam parses a query value; anything non-numeric is 0, which the
// assembler replaces with its default.
func intParam(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

// ---- Helpers ----

func (s *Server) jsonResponse(w http.ResponseWriter, data any) {
	s.writeJSON(w, http.StatusOK, envelope{OK: true, Data: data})
}

// serverError logs the cause and returns the opaque error envelope.
func (s *Server) serverError(w http.ResponseWriter, r *http.Request, payload string, err error) {
	s.logger.Error("failed to assemble payload",
		zap.String("payload", payload),
		zap.String("request_id", middleware.GetRequestID(r.Context())),
		zap.Error(err),
	)
	s.writeJSON(w, http.StatusInternalServerError, envelope{Error: "server_error"})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", zap.Error(err))
	}
}
