package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/cache"
	"github.com/radiusdt/vector-insights/internal/config"
	"github.com/radiusdt/vector-insights/internal/database"
	"github.com/radiusdt/vector-insights/internal/detect"
	"github.com/radiusdt/vector-insights/internal/httpserver"
	"github.com/radiusdt/vector-insights/internal/metrics"
	"github.com/radiusdt/vector-insights/internal/middleware"
	"github.com/radiusdt/vector-insights/internal/overview"
	"github.com/radiusdt/vector-insights/internal/registry"
	"github.com/radiusdt/vector-insights/internal/resolver"
	"github.com/radiusdt/vector-insights/internal/storage"
)

const (
	statsInterval        = 15 * time.Second
	limiterCleanupPeriod = time.Hour
)

// dataSource is an opened tabular source and the handle behind it.
type dataSource struct {
	source storage.TabularSource
	stats  func() database.PoolStats
	close  func()
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := middleware.NewLogger(cfg.Log.Level, cfg.LogFormat())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting Vector-Insights",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("driver", cfg.DataSource.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	m := metrics.NewMetrics(cfg.Metrics.Namespace)

	ds, err := openDataSource(ctx, cfg.DataSource, logger)
	if err != nil {
		logger.Fatal("failed to open data source", zap.Error(err))
	}
	defer ds.close()

	source := storage.TabularSource(storage.NewInstrumentedSource(ds.source, m.RecordQuery))
	if cfg.Breaker.Enabled {
		source = storage.NewBreakerSource(source, storage.BreakerSettings{
			Name:             "datasource",
			MaxRequests:      cfg.Breaker.MaxRequests,
			Interval:         cfg.Breaker.Interval,
			Timeout:          cfg.Breaker.Timeout,
			FailureThreshold: cfg.Breaker.FailureThreshold,
			OnStateChange: func(_, to gobreaker.State) {
				m.SetBreakerState("datasource", int(to))
			},
		}, logger)
	}

	var payloadCache *cache.PayloadCache
	if cfg.Cache.Enabled && cfg.Redis.Enabled {
		redis, err := database.NewRedisDB(ctx, cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis not available, payload caching disabled", zap.Error(err))
		} else {
			defer redis.Close()
			payloadCache = cache.New(cache.NewRedisStore(redis.Client), cfg.Cache.TTL, logger, m)
		}
	}

	reg := registry.Default()
	res := resolver.New(source, reg, logger, resolver.Options{
		CandidateTimeout: cfg.Resolver.CandidateTimeout,
		Metrics:          m,
	})
	assembler := overview.New(res, detect.New(source, logger, m), logger, overview.Options{
		DefaultDays:            cfg.Overview.DefaultDays,
		MaxDays:                cfg.Overview.MaxDays,
		DefaultCountryLimit:    cfg.Overview.DefaultCountryLimit,
		DefaultCountryPlatform: overview.ParsePlatform(cfg.Overview.DefaultCountryPlatform),
		WideWindowDays:         cfg.Resolver.WideWindowDays,
		Targets:                overview.Targets{IGReach: cfg.Targets.IGReach, FBReach: cfg.Targets.FBReach},
		Metrics:                m,
	})

	limiter := middleware.NewRateLimitMiddleware(cfg.RateLimit, logger, m)
	go runEvery(ctx, limiterCleanupPeriod, limiter.CleanupIPLimiters)
	if ds.stats != nil {
		go runEvery(ctx, statsInterval, func() {
			s := ds.stats()
			m.UpdateDBStats(s.Idle, s.InUse, s.Total)
		})
	}

	handler := httpserver.NewServer(&httpserver.Dependencies{
		Assembler:   assembler,
		Source:      source,
		Cache:       payloadCache,
		Config:      cfg,
		Logger:      logger,
		Metrics:     m,
		RateLimiter: limiter,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}

// openDataSource connects the configured driver and adapts it to a
// TabularSource.
func openDataSource(ctx context.Context, cfg config.DataSourceConfig, logger *zap.Logger) (*dataSource, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := database.NewPostgresDB(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		return &dataSource{source: storage.NewPostgresSource(db.Pool), stats: db.Stats, close: db.Close}, nil

	case config.DriverClickHouse, config.DriverSQLite:
		var (
			db      *database.SQLDB
			err     error
			dialect = storage.SQLiteDialect
		)
		if cfg.Driver == config.DriverClickHouse {
			db, err = database.NewClickHouseDB(ctx, cfg, logger)
			dialect = storage.ClickHouseDialect
		} else {
			db, err = database.NewSQLiteDB(ctx, cfg, logger)
		}
		if err != nil {
			return nil, err
		}
		return &dataSource{
			source: storage.NewSQLSource(db.DB, dialect),
			stats:  db.Stats,
			close:  func() { _ = db.Close() },
		}, nil

	case config.DriverMemory:
		logger.Warn("using empty in-memory data source; every payload will use fallback defaults")
		return &dataSource{source: storage.NewMemorySource(), close: func() {}}, nil
	}
	return nil, fmt.Errorf("unsupported data source driver %q", cfg.Driver)
}

func runEvery(ctx context.Context, every time.Duration, fn func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fn()
		}
	}
}
