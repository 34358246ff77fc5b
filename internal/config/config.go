package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Data source drivers.
const (
	DriverPostgres   = "postgres"
	DriverClickHouse = "clickhouse"
	DriverSQLite     = "sqlite"
	DriverMemory     = "memory"
)

// Config holds all configuration for the Vector-Insights application.
type Config struct {
	Server     ServerConfig
	DataSource DataSourceConfig
	Redis      RedisConfig
	Cache      CacheConfig
	Resolver   ResolverConfig
	Breaker    BreakerConfig
	Overview   OverviewConfig
	Targets    TargetsConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

// DataSourceConfig selects and configures the tabular data store.
type DataSourceConfig struct {
	Driver     string
	Host       string
	Port       int
	User       string
	Password   string
	DBName     string
	SSLMode    string
	MaxConns   int
	MinConns   int
	SQLitePath string
}

// DSN returns the PostgreSQL connection string.
func (d DataSourceConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

// Address returns host:port.
func (d DataSourceConfig) Address() string {
	return fmt.Sprintf("%s:%d", d.Host, d.Port)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
}

// CacheConfig configures the optional payload cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// ResolverConfig bounds metric resolution.
type ResolverConfig struct {
	// CandidateTimeout caps a single candidate query.
	CandidateTimeout time.Duration
	// WideWindowDays is the retry window used when the requested one is empty.
	WideWindowDays int
}

// BreakerConfig configures the data source circuit breaker.
type BreakerConfig struct {
	Enabled          bool
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

// OverviewConfig holds request defaults for the dashboard endpoints.
type OverviewConfig struct {
	DefaultDays            int
	MaxDays                int
	DefaultCountryLimit    int
	DefaultCountryPlatform string
}

// TargetsConfig holds reach targets. Zero means not configured.
type TargetsConfig struct {
	IGReach float64
	FBReach float64
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level string
	// Format is "json" or "console"; empty picks one from the environment.
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present; real
// environment variables win over it.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("VECTOR_INSIGHTS_HTTP_ADDR", ":8080"),
			Env:             getEnv("VECTOR_INSIGHTS_ENV", "development"),
			ShutdownTimeout: getDurationEnv("VECTOR_INSIGHTS_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		DataSource: DataSourceConfig{
			Driver:     strings.ToLower(getEnv("VECTOR_INSIGHTS_DB_DRIVER", DriverPostgres)),
			Host:       getEnv("VECTOR_INSIGHTS_DB_HOST", "localhost"),
			Port:       getIntEnv("VECTOR_INSIGHTS_DB_PORT", 5432),
			User:       getEnv("VECTOR_INSIGHTS_DB_USER", "insights"),
			Password:   getEnv("VECTOR_INSIGHTS_DB_PASSWORD", "insights_secret"),
			DBName:     getEnv("VECTOR_INSIGHTS_DB_NAME", "marketing"),
			SSLMode:    getEnv("VECTOR_INSIGHTS_DB_SSLMODE", "disable"),
			MaxConns:   getIntEnv("VECTOR_INSIGHTS_DB_MAX_CONNS", 25),
			MinConns:   getIntEnv("VECTOR_INSIGHTS_DB_MIN_CONNS", 2),
			SQLitePath: getEnv("VECTOR_INSIGHTS_SQLITE_PATH", "data/marketing.db"),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("VECTOR_INSIGHTS_REDIS_ENABLED", false),
			Addr:     getEnv("VECTOR_INSIGHTS_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("VECTOR_INSIGHTS_REDIS_PASSWORD", ""),
			DB:       getIntEnv("VECTOR_INSIGHTS_REDIS_DB", 0),
		},
		Cache: CacheConfig{
			Enabled: getBoolEnv("VECTOR_INSIGHTS_CACHE_ENABLED", false),
			TTL:     getDurationEnv("VECTOR_INSIGHTS_CACHE_TTL", time.Minute),
		},
		Resolver: ResolverConfig{
			CandidateTimeout: getDurationEnv("VECTOR_INSIGHTS_CANDIDATE_TIMEOUT", 5*time.Second),
			WideWindowDays:   getIntEnv("VECTOR_INSIGHTS_WIDE_WINDOW_DAYS", 365),
		},
		Breaker: BreakerConfig{
			Enabled:          getBoolEnv("VECTOR_INSIGHTS_BREAKER_ENABLED", true),
			MaxRequests:      uint32(getIntEnv("VECTOR_INSIGHTS_BREAKER_MAX_REQUESTS", 3)),
			Interval:         getDurationEnv("VECTOR_INSIGHTS_BREAKER_INTERVAL", 30*time.Second),
			Timeout:          getDurationEnv("VECTOR_INSIGHTS_BREAKER_TIMEOUT", 10*time.Second),
			FailureThreshold: uint32(getIntEnv("VECTOR_INSIGHTS_BREAKER_FAILURES", 5)),
		},
		Overview: OverviewConfig{
			DefaultDays:            getIntEnv("VECTOR_INSIGHTS_DEFAULT_DAYS", 30),
			MaxDays:                getIntEnv("VECTOR_INSIGHTS_MAX_DAYS", 365),
			DefaultCountryLimit:    getIntEnv("VECTOR_INSIGHTS_DEFAULT_COUNTRY_LIMIT", 5),
			DefaultCountryPlatform: getEnv("VECTOR_INSIGHTS_DEFAULT_COUNTRY_PLATFORM", "Facebook"),
		},
		Targets: TargetsConfig{
			IGReach: getFloatEnv("VECTOR_INSIGHTS_TARGET_IG_REACH", getFloatEnv("TARGET_IG_REACH", 0)),
			FBReach: getFloatEnv("VECTOR_INSIGHTS_TARGET_FB_REACH", getFloatEnv("TARGET_FB_REACH", 0)),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("VECTOR_INSIGHTS_AUTH_ENABLED", false),
			MasterKey: getEnv("VECTOR_INSIGHTS_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("VECTOR_INSIGHTS_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("VECTOR_INSIGHTS_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("VECTOR_INSIGHTS_RATE_LIMIT_RPS", 50),
			Burst:   getIntEnv("VECTOR_INSIGHTS_RATE_LIMIT_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("VECTOR_INSIGHTS_LOG_LEVEL", "info"),
			Format: getEnv("VECTOR_INSIGHTS_LOG_FORMAT", ""),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("VECTOR_INSIGHTS_METRICS_ENABLED", true),
			Path:      getEnv("VECTOR_INSIGHTS_METRICS_PATH", "/metrics"),
			Namespace: getEnv("VECTOR_INSIGHTS_METRICS_NAMESPACE", "vector_insights"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	switch c.DataSource.Driver {
	case DriverPostgres, DriverClickHouse, DriverSQLite, DriverMemory:
	default:
		return fmt.Errorf("unknown VECTOR_INSIGHTS_DB_DRIVER %q", c.DataSource.Driver)
	}
	if c.Overview.DefaultDays <= 0 || c.Overview.MaxDays <= 0 {
		return fmt.Errorf("overview day windows must be positive")
	}
	if c.Overview.DefaultDays > c.Overview.MaxDays {
		return fmt.Errorf("VECTOR_INSIGHTS_DEFAULT_DAYS exceeds VECTOR_INSIGHTS_MAX_DAYS")
	}
	if c.Overview.DefaultCountryLimit <= 0 {
		return fmt.Errorf("VECTOR_INSIGHTS_DEFAULT_COUNTRY_LIMIT must be positive")
	}
	if c.Resolver.WideWindowDays <= 0 {
		return fmt.Errorf("VECTOR_INSIGHTS_WIDE_WINDOW_DAYS must be positive")
	}
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("VECTOR_INSIGHTS_API_KEY_MASTER is required when auth is enabled")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// LogFormat returns the configured log format, defaulting to console output
// in development and JSON everywhere else.
func (c *Config) LogFormat() string {
	if c.Log.Format != "" {
		return c.Log.Format
	}
	if c.IsDevelopment() {
		return "console"
	}
	return "json"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
