package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/config"
)

// PostgresDB is the pgx pool behind the postgres data source driver.
type PostgresDB struct {
	Pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresDB opens and pings a pool for the marketing database. Queries are
// short aggregate reads, so connections are recycled aggressively.
func NewPostgresDB(ctx context.Context, cfg config.DataSourceConfig, logger *zap.Logger) (*PostgresDB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.MaxConns)
	poolCfg.MinConns = int32(cfg.MinConns)
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "vector-insights"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres %s: %w", cfg.Address(), err)
	}

	logger.Info("Data source connected",
		zap.String("driver", config.DriverPostgres),
		zap.String("addr", cfg.Address()),
		zap.String("database", cfg.DBName),
		zap.Int("max_conns", cfg.MaxConns),
	)
	return &PostgresDB{Pool: pool, logger: logger}, nil
}

// Close releases the pool.
func (db *PostgresDB) Close() {
	if db.Pool == nil {
		return
	}
	db.Pool.Close()
	db.logger.Info("Data source closed", zap.String("driver", config.DriverPostgres))
}

// Stats reports pool usage.
func (db *PostgresDB) Stats() PoolStats {
	s := db.Pool.Stat()
	return PoolStats{
		Idle:  int(s.IdleConns()),
		InUse: int(s.AcquiredConns()),
		Total: int(s.TotalConns()),
	}
}
