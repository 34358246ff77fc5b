package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"go.uber.org/zap"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/radiusdt/vector-insights/internal/config"
)

// PoolStats is a connection pool snapshot.
type PoolStats struct {
	Idle  int
	InUse int
	Total int
}

// SQLDB wraps a database/sql handle for the SQLite and ClickHouse drivers.
type SQLDB struct {
	*sql.DB
	driver string
	logger *zap.Logger
}

// NewSQLiteDB opens the SQLite database at cfg.SQLitePath. The service only
// reads from it.
func NewSQLiteDB(ctx context.Context, cfg config.DataSourceConfig, logger *zap.Logger) (*SQLDB, error) {
	path := cfg.SQLitePath
	if dir := filepath.Dir(path); path != ":memory:" && dir != "" && dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite directory %s: %w", dir, err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(cfg.MaxConns)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}

	logger.Info("Data source connected", zap.String("driver", config.DriverSQLite), zap.String("path", path))
	return &SQLDB{DB: db, driver: config.DriverSQLite, logger: logger}, nil
}

// NewClickHouseDB opens a ClickHouse connection through the database/sql
// interface of clickhouse-go.
func NewClickHouseDB(ctx context.Context, cfg config.DataSourceConfig, logger *zap.Logger) (*SQLDB, error) {
	db := clickhouse.OpenDB(&clickhouse.Options{
		Addr: []string{cfg.Address()},
		Auth: clickhouse.Auth{
			Database: cfg.DBName,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout:     5 * time.Second,
		ConnMaxLifetime: time.Hour,
	})
	db.SetMaxOpenConns(cfg.MaxConns)
	db.SetMaxIdleConns(cfg.MinConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping clickhouse %s: %w", cfg.Address(), err)
	}

	logger.Info("Data source connected",
		zap.String("driver", config.DriverClickHouse),
		zap.String("addr", cfg.Address()),
		zap.String("database", cfg.DBName),
	)
	return &SQLDB{DB: db, driver: config.DriverClickHouse, logger: logger}, nil
}

// Close closes the handle.
func (db *SQLDB) Close() error {
	if db.DB == nil {
		return nil
	}
	db.logger.Info("Data source closed", zap.String("driver", db.driver))
	return db.DB.Close()
}

// Stats reports pool usage.
func (db *SQLDB) Stats() PoolStats {
	s := db.DB.Stats()
	return PoolStats{Idle: s.Idle, InUse: s.InUse, Total: s.OpenConnections}
}
