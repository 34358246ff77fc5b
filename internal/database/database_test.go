package database

import (
	"context"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/config"
)

func TestNewSQLiteDB_Memory(t *testing.T) {
	db, err := NewSQLiteDB(context.Background(), config.DataSourceConfig{SQLitePath: ":memory:"}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewSQLiteDB() failed: %v", err)
	}
	defer db.Close()

	if _, err := db.Exec(`CREATE TABLE t (a INTEGER)`); err != nil {
		t.Fatalf("create table: %v", err)
	}
	// A single connection keeps the in-memory schema visible to later queries.
	var n int
	if err := db.QueryRow(`SELECT COUNT(*) FROM t`).Scan(&n); err != nil {
		t.Fatalf("query: %v", err)
	}
	if s := db.Stats(); s.Total != 1 || s.Idle+s.InUse != s.Total {
		t.Errorf("Stats() = %+v, want one open connection", s)
	}
}

func TestNewSQLiteDB_MissingDirectory(t *testing.T) {
	cfg := config.DataSourceConfig{SQLitePath: "/nonexistent/dir/insights.db"}
	if _, err := NewSQLiteDB(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Error("NewSQLiteDB() with missing directory should fail")
	}
}

func TestNewRedisDB_Unreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if _, err := NewRedisDB(ctx, config.RedisConfig{Addr: "127.0.0.1:1"}, zap.NewNop()); err == nil {
		t.Error("NewRedisDB() against a closed port should fail")
	}
}
