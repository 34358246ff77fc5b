package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-insights/internal/metrics"
)

type mapStore struct {
	mu   sync.Mutex
	data map[string][]byte
	ttls map[string]time.Duration
	err  error
}

func newMapStore() *mapStore {
	return &mapStore{data: make(map[string][]byte), ttls: make(map[string]time.Duration)}
}

func (s *mapStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, false, s.err
	}
	v, ok := s.data[key]
	return v, ok, nil
}

func (s *mapStore) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.data[key] = value
	s.ttls[key] = ttl
	return nil
}

type payload struct {
	Labels []string  `json:"labels"`
	Values []float64 `json:"values"`
}

func TestPayloadCache_RoundTrip(t *testing.T) {
	store := newMapStore()
	m := metrics.NewMetrics("test")
	c := New(store, 30*time.Second, zap.NewNop(), m)
	ctx := context.Background()

	var got payload
	if c.Get(ctx, "overview", "k", &got) {
		t.Fatal("Get() on empty cache reported a hit")
	}

	c.Set(ctx, "k", payload{Labels: []string{"A"}, Values: []float64{1.5}})
	if store.ttls["k"] != 30*time.Second {
		t.Errorf("ttl = %v, want 30s", store.ttls["k"])
	}
	if !c.Get(ctx, "overview", "k", &got) {
		t.Fatal("Get() after Set() missed")
	}
	if len(got.Labels) != 1 || got.Values[0] != 1.5 {
		t.Errorf("Get() = %+v", got)
	}

	if n := testutil.ToFloat64(m.CacheLookups.WithLabelValues("overview", "hit")); n != 1 {
		t.Errorf("hits = %v, want 1", n)
	}
	if n := testutil.ToFloat64(m.CacheLookups.WithLabelValues("overview", "miss")); n != 1 {
		t.Errorf("misses = %v, want 1", n)
	}
}

func TestPayloadCache_StoreErrorsAreMisses(t *testing.T) {
	store := newMapStore()
	store.err = errors.New("connection reset")
	c := New(store, 0, nil, nil)
	ctx := context.Background()

	c.Set(ctx, "k", payload{})
	var got payload
	if c.Get(ctx, "dashboard", "k", &got) {
		t.Error("Get() with failing store reported a hit")
	}
}

func TestPayloadCache_CorruptEntry(t *testing.T) {
	store := newMapStore()
	store.data["k"] = []byte("{not json")
	c := New(store, time.Minute, nil, nil)

	var got payload
	if c.Get(context.Background(), "overview", "k", &got) {
		t.Error("Get() decoded a corrupt entry")
	}
}

func TestPayloadCache_NilIsDisabled(t *testing.T) {
	var c *PayloadCache
	c.Set(context.Background(), "k", payload{})
	var got payload
	if c.Get(context.Background(), "overview", "k", &got) {
		t.Error("nil cache reported a hit")
	}
}

func TestRedisStore_Unreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer client.Close()
	s := NewRedisStore(client)

	if _, _, err := s.Get(context.Background(), "k"); err == nil {
		t.Error("Get() against unreachable Redis should fail")
	}
	if err := s.Set(context.Background(), "k", []byte("v"), time.Second); err == nil {
		t.Error("Set() against unreachable Redis should fail")
	}
}
