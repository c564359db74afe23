package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/Loofy147/Lsp/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newMiniRedis(t *testing.T) (*miniredis.Miniredis, *RedisCache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	rc := NewRedisCacheFromClient(client)
	t.Cleanup(func() { rc.Close() })
	return mr, rc
}

func TestLRUCache(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
	cache := NewLRUCache(100).WithClock(clock.now)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), 10*time.Second)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}

		clock.advance(11 * time.Second)

		if val, _ := cache.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("LRUEviction", func(t *testing.T) {
		small := NewLRUCache(3)
		_ = small.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
		_ = small.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
		_ = small.Set(ctx, tenantID, "c", []byte("3"), time.Minute)

		// Touch "a" so "b" is the least recently used.
		_, _ = small.Get(ctx, tenantID, "a")
		_ = small.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

		if val, _ := small.Get(ctx, tenantID, "b"); val != nil {
			t.Error("expected 'b' to be evicted")
		}
		if val, _ := small.Get(ctx, tenantID, "a"); val == nil {
			t.Error("expected 'a' to still exist")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-001", "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-002", "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, "tenant-001", "shared-key")
		val2, _ := cache.Get(ctx, "tenant-002", "shared-key")
		if string(val1) != "tenant1-value" {
			t.Errorf("expected 'tenant1-value', got '%s'", string(val1))
		}
		if string(val2) != "tenant2-value" {
			t.Errorf("expected 'tenant2-value', got '%s'", string(val2))
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
		if _, err := cache.Get(ctx, "", "key"); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
		if _, err := cache.IncrementCounter(ctx, "", "key", time.Minute); !errors.Is(err, ErrTenantRequired) {
			t.Errorf("expected ErrTenantRequired, got %v", err)
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Hour
		key := domain.ActivityCounterKey("user-001")

		for want := int64(1); want <= 2; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, key, window)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		clock.advance(window + time.Second)

		if got, _ := cache.IncrementCounter(ctx, tenantID, key, window); got != 1 {
			t.Errorf("expected count 1 after window reset, got %d", got)
		}
	})

	t.Run("Stats", func(t *testing.T) {
		statsCache := NewLRUCache(50)
		_ = statsCache.Set(ctx, tenantID, "k1", []byte("v1"), time.Minute)
		_ = statsCache.Set(ctx, tenantID, "k2", []byte("v2"), time.Minute)

		size, capacity := statsCache.Stats()
		if size != 2 {
			t.Errorf("expected size 2, got %d", size)
		}
		if capacity != 50 {
			t.Errorf("expected capacity 50, got %d", capacity)
		}
	})

	t.Run("Close", func(t *testing.T) {
		testCache := NewLRUCache(10)
		_ = testCache.Set(ctx, tenantID, "k", []byte("v"), time.Minute)
		if err := testCache.Close(); err != nil {
			t.Errorf("Close failed: %v", err)
		}
		if val, _ := testCache.Get(ctx, tenantID, "k"); val != nil {
			t.Error("expected cache to be cleared after close")
		}
	})
}

func TestRedisCache(t *testing.T) {
	mr, cache := newMiniRedis(t)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
		if !mr.Exists("lsp:tenant-001:key1") {
			t.Error("expected key to be namespaced under lsp:")
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "missing")
		if err != nil || val != nil {
			t.Errorf("expected nil, nil for a miss, got %v, %v", val, err)
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), time.Second)
		mr.FastForward(2 * time.Second)
		if val, _ := cache.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("IncrementCounter", func(t *testing.T) {
		window := time.Minute
		for want := int64(1); want <= 3; want++ {
			got, err := cache.IncrementCounter(ctx, tenantID, "velocity", window)
			if err != nil {
				t.Fatalf("IncrementCounter failed: %v", err)
			}
			if got != want {
				t.Errorf("expected count %d, got %d", want, got)
			}
		}

		mr.FastForward(window + time.Second)

		if got, _ := cache.IncrementCounter(ctx, tenantID, "velocity", window); got != 1 {
			t.Errorf("expected count 1 after window reset, got %d", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestTwoPhaseCache(t *testing.T) {
	mr, remote := newMiniRedis(t)
	cache := newTwoPhase(NewLRUCache(10), remote, time.Minute)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("WriteThrough", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "k", []byte("v"), time.Hour); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		if !mr.Exists("lsp:tenant-001:k") {
			t.Error("expected value in L2")
		}
		if size, _ := cache.Stats(); size != 1 {
			t.Errorf("expected 1 entry in L1, got %d", size)
		}
	})

	t.Run("PromotesL2Hits", func(t *testing.T) {
		if err := mr.Set("lsp:tenant-001:remote-only", "r"); err != nil {
			t.Fatalf("miniredis Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "remote-only")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "r" {
			t.Errorf("expected 'r', got %q", val)
		}

		mr.Del("lsp:tenant-001:remote-only")
		if val, _ := cache.Get(ctx, tenantID, "remote-only"); string(val) != "r" {
			t.Errorf("expected L1 to serve promoted value, got %q", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "gone", []byte("x"), time.Hour)
		if err := cache.Delete(ctx, tenantID, "gone"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "gone"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("CountersAreShared", func(t *testing.T) {
		other := newTwoPhase(NewLRUCache(10), remote, time.Minute)
		_, _ = cache.IncrementCounter(ctx, tenantID, "c", time.Minute)
		got, err := other.IncrementCounter(ctx, tenantID, "c", time.Minute)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != 2 {
			t.Errorf("expected shared count 2, got %d", got)
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := cache.Ping(ctx); err != nil {
			t.Errorf("Ping failed: %v", err)
		}
	})
}

func TestJSONHelpers(t *testing.T) {
	cache := NewLRUCache(10)
	ctx := context.Background()

	in := &domain.WellbeingAssessment{UserID: "u1", OverallScore: 0.75, WindowDays: 7}
	if err := SetJSON(ctx, cache, "t1", domain.WellbeingCacheKey("u1"), in, time.Minute); err != nil {
		t.Fatalf("SetJSON failed: %v", err)
	}

	out, found, err := GetJSON[domain.WellbeingAssessment](ctx, cache, "t1", domain.WellbeingCacheKey("u1"))
	if err != nil || !found {
		t.Fatalf("GetJSON failed: found=%v err=%v", found, err)
	}
	if out.OverallScore != 0.75 || out.UserID != "u1" {
		t.Errorf("unexpected value: %+v", out)
	}

	_, found, err = GetJSON[domain.WellbeingAssessment](ctx, cache, "t1", domain.WellbeingCacheKey("u2"))
	if err != nil || found {
		t.Errorf("expected a clean miss, got found=%v err=%v", found, err)
	}

	_ = cache.Set(ctx, "t1", "broken", []byte("{"), time.Minute)
	if _, _, err := GetJSON[domain.WellbeingAssessment](ctx, cache, "t1", "broken"); err == nil {
		t.Error("expected decode error")
	}
}

func TestNewCache(t *testing.T) {
	t.Run("MemoryType", func(t *testing.T) {
		cache, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 100})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*LRUCache); !ok {
			t.Error("expected LRUCache for memory type")
		}
	})

	t.Run("RedisType", func(t *testing.T) {
		mr := miniredis.RunT(t)
		cache, err := New(domain.CacheConfig{Type: "redis", RedisAddr: mr.Addr(), EnableTwoPhase: true})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer cache.Close()

		if _, ok := cache.(*TwoPhaseCache); !ok {
			t.Error("expected TwoPhaseCache when two-phase is enabled")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}
