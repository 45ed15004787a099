package cache

import (
	"bytes"
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Requires a running Redis: INTEGRATION_TESTS=1 REDIS_ADDRESS=localhost:6379
func newTestRedis(t *testing.T) *Redis {
	t.Helper()
	if os.Getenv("INTEGRATION_TESTS") == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run redis tests")
	}
	addr := os.Getenv("REDIS_ADDRESS")
	if addr == "" {
		t.Skip("REDIS_ADDRESS not set")
	}
	log := logger.NewWithWriter("test", logrus.ErrorLevel, &bytes.Buffer{})
	r, err := NewRedis(context.Background(), config.RedisConfig{Address: addr}, log)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(r.Close)
	return r
}

func TestJSONRoundTripAndDelete(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	key := "roadside:test:" + uuid.NewString()

	if err := r.SetJSON(ctx, key, map[string]int{"n": 7}, time.Minute); err != nil {
		t.Fatal(err)
	}
	var got map[string]int
	found, err := r.GetJSON(ctx, key, &got)
	if err != nil || !found || got["n"] != 7 {
		t.Fatalf("found=%v got=%v err=%v", found, got, err)
	}

	if err := r.Del(ctx, key); err != nil {
		t.Fatal(err)
	}
	found, err = r.GetJSON(ctx, key, &got)
	if err != nil || found {
		t.Fatalf("after delete found=%v err=%v", found, err)
	}
}

func TestTryLockIsExclusive(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	key := "roadside:test:lock:" + uuid.NewString()

	lock, err := r.TryLock(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := r.TryLock(ctx, key, 5*time.Second); !errors.Is(err, ErrLockNotObtained) {
		t.Fatalf("second lock err = %v", err)
	}
	if err := lock.Release(ctx); err != nil {
		t.Fatal(err)
	}
	again, err := r.TryLock(ctx, key, 5*time.Second)
	if err != nil {
		t.Fatalf("relock: %v", err)
	}
	_ = again.Release(ctx)
}

func TestCounterStartsAtZero(t *testing.T) {
	r := newTestRedis(t)
	ctx := context.Background()
	key := "roadside:test:gen:" + uuid.NewString()
	t.Cleanup(func() { _ = r.Del(ctx, key) })

	if n, err := r.GetInt(ctx, key); err != nil || n != 0 {
		t.Fatalf("missing counter = %d, %v", n, err)
	}
	if n, err := r.Incr(ctx, key); err != nil || n != 1 {
		t.Fatalf("incr = %d, %v", n, err)
	}
	if n, err := r.GetInt(ctx, key); err != nil || n != 1 {
		t.Fatalf("counter = %d, %v", n, err)
	}
}
