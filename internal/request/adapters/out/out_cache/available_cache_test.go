package out_cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"roadside/internal/request/adapters/out/memory"
	"roadside/internal/request/domain"
	"roadside/internal/shared/cache"
	"roadside/internal/shared/logger"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type noopUnlock struct{ kv *fakeKV }

func (u noopUnlock) Release(context.Context) error {
	u.kv.mu.Lock()
	u.kv.locked = false
	u.kv.mu.Unlock()
	return nil
}

type fakeKV struct {
	mu       sync.Mutex
	data     map[string][]byte
	counters map[string]int64
	locked   bool
	getErr   error
	lockErr  error
	sets     int
}

func newFakeKV() *fakeKV {
	return &fakeKV{data: map[string][]byte{}, counters: map[string]int64{}}
}

func (f *fakeKV) Incr(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counters[key]++
	return f.counters[key], nil
}

func (f *fakeKV) GetInt(_ context.Context, key string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return 0, f.getErr
	}
	return f.counters[key], nil
}

func (f *fakeKV) GetJSON(_ context.Context, key string, dest any) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return false, f.getErr
	}
	b, ok := f.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(b, dest)
}

func (f *fakeKV) SetJSON(_ context.Context, key string, v any, _ time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f.mu.Lock()
	f.data[key] = b
	f.sets++
	f.mu.Unlock()
	return nil
}

func (f *fakeKV) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	for _, k := range keys {
		delete(f.data, k)
	}
	f.mu.Unlock()
	return nil
}

func (f *fakeKV) TryLock(context.Context, string, time.Duration) (cache.Unlocker, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lockErr != nil {
		return nil, f.lockErr
	}
	if f.locked {
		return nil, cache.ErrLockNotObtained
	}
	f.locked = true
	return noopUnlock{kv: f}, nil
}

func quietLogger() *logger.Logger {
	return logger.NewWithWriter("test", logrus.ErrorLevel, &bytes.Buffer{})
}

func countingLoader(calls *int) func(context.Context) ([]*domain.ServiceRequest, error) {
	price := decimal.RequireFromString("45.50")
	return func(context.Context) ([]*domain.ServiceRequest, error) {
		*calls++
		return []*domain.ServiceRequest{{
			ID:          "r-1",
			RequesterID: "u-1",
			ServiceType: domain.ServiceTowing,
			Status:      domain.StatusPending,
			Location:    domain.Location{Address: "1 Main St"},
			Price:       &price,
			CreatedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
		}}, nil
	}
}

func TestSecondReadIsServedFromCache(t *testing.T) {
	kv := newFakeKV()
	c := NewAvailableRedisCache(kv, time.Minute, quietLogger())
	calls := 0
	load := countingLoader(&calls)

	first, err := c.GetAvailable(context.Background(), load)
	if err != nil {
		t.Fatal(err)
	}
	second, err := c.GetAvailable(context.Background(), load)
	if err != nil {
		t.Fatal(err)
	}
	if calls != 1 {
		t.Fatalf("loader called %d times, want 1", calls)
	}
	if len(second) != 1 || second[0].ID != first[0].ID || !second[0].Price.Equal(*first[0].Price) {
		t.Fatalf("cached = %+v", second)
	}
}

func TestInvalidateForcesReload(t *testing.T) {
	kv := newFakeKV()
	c := NewAvailableRedisCache(kv, time.Minute, quietLogger())
	calls := 0
	load := countingLoader(&calls)

	_, _ = c.GetAvailable(context.Background(), load)
	if err := c.Invalidate(context.Background()); err != nil {
		t.Fatal(err)
	}
	_, _ = c.GetAvailable(context.Background(), load)
	if calls != 2 {
		t.Fatalf("loader called %d times, want 2", calls)
	}
}

func TestLockHeldElsewhereReadsStoreWithoutFilling(t *testing.T) {
	kv := newFakeKV()
	kv.locked = true
	c := NewAvailableRedisCache(kv, time.Minute, quietLogger())
	calls := 0

	list, err := c.GetAvailable(context.Background(), countingLoader(&calls))
	if err != nil || len(list) != 1 {
		t.Fatalf("list=%v err=%v", list, err)
	}
	if kv.sets != 0 {
		t.Fatal("cache filled without holding the lock")
	}
}

func TestRedisFailureDegradesToStore(t *testing.T) {
	kv := newFakeKV()
	kv.getErr = errors.New("connection refused")
	kv.lockErr = errors.New("connection refused")
	c := NewAvailableRedisCache(kv, time.Minute, quietLogger())
	calls := 0

	list, err := c.GetAvailable(context.Background(), countingLoader(&calls))
	if err != nil || len(list) != 1 || calls != 1 {
		t.Fatalf("list=%v err=%v calls=%d", list, err, calls)
	}
}

func TestLoaderErrorIsReturned(t *testing.T) {
	c := NewAvailableRedisCache(newFakeKV(), time.Minute, quietLogger())
	boom := &domain.TransportError{Op: "list_available", Err: errors.New("down")}

	_, err := c.GetAvailable(context.Background(), func(context.Context) ([]*domain.ServiceRequest, error) {
		return nil, boom
	})
	if !errors.Is(err, domain.ErrTransport) {
		t.Fatalf("err = %v", err)
	}
}

func TestPassthroughAlwaysLoads(t *testing.T) {
	calls := 0
	load := countingLoader(&calls)
	var p Passthrough
	_, _ = p.GetAvailable(context.Background(), load)
	_, _ = p.GetAvailable(context.Background(), load)
	if calls != 2 {
		t.Fatalf("calls = %d", calls)
	}
}

func TestInvalidateDuringRefillIsNotLost(t *testing.T) {
	kv := newFakeKV()
	c := NewAvailableRedisCache(kv, time.Minute, quietLogger())
	ctx := context.Background()

	repo := memory.NewRequestRepository()
	now := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	req := &domain.ServiceRequest{
		ID:          "r-1",
		RequesterID: "u-1",
		ServiceType: domain.ServiceTowing,
		Status:      domain.StatusPending,
		Location:    domain.Location{Address: "1 Main St"},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := repo.Create(ctx, req); err != nil {
		t.Fatal(err)
	}

	fromStore := func(ctx context.Context) ([]*domain.ServiceRequest, error) {
		return repo.ListAvailable(ctx, 100)
	}
	// accept коммитится и инвалидирует кеш, пока заполнение читает store
	racing := func(ctx context.Context) ([]*domain.ServiceRequest, error) {
		list, err := fromStore(ctx)
		if err != nil {
			return nil, err
		}
		if _, err := repo.Accept(ctx, "r-1", "w-1", now.Add(time.Second)); err != nil {
			t.Fatalf("accept: %v", err)
		}
		if err := c.Invalidate(ctx); err != nil {
			t.Fatalf("invalidate: %v", err)
		}
		return list, nil
	}

	if _, err := c.GetAvailable(ctx, racing); err != nil {
		t.Fatal(err)
	}
	got, err := c.GetAvailable(ctx, fromStore)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("stale snapshot survived invalidation: %d available", len(got))
	}
}
