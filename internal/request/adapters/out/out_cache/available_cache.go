package out_cache

import (
	"context"
	"errors"
	"time"

	"roadside/internal/request/application/ports/out"
	"roadside/internal/request/domain"
	"roadside/internal/shared/cache"
	"roadside/internal/shared/logger"
)

const (
	AvailableKey     = "roadside:available"
	availableGenKey  = "roadside:available:gen"
	availableLockKey = "roadside:available:refill"
	lockTTL          = 5 * time.Second
)

// KV — часть shared/cache.Redis, нужная адаптеру
type KV interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	Incr(ctx context.Context, key string) (int64, error)
	GetInt(ctx context.Context, key string) (int64, error)
	TryLock(ctx context.Context, key string, ttl time.Duration) (cache.Unlocker, error)
}

// AvailableRedisCache хранит снимок pending заявок в Redis.
// Заполнение под локом: кто не получил лок, читает store сам.
// Invalidate увеличивает поколение; заполнение, во время которого поколение
// сменилось, удаляет свой снимок.
type AvailableRedisCache struct {
	kv  KV
	ttl time.Duration
	log *logger.Logger
}

func NewAvailableRedisCache(kv KV, ttl time.Duration, log *logger.Logger) *AvailableRedisCache {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &AvailableRedisCache{kv: kv, ttl: ttl, log: log}
}

func (c *AvailableRedisCache) GetAvailable(ctx context.Context, load out.AvailableLoader) ([]*domain.ServiceRequest, error) {
	if list, ok := c.get(ctx); ok {
		return list, nil
	}

	lock, err := c.kv.TryLock(ctx, availableLockKey, lockTTL)
	if err != nil {
		if !errors.Is(err, cache.ErrLockNotObtained) {
			c.warn("available_cache_lock_failed", err)
		}
		return load(ctx)
	}
	defer func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			c.log.Debug(logger.Entry{Action: "available_cache_unlock_failed", Message: err.Error()})
		}
	}()

	// пока ждали лок, другой процесс мог уже заполнить кеш
	if list, ok := c.get(ctx); ok {
		return list, nil
	}

	gen, err := c.kv.GetInt(ctx, availableGenKey)
	if err != nil {
		c.warn("available_cache_gen_failed", err)
		return load(ctx)
	}

	list, err := load(ctx)
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*domain.ServiceRequest{}
	}
	if err := c.kv.SetJSON(ctx, AvailableKey, list, c.ttl); err != nil {
		c.warn("available_cache_set_failed", err)
		return list, nil
	}

	// Invalidate прошел между чтением поколения и SetJSON: снимок уже устарел
	after, err := c.kv.GetInt(ctx, availableGenKey)
	if err != nil || after != gen {
		if err := c.kv.Del(ctx, AvailableKey); err != nil {
			c.warn("available_cache_stale_drop_failed", err)
		}
		c.log.Debug(logger.Entry{
			Action:     "available_cache_refill_discarded",
			Message:    "invalidated during refill",
			Additional: map[string]any{"generation_before": gen, "generation_after": after},
		})
	}
	return list, nil
}

func (c *AvailableRedisCache) get(ctx context.Context) ([]*domain.ServiceRequest, bool) {
	var list []*domain.ServiceRequest
	found, err := c.kv.GetJSON(ctx, AvailableKey, &list)
	if err != nil {
		c.warn("available_cache_get_failed", err)
		return nil, false
	}
	if !found || list == nil {
		return nil, false
	}
	return list, true
}

// Invalidate bumps the generation and drops the snapshot so the next read goes
// to the store. The bump comes first: a refill that read the old generation
// either sees the new one or has its SetJSON removed by the Del below.
func (c *AvailableRedisCache) Invalidate(ctx context.Context) error {
	_, incrErr := c.kv.Incr(ctx, availableGenKey)
	if err := c.kv.Del(ctx, AvailableKey); err != nil {
		return err
	}
	return incrErr
}

func (c *AvailableRedisCache) warn(action string, err error) {
	c.log.Warn(logger.Entry{
		Action:  action,
		Message: err.Error(),
		Error:   &logger.ErrObj{Msg: err.Error()},
	})
}

// Passthrough — кеш без хранения, когда Redis выключен
type Passthrough struct{}

func (Passthrough) GetAvailable(ctx context.Context, load out.AvailableLoader) ([]*domain.ServiceRequest, error) {
	return load(ctx)
}

func (Passthrough) Invalidate(context.Context) error { return nil }
