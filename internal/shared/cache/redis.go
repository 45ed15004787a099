package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"roadside/internal/shared/config"
	"roadside/internal/shared/logger"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotObtained — лок держит другой процесс
var ErrLockNotObtained = errors.New("cache lock not obtained")

// Unlocker releases a lock obtained with TryLock.
type Unlocker interface {
	Release(ctx context.Context) error
}

// Redis — клиент кеша и распределенных локов
type Redis struct {
	rdb    *redis.Client
	locker *redislock.Client
	log    *logger.Logger
}

// NewRedis подключается к Redis с коротким retry; вызывающий решает, фатальна ли ошибка
func NewRedis(ctx context.Context, cfg config.RedisConfig, log *logger.Logger) (*Redis, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: 50,
	})

	var err error
	for attempt := 1; attempt <= 5; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err = rdb.Ping(pingCtx).Err()
		cancel()
		if err == nil {
			log.Info(logger.Entry{
				Action:     "redis_connected",
				Message:    "connected to " + cfg.Address,
				Additional: map[string]any{"attempt": attempt},
			})
			return &Redis{rdb: rdb, locker: redislock.New(rdb), log: log}, nil
		}

		sleep := time.Duration(1<<attempt) * 100 * time.Millisecond
		log.Warn(logger.Entry{
			Action:  "redis_connection_attempt_failed",
			Message: err.Error(),
			Additional: map[string]any{
				"attempt":  attempt,
				"retry_in": sleep.String(),
			},
		})
		select {
		case <-ctx.Done():
			_ = rdb.Close()
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
	_ = rdb.Close()
	return nil, fmt.Errorf("connect redis %s: %w", cfg.Address, err)
}

// GetJSON reads key into dest. found=false on a miss.
func (r *Redis) GetJSON(ctx context.Context, key string, dest any) (bool, error) {
	val, err := r.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(val, dest); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// SetJSON stores v under key with ttl.
func (r *Redis) SetJSON(ctx context.Context, key string, v any, ttl time.Duration) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := r.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Del removes keys; missing keys are not an error.
func (r *Redis) Del(ctx context.Context, keys ...string) error {
	if err := r.rdb.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Incr atomically increments an integer counter and returns the new value.
func (r *Redis) Incr(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis incr %s: %w", key, err)
	}
	return n, nil
}

// GetInt reads an integer counter; a missing key reads as 0.
func (r *Redis) GetInt(ctx context.Context, key string) (int64, error) {
	n, err := r.rdb.Get(ctx, key).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get %s: %w", key, err)
	}
	return n, nil
}

// TryLock obtains a lock without waiting. ErrLockNotObtained when held elsewhere.
func (r *Redis) TryLock(ctx context.Context, key string, ttl time.Duration) (Unlocker, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrLockNotObtained
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lock %s: %w", key, err)
	}
	return lock, nil
}

// Close закрывает клиент
func (r *Redis) Close() {
	if r == nil {
		return
	}
	_ = r.rdb.Close()
	r.log.Info(logger.Entry{Action: "redis_closed", Message: "redis client closed"})
}
