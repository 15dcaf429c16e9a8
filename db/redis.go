package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"fairplay/config"
	"fairplay/errs"
	"fairplay/state"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis provides the cross-process activation lock and the current public
// hash cache.
type Redis struct {
	client *redis.Client
}

// releaseLock deletes the lock only if we still own it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// setCurrent replaces the cached view unless the cached one was activated
// later. ARGV: view JSON, activation time in microseconds, TTL in ms.
var setCurrent = redis.NewScript(`
local cached = redis.call("HGET", KEYS[1], "createdAt")
if cached and tonumber(cached) > tonumber(ARGV[2]) then
	return 0
end
redis.call("HSET", KEYS[1], "view", ARGV[1], "createdAt", ARGV[2])
redis.call("PEXPIRE", KEYS[1], ARGV[3])
return 1
`)

// NewRedis connects and pings.
func NewRedis(ctx context.Context, addr, password string, db int) (*Redis, error) {
	log.Println("🔌 Connecting to Redis...")

	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  config.RedisDialTimeout,
		ReadTimeout:  config.RedisReadTimeout,
		WriteTimeout: config.RedisWriteTimeout,
		PoolSize:     config.RedisPoolSize,
		MinIdleConns: config.RedisMinIdleConns,
	})

	ctx, cancel := context.WithTimeout(ctx, config.RedisDialTimeout)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Printf("✅ Redis connected successfully - URL: %s", addr)
	return &Redis{client: client}, nil
}

// Close closes the Redis connection
func (r *Redis) Close() error {
	log.Println("🔌 Closing Redis connection...")
	return r.client.Close()
}

// HealthCheck performs a Redis health check
func (r *Redis) HealthCheck(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

/* =========================
   ACTIVATION LOCK
   Redis Key: fair:lock:{namespace} -> owner token (SET NX PX)
========================= */

// Lock takes the activation lock of namespace. The lock expires after
// ActivationLockTTL even if the holder dies.
func (r *Redis) Lock(ctx context.Context, namespace string) (func(), error) {
	key := fmt.Sprintf(config.RedisActivationLockKey, namespace)
	token := uuid.NewString()

	ok, err := r.client.SetNX(ctx, key, token, config.ActivationLockTTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to take activation lock: %w", err)
	}
	if !ok {
		return nil, errs.New(errs.CodeActivationConflict, "activation of %q held by another process", namespace)
	}

	unlock := func() {
		// The caller's ctx may already be cancelled; release regardless.
		if err := releaseLock.Run(context.Background(), r.client, []string{key}, token).Err(); err != nil {
			log.Printf("⚠️ [%s] Failed to release activation lock: %v", namespace, err)
		}
	}
	return unlock, nil
}

/* =========================
   CURRENT COMMITMENT CACHE
   Redis Key: fair:view:{namespace} -> hash {view: CommitmentView JSON, createdAt: unix micros}
========================= */

// SetCurrent caches the namespace's current commitment view. A view older
// than the cached one is dropped, so a slow reader in another process cannot
// put a retired commitment back.
func (r *Redis) SetCurrent(ctx context.Context, view state.CommitmentView) error {
	key := fmt.Sprintf(config.RedisCurrentHashKey, view.Namespace)

	data, err := json.Marshal(view)
	if err != nil {
		return fmt.Errorf("failed to marshal commitment view: %w", err)
	}

	args := []any{data, view.CreatedAt.UnixMicro(), config.CurrentHashTTL.Milliseconds()}
	if err := setCurrent.Run(ctx, r.client, []string{key}, args...).Err(); err != nil {
		return fmt.Errorf("failed to cache commitment: %w", err)
	}
	return nil
}

// Current returns the cached view, if any.
func (r *Redis) Current(ctx context.Context, namespace string) (state.CommitmentView, bool, error) {
	key := fmt.Sprintf(config.RedisCurrentHashKey, namespace)

	data, err := r.client.HGet(ctx, key, "view").Result()
	if errors.Is(err, redis.Nil) {
		return state.CommitmentView{}, false, nil
	}
	if err != nil {
		return state.CommitmentView{}, false, fmt.Errorf("failed to get cached commitment: %w", err)
	}

	var view state.CommitmentView
	if err := json.Unmarshal([]byte(data), &view); err != nil {
		return state.CommitmentView{}, false, fmt.Errorf("failed to unmarshal cached commitment: %w", err)
	}
	return view, true, nil
}
