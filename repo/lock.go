package repo

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"

	"outreach/pkg/errutil"
)

var (
	ErrLockHeld = errutil.ConflictError(errors.New("operation already in progress, please retry later"))
)

var releaseScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// LockRepo hands out short-lived mutual exclusion on a key.
// Acquire returns ErrLockHeld when another holder owns the key; the returned
// release func is safe to call more than once.
type LockRepo interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (release func(), err error)
	Close(ctx context.Context) error
}

type redisLockRepo struct {
	client *redis.Client
}

func NewRedisLockRepo(_ context.Context, client *redis.Client) LockRepo {
	return &redisLockRepo{client: client}
}

func (r *redisLockRepo) Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error) {
	var (
		lockKey = fmt.Sprintf("lock:%s", key)
		owner   = uuid.NewString()
	)

	ok, err := r.client.SetNX(ctx, lockKey, owner, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", lockKey, err)
	}
	if !ok {
		return nil, ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// release must not depend on the caller's context still being alive
			_ = releaseScript.Run(context.WithoutCancel(ctx), r.client, []string{lockKey}, owner).Err()
		})
	}, nil
}

func (r *redisLockRepo) Close(_ context.Context) error {
	return r.client.Close()
}

type memLockRepo struct {
	cache *cache.Cache
}

func NewMemLockRepo(_ context.Context) LockRepo {
	return &memLockRepo{
		cache: cache.New(cache.NoExpiration, time.Minute),
	}
}

func (r *memLockRepo) Acquire(_ context.Context, key string, ttl time.Duration) (func(), error) {
	var (
		lockKey = fmt.Sprintf("lock:%s", key)
		owner   = uuid.NewString()
	)

	// Add fails if the key exists and has not expired
	if err := r.cache.Add(lockKey, owner, ttl); err != nil {
		return nil, ErrLockHeld
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if v, ok := r.cache.Get(lockKey); ok && v.(string) == owner {
				r.cache.Delete(lockKey)
			}
		})
	}, nil
}

func (r *memLockRepo) Close(_ context.Context) error {
	r.cache.Flush()
	return nil
}
