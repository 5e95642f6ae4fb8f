package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// releaseScript deletes the key only if it still holds our token, so an
// expired holder cannot release a lock someone else has since taken.
const releaseScript = `if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`

type redisLocker struct {
	rdb        redis.Cmdable
	ttl        time.Duration
	retryEvery time.Duration
	logger     *zap.Logger
}

// NewRedis returns a Locker backed by SET NX PX. ttl bounds how long a crashed
// holder can block others.
func NewRedis(rdb redis.Cmdable, ttl time.Duration, logger ...*zap.Logger) Locker {
	l := zap.L().Named("lock.redis")
	if len(logger) > 0 && logger[0] != nil {
		l = logger[0].Named("lock.redis")
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &redisLocker{rdb: rdb, ttl: ttl, retryEvery: 50 * time.Millisecond, logger: l}
}

func (r *redisLocker) Lock(ctx context.Context, key string) (func(), error) {
	token := uuid.NewString()

	for {
		ok, err := r.rdb.SetNX(ctx, key, token, r.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, errors.Join(ErrLockTimeout, ctx.Err())
			}
			return nil, err
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrLockTimeout, ctx.Err())
		case <-time.After(r.retryEvery):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release on a fresh context: the caller's may already be done.
			rctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			if err := r.rdb.Eval(rctx, releaseScript, []string{key}, token).Err(); err != nil {
				r.logger.Warn("release lock failed", zap.String("key", key), zap.Error(err))
			}
		})
	}, nil
}
