package locks

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/rueidis"
)

// releaseScript deletes the key only if this holder still owns it.
var releaseScript = rueidis.NewLuaScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisLocker struct {
	client    rueidis.Client
	keyPrefix string
	ttl       time.Duration
	retry     time.Duration
}

func NewRedisLocker(client rueidis.Client, keyPrefix string, ttl time.Duration) *RedisLocker {
	return &RedisLocker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       ttl,
		retry:     100 * time.Millisecond,
	}
}

func (r *RedisLocker) key(name string) string {
	return r.keyPrefix + ":lock:" + name
}

func (r *RedisLocker) Acquire(ctx context.Context, name string) (func(context.Context) error, error) {
	key := r.key(name)
	token := uuid.NewString()

	for {
		cmd := r.client.B().Set().Key(key).Value(token).Nx().PxMilliseconds(r.ttl.Milliseconds()).Build()
		err := r.client.Do(ctx, cmd).Error()
		if err == nil {
			return func(ctx context.Context) error {
				return releaseScript.Exec(ctx, r.client, []string{key}, []string{token}).Error()
			}, nil
		}
		if !rueidis.IsRedisNil(err) {
			return nil, err
		}

		select {
		case <-time.After(r.retry):
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, ErrLockTimeout
			}
			return nil, ctx.Err()
		}
	}
}
