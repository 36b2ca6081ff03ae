package middleware

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/rueidis"

	"task-api.com/task-api/internal/exceptions"
)

// CounterStore counts hits per key inside fixed windows.
type CounterStore interface {
	Hit(ctx context.Context, key string, window time.Duration) (int64, error)
}

// RateLimiter allows limit requests per client IP per window. A limit of
// zero or less disables it. Store failures let the request through.
func RateLimiter(store CounterStore, limit int, window time.Duration) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		if limit <= 0 {
			return next
		}

		return func(c echo.Context) error {
			count, err := store.Hit(c.Request().Context(), c.RealIP(), window)
			if err != nil {
				slog.Warn("rate limiter unavailable", "error", err)
				return next(c)
			}

			if count > int64(limit) {
				c.Response().Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				return exceptions.ErrRateLimited
			}

			return next(c)
		}
	}
}

type MemoryStore struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	count int64
	start time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		buckets: make(map[string]*bucket),
		now:     time.Now,
	}
}

func (m *MemoryStore) Hit(_ context.Context, key string, window time.Duration) (int64, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[key]
	if !ok || now.Sub(b.start) > window {
		b = &bucket{start: now}
		m.buckets[key] = b
		m.evictExpired(now, window)
	}

	b.count++
	return b.count, nil
}

// evictExpired keeps the map from growing with every client ever seen.
func (m *MemoryStore) evictExpired(now time.Time, window time.Duration) {
	for key, b := range m.buckets {
		if now.Sub(b.start) > window {
			delete(m.buckets, key)
		}
	}
}

// RedisStore shares counters between instances.
type RedisStore struct {
	client rueidis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client rueidis.Client, keyPrefix string) *RedisStore {
	return &RedisStore{
		client: client,
		prefix: keyPrefix,
		now:    time.Now,
	}
}

func (r *RedisStore) key(client string, window time.Duration) string {
	slot := r.now().UnixMilli() / window.Milliseconds()
	return r.prefix + ":ratelimit:" + client + ":" + strconv.FormatInt(slot, 10)
}

func (r *RedisStore) Hit(ctx context.Context, client string, window time.Duration) (int64, error) {
	key := r.key(client, window)

	count, err := r.client.Do(ctx, r.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, err
	}

	if count == 1 {
		expire := r.client.B().Pexpire().Key(key).Milliseconds(window.Milliseconds()).Build()
		if err := r.client.Do(ctx, expire).Error(); err != nil {
			return count, err
		}
	}

	return count, nil
}
