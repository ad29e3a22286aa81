package middleware

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"quickedit/internal/models"
)

// IdempotencyHeader carries a client-chosen key identifying a request.
const IdempotencyHeader = "Idempotency-Key"

// RequestDeduper tracks idempotency keys already accepted.
type RequestDeduper interface {
	// Seen claims key and reports whether it was already claimed.
	Seen(ctx context.Context, key string) (bool, error)
	// Release frees key so the request can be retried.
	Release(ctx context.Context, key string) error
}

type redisRequestDeduper struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func (d *redisRequestDeduper) Seen(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+":"+key, "1", d.ttl).Result()
	if err != nil {
		return false, err
	}
	// false => already exists => duplicate
	return !ok, nil
}

func (d *redisRequestDeduper) Release(ctx context.Context, key string) error {
	return d.client.Del(ctx, d.prefix+":"+key).Err()
}

type memoryRequestDeduper struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	ttl    time.Duration
	nextGC time.Time
	now    func() time.Time
}

func newMemoryRequestDeduper(ttl time.Duration) *memoryRequestDeduper {
	now := time.Now()
	return &memoryRequestDeduper{
		seen:   make(map[string]time.Time),
		ttl:    ttl,
		nextGC: now.Add(ttl),
		now:    time.Now,
	}
}

func (d *memoryRequestDeduper) Seen(_ context.Context, key string) (bool, error) {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	if exp, ok := d.seen[key]; ok && exp.After(now) {
		return true, nil
	}

	d.seen[key] = now.Add(d.ttl)
	if now.After(d.nextGC) {
		for k, exp := range d.seen {
			if exp.Before(now) {
				delete(d.seen, k)
			}
		}
		d.nextGC = now.Add(d.ttl)
	}

	return false, nil
}

func (d *memoryRequestDeduper) Release(_ context.Context, key string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.seen, key)
	return nil
}

// NewRequestDeduper builds a Redis deduper and falls back to in-memory on failure.
func NewRequestDeduper(addr, pass string, db int, ttl time.Duration) (RequestDeduper, error) {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	if addr == "" {
		return newMemoryRequestDeduper(ttl), nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: pass,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return newMemoryRequestDeduper(ttl), err
	}

	return &redisRequestDeduper{
		client: client,
		prefix: "quickedit:idempotency",
		ttl:    ttl,
	}, nil
}

// Idempotency rejects a repeated request carrying an Idempotency-Key already
// seen, so a double-submitted run or schedule is executed once.
// Requests without the header pass through. A request that fails with an
// error or a 4xx/5xx status releases its key.
func Idempotency(deduper RequestDeduper) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if deduper == nil {
				return next(c)
			}
			key := c.Request().Header.Get(IdempotencyHeader)
			if key == "" {
				return next(c)
			}
			key = c.Path() + ":" + key

			isDuplicate, err := deduper.Seen(c.Request().Context(), key)
			if err != nil {
				return next(c)
			}
			if isDuplicate {
				return c.JSON(http.StatusConflict, models.SyncResponse{
					Success: false,
					Error:   "duplicate request",
				})
			}

			err = next(c)
			if err != nil || c.Response().Status >= http.StatusBadRequest {
				_ = deduper.Release(context.WithoutCancel(c.Request().Context()), key)
			}
			return err
		}
	}
}
