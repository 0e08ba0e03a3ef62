package redisad

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"reviewdesk/internal/adapters/observability"
)

// Cache stores JSON values in redis. Callers treat every error as a miss.
type Cache struct{ c *redis.Client }

func New(addr, pass string, db int) *Cache {
	return NewFromClient(redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db}))
}

func NewFromClient(c *redis.Client) *Cache { return &Cache{c: c} }

func (r *Cache) Ping(ctx context.Context) error { return r.c.Ping(ctx).Err() }

// family drops the trailing id segment: "yelp:stats:b1" -> "yelp:stats".
func family(key string) string {
	if i := strings.LastIndexByte(key, ':'); i > 0 {
		return key[:i]
	}
	return key
}

func (r *Cache) Get(ctx context.Context, key string, dst any) (bool, error) {
	v, err := r.c.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		observability.ObserveCache(family(key), "miss")
		return false, nil
	}
	if err != nil {
		observability.ObserveCache(family(key), "error")
		log.Debug().Err(err).Str("key", key).Msg("cache get failed")
		return false, err
	}
	if err := json.Unmarshal(v, dst); err != nil {
		observability.ObserveCache(family(key), "error")
		return false, err
	}
	observability.ObserveCache(family(key), "hit")
	return true, nil
}

func (r *Cache) Set(ctx context.Context, key string, v any, ttlSec int) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if err := r.c.Set(ctx, key, b, time.Duration(ttlSec)*time.Second).Err(); err != nil {
		observability.ObserveCache(family(key), "error")
		return err
	}
	observability.ObserveCache(family(key), "set")
	return nil
}

func (r *Cache) Del(ctx context.Context, key string) error {
	observability.ObserveCache(family(key), "del")
	return r.c.Del(ctx, key).Err()
}
