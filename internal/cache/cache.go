// Package cache serves order listings from Redis, falling back to the
// store on a miss or when Redis misbehaves.
//
// Every listing key has a generation counter that Forget bumps. A loaded
// listing is written back only if its generation is unchanged since the
// load started, so a read racing a write cannot cache the older result.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/config"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/logging"
	"github.com/Shivanand-hulikatti/fixture-ticketing/internal/model"
)

const (
	defaultTTL = 30 * time.Second
	// generationTTL outlives any load; an expired counter only costs a
	// skipped write-back.
	generationTTL = 24 * time.Hour
)

// Lister is the source of truth the cache reads through to.
type Lister interface {
	ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error)
}

// OrderCache is a cache-aside layer over a Lister.
type OrderCache struct {
	rdb    redis.UniversalClient
	next   Lister
	ttl    time.Duration
	prefix string
	log    *zap.Logger
}

// NewClient connects to Redis and pings it.
func NewClient(ctx context.Context, cfg config.Redis) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return rdb, nil
}

// New wraps next with a Redis cache.
func New(rdb redis.UniversalClient, next Lister, cfg config.Redis, log *zap.Logger) *OrderCache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "orders"
	}
	return &OrderCache{rdb: rdb, next: next, ttl: ttl, prefix: prefix, log: logging.OrDiscard(log)}
}

// Key returns the cache key for a listing.
func (c *OrderCache) Key(filter model.OrderFilter) string {
	if filter.AudienceID == "" {
		return c.prefix + ":all"
	}
	return c.prefix + ":audience:" + filter.AudienceID
}

// ListOrders returns the cached listing or loads and caches it.
func (c *OrderCache) ListOrders(ctx context.Context, filter model.OrderFilter) ([]model.Order, error) {
	key := c.Key(filter)

	body, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var orders []model.Order
		if err := json.Unmarshal(body, &orders); err == nil {
			return orders, nil
		}
		c.log.Warn("discarding undecodable cache entry", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		c.log.Warn("order cache read failed", zap.String("key", key), zap.Error(err))
	}

	gen, err := c.rdb.Get(ctx, generationKey(key)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		c.log.Warn("order cache read failed", zap.String("key", key), zap.Error(err))
	}

	orders, err := c.next.ListOrders(ctx, filter)
	if err != nil {
		return nil, err
	}

	if body, err := json.Marshal(orders); err != nil {
		c.log.Warn("encode order listing", zap.Error(err))
	} else if err := c.store(ctx, key, gen, body); err != nil {
		c.log.Debug("order listing not cached", zap.String("key", key), zap.Error(err))
	}
	return orders, nil
}

var errStale = errors.New("listing changed while loading")

// store writes body under key unless Forget ran since gen was read.
func (c *OrderCache) store(ctx context.Context, key, gen string, body []byte) error {
	genKey := generationKey(key)
	err := c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return errStale
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, body, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if errors.Is(err, redis.TxFailedErr) {
		return errStale
	}
	return err
}

func generationKey(key string) string {
	return key + ":gen"
}

// Forget drops the audience's listing and the full listing and bumps
// their generations.
func (c *OrderCache) Forget(ctx context.Context, audienceID string) error {
	keys := []string{c.Key(model.OrderFilter{})}
	if audienceID != "" {
		keys = append(keys, c.Key(model.OrderFilter{AudienceID: audienceID}))
	}
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, keys...)
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), generationTTL)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("delete cached listings: %w", err)
	}
	return nil
}
