package redis

import (
	"context"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"mvrv/internal/metrics"
	"mvrv/pkg/errors"
)

const priceKeyPrefix = "mvrv:price:"

// PriceCache is a shared exact-instant historical price cache.
// Historical prices never change, so entries are stored without expiry.
type PriceCache struct {
	rdb *goredis.Client
}

// NewPriceCache creates a Redis-backed price cache
func NewPriceCache(rdb *goredis.Client) *PriceCache {
	return &PriceCache{rdb: rdb}
}

func priceKey(at time.Time) string {
	return priceKeyPrefix + strconv.FormatInt(at.Unix(), 10)
}

// Get returns the cached price for an instant
func (c *PriceCache) Get(ctx context.Context, at time.Time) (float64, bool, error) {
	start := time.Now()
	val, err := c.rdb.Get(ctx, priceKey(at)).Float64()
	if err == goredis.Nil {
		metrics.RecordDBQuery("redis", "price_get", time.Since(start), nil)
		return 0, false, nil
	}
	metrics.RecordDBQuery("redis", "price_get", time.Since(start), err)
	if err != nil {
		return 0, false, errors.Wrap(err, "get cached price")
	}
	return val, true, nil
}

// Set stores the price for an instant
func (c *PriceCache) Set(ctx context.Context, at time.Time, price float64) error {
	err := c.rdb.Set(ctx, priceKey(at), strconv.FormatFloat(price, 'f', -1, 64), 0).Err()
	if err != nil {
		return errors.Wrap(err, "set cached price")
	}
	return nil
}
