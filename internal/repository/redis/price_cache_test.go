package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/internal/testsupport"
)

func TestPriceCache_Integration(t *testing.T) {
	rdb := testsupport.NewRedisClient(t)
	cache := NewPriceCache(rdb)
	ctx := context.Background()

	at := time.Date(2021, 11, 10, 14, 0, 0, 0, time.UTC)

	_, ok, err := cache.Get(ctx, at)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, at, 68789.63))

	price, ok, err := cache.Get(ctx, at)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 68789.63, price)

	ttl, err := rdb.TTL(ctx, priceKey(at)).Result()
	require.NoError(t, err)
	assert.Equal(t, time.Duration(-1), ttl)
}
