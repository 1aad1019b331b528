package redis

import (
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"mvrv/pkg/logger"
)

func TestCycleLocker_ReleaseFailureIsLogged(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer rdb.Close()

	core, logs := observer.New(zapcore.WarnLevel)
	locker := NewCycleLocker(NewClientFromRDB(rdb), time.Minute)
	locker.log = logger.FromZap(zap.New(core))

	locker.releaser("hourly_estimation", &Lock{key: "mvrv:cycle:hourly_estimation", token: "t"})()

	entries := logs.FilterMessage("Cycle lock release failed, held until ttl expires").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "hourly_estimation", fields["cycle"])
	assert.Equal(t, "mvrv:cycle:hourly_estimation", fields["key"])
	assert.NotEmpty(t, fields["error"])
}
