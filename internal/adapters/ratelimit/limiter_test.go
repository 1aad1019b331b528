package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPause_SpacesCalls(t *testing.T) {
	l := NewPause("test", 40*time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx))
	}

	// first call passes immediately, the next two wait one pause each
	assert.GreaterOrEqual(t, time.Since(start), 70*time.Millisecond)
}

func TestPause_ZeroDisablesPacing(t *testing.T) {
	l := NewPause("test", 0)
	for i := 0; i < 100; i++ {
		assert.True(t, l.Allow())
	}
}

func TestWait_ContextCancelled(t *testing.T) {
	l := NewPause("test", time.Hour)
	require.NoError(t, l.Wait(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.Wait(ctx)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limiter test")
}

func TestNilLimiter(t *testing.T) {
	var l *Limiter
	assert.NoError(t, l.Wait(context.Background()))
	assert.True(t, l.Allow())
}
