package retry

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mvrv/pkg/errors"
)

func fastConfig(retries int) Config {
	return Config{
		MaxRetries:   retries,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Strategy:     StrategyFixed,
	}
}

func TestDo_RetriesServerErrors(t *testing.T) {
	m := New(fastConfig(2))

	attempts := 0
	got, err := Do(context.Background(), m, func() (int, error) {
		attempts++
		if attempts < 3 {
			return 0, &errors.HTTPStatusError{Provider: "test", Status: http.StatusBadGateway}
		}
		return 42, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, attempts)
}

func TestDo_StopsOnNonRetryable(t *testing.T) {
	m := New(fastConfig(3))

	attempts := 0
	err := m.Do(context.Background(), func() error {
		attempts++
		return &errors.HTTPStatusError{Provider: "test", Status: http.StatusNotFound}
	})

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.ErrorIs(t, err, errors.ErrProviderUnavailable)
}

func TestDo_ExhaustsRetries(t *testing.T) {
	m := New(fastConfig(2))

	attempts := 0
	err := m.Do(context.Background(), func() error {
		attempts++
		return &errors.HTTPStatusError{Provider: "test", Status: http.StatusTooManyRequests}
	})

	require.Error(t, err)
	assert.Equal(t, 3, attempts)
	assert.Contains(t, err.Error(), "max retries (2) exceeded")
}

func TestDo_ContextCancelledBetweenAttempts(t *testing.T) {
	m := New(Config{MaxRetries: 5, InitialDelay: time.Second, MaxDelay: time.Second, Strategy: StrategyFixed})

	ctx, cancel := context.WithCancel(context.Background())
	err := m.Do(ctx, func() error {
		cancel()
		return errors.New("connection reset by peer")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCalculateDelay(t *testing.T) {
	m := New(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Strategy: StrategyExponential, Multiplier: 2})
	assert.Equal(t, 100*time.Millisecond, m.calculateDelay(0))
	assert.Equal(t, 400*time.Millisecond, m.calculateDelay(2))
	assert.Equal(t, time.Second, m.calculateDelay(10))

	lin := New(Config{InitialDelay: 100 * time.Millisecond, MaxDelay: time.Second, Strategy: StrategyLinear})
	assert.Equal(t, 300*time.Millisecond, lin.calculateDelay(2))
}

func TestDo_RateLimitedWaitsMaxDelay(t *testing.T) {
	m := New(Config{
		MaxRetries:   1,
		InitialDelay: time.Millisecond,
		MaxDelay:     40 * time.Millisecond,
		Strategy:     StrategyFixed,
	})

	attempts := 0
	start := time.Now()
	err := m.Do(context.Background(), func() error {
		attempts++
		return &errors.HTTPStatusError{Provider: "test", Status: http.StatusTooManyRequests}
	})

	require.Error(t, err)
	assert.Equal(t, 2, attempts)
	assert.ErrorIs(t, err, errors.ErrRateLimitExceeded)
	assert.ErrorIs(t, err, errors.ErrProviderUnavailable)
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestHTTPStatusError_Classification(t *testing.T) {
	tests := []struct {
		status      int
		rateLimited bool
	}{
		{status: http.StatusTooManyRequests, rateLimited: true},
		{status: http.StatusServiceUnavailable},
		{status: http.StatusNotFound},
	}

	for _, tt := range tests {
		err := errors.Wrap(&errors.HTTPStatusError{Provider: "test", Status: tt.status}, "fetch")
		assert.ErrorIs(t, err, errors.ErrProviderUnavailable, "status %d", tt.status)
		assert.Equal(t, tt.rateLimited, errors.Is(err, errors.ErrRateLimitExceeded), "status %d", tt.status)
	}
}
