package retry

import (
	"context"
	"math"
	"net"
	"net/http"
	"strings"
	"time"

	"mvrv/pkg/errors"
)

// Strategy defines the retry strategy
type Strategy string

const (
	StrategyExponential Strategy = "exponential"
	StrategyLinear      Strategy = "linear"
	StrategyFixed       Strategy = "fixed"
)

// Config contains retry configuration
type Config struct {
	MaxRetries   int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Strategy     Strategy
	Multiplier   float64 // For exponential backoff
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		MaxRetries:   2,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Strategy:     StrategyExponential,
		Multiplier:   2.0,
	}
}

// Middleware retries transient upstream failures with backoff
type Middleware struct {
	config Config
}

// New creates a new retry middleware. MaxRetries of 0 means a single attempt.
func New(config Config) *Middleware {
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.InitialDelay <= 0 {
		config.InitialDelay = 100 * time.Millisecond
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = 5 * time.Second
	}
	if config.Multiplier <= 0 {
		config.Multiplier = 2.0
	}
	if config.Strategy == "" {
		config.Strategy = StrategyExponential
	}

	return &Middleware{config: config}
}

// Do executes fn, retrying retryable errors
func (m *Middleware) Do(ctx context.Context, fn func() error) error {
	_, err := Do(ctx, m, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// Do executes fn with m's retry policy and returns its result
func Do[T any](ctx context.Context, m *Middleware, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 0; attempt <= m.config.MaxRetries; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}

		lastErr = err

		if !IsRetryable(err) {
			return zero, err
		}

		if attempt == m.config.MaxRetries {
			break
		}

		delay := m.calculateDelay(attempt)
		if errors.Is(err, errors.ErrRateLimitExceeded) {
			delay = m.config.MaxDelay
		}

		select {
		case <-ctx.Done():
			return zero, errors.Wrap(ctx.Err(), "retry cancelled")
		case <-time.After(delay):
		}
	}

	if m.config.MaxRetries == 0 {
		return zero, lastErr
	}
	return zero, errors.Wrapf(lastErr, "max retries (%d) exceeded", m.config.MaxRetries)
}

// calculateDelay calculates the backoff delay based on the strategy
func (m *Middleware) calculateDelay(attempt int) time.Duration {
	var delay time.Duration

	switch m.config.Strategy {
	case StrategyExponential:
		delay = time.Duration(float64(m.config.InitialDelay) * math.Pow(m.config.Multiplier, float64(attempt)))
	case StrategyLinear:
		delay = m.config.InitialDelay * time.Duration(1+attempt)
	default:
		delay = m.config.InitialDelay
	}

	if delay > m.config.MaxDelay {
		delay = m.config.MaxDelay
	}

	return delay
}

// IsRetryable determines if an error is worth retrying
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}

	var httpErr interface{ StatusCode() int }
	if errors.As(err, &httpErr) {
		code := httpErr.StatusCode()
		return code == http.StatusTooManyRequests ||
			code == http.StatusRequestTimeout ||
			code >= 500
	}

	errStr := strings.ToLower(err.Error())
	for _, msg := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"timeout",
		"temporary failure",
		"too many requests",
	} {
		if strings.Contains(errStr, msg) {
			return true
		}
	}

	return false
}
