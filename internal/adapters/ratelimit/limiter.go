package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"mvrv/pkg/errors"
)

// Limiter paces calls to an upstream API
type Limiter struct {
	limiter *rate.Limiter
	name    string
}

// NewLimiter creates a limiter allowing requestsPerMinute with a 10% burst
func NewLimiter(name string, requestsPerMinute int) *Limiter {
	rps := float64(requestsPerMinute) / 60.0

	burst := requestsPerMinute / 10
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    name,
	}
}

// NewPause creates a limiter that spaces consecutive calls at least pause apart.
// A non-positive pause disables pacing.
func NewPause(name string, pause time.Duration) *Limiter {
	limit := rate.Inf
	if pause > 0 {
		limit = rate.Every(pause)
	}
	return &Limiter{
		limiter: rate.NewLimiter(limit, 1),
		name:    name,
	}
}

// Wait blocks until the limiter allows the request or ctx is done
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil {
		return nil
	}
	if err := l.limiter.Wait(ctx); err != nil {
		return errors.Wrapf(err, "rate limiter %s", l.name)
	}
	return nil
}

// Allow checks if a request is allowed without blocking
func (l *Limiter) Allow() bool {
	if l == nil {
		return true
	}
	return l.limiter.Allow()
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}
