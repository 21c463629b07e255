// Package ratelimiter is a token bucket limiter for gateway requests.
//
// It wraps golang.org/x/time/rate. Tokens are added at RequestsPerSecond and
// the bucket holds at most Burst tokens; each request consumes one.
package ratelimiter

import (
	"context"
	"math"
	"time"

	"golang.org/x/time/rate"
)

// Config configures a Limiter.
type Config struct {
	// RequestsPerSecond is the sustained rate. Zero disables limiting.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second" validate:"gte=0"`

	// Burst is the bucket capacity. Zero means twice the rate, rounded up.
	Burst int `mapstructure:"burst" yaml:"burst" validate:"gte=0"`
}

// Enabled reports whether c limits anything.
func (c Config) Enabled() bool {
	return c.RequestsPerSecond > 0
}

// Limiter is a token bucket.
//
// Thread safety:
// All methods are safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
}

// New creates a Limiter. A zero rate yields a limiter that allows everything.
func New(config Config) *Limiter {
	if !config.Enabled() {
		return &Limiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), burstFor(config)),
	}
}

func burstFor(config Config) int {
	if config.Burst > 0 {
		return config.Burst
	}
	return int(math.Ceil(config.RequestsPerSecond * 2))
}

// Allow consumes a token if one is available and reports whether it did.
// It never blocks.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// Wait blocks until a token is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// RetryAfter returns how long a rejected caller should wait before a token
// is expected to be available. It does not consume a token.
func (l *Limiter) RetryAfter() time.Duration {
	now := time.Now()
	r := l.limiter.ReserveN(now, 1)
	if !r.OK() {
		return time.Second
	}
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return delay
}

// SetConfig swaps the rate and burst in place.
func (l *Limiter) SetConfig(config Config) {
	if !config.Enabled() {
		l.limiter.SetLimit(rate.Inf)
		return
	}
	l.limiter.SetLimit(rate.Limit(config.RequestsPerSecond))
	l.limiter.SetBurst(burstFor(config))
}

// Tokens returns the tokens currently in the bucket. Useful for tests and
// debugging only; the value is stale as soon as it returns.
func (l *Limiter) Tokens() float64 {
	return l.limiter.Tokens()
}
