// Package ratelimit provides token-bucket admission control for outbound
// provider calls.
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/leadforge/pipeline/internal/logger"
)

// Limiter guards calls to an external API with a shared token bucket. One
// instance per provider is constructed at process start and passed by
// reference into every runner worker; it is safe for concurrent use.
type Limiter struct {
	limiter *rate.Limiter
	logger  logger.Logger
}

// New creates a limiter refilling rps tokens per second with the given burst
// capacity. Burst is forced to at least one token so a single acquisition can
// never deadlock.
func New(rps, burst int, log logger.Logger) *Limiter {
	if rps <= 0 {
		rps = 1
	}
	if burst < 1 {
		burst = 1
	}

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		logger:  log,
	}
}

// Acquire blocks cooperatively until a token is available, then consumes it.
// It never fails outright; the only error is the caller's context being
// cancelled while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	if err := l.limiter.Wait(ctx); err != nil {
		l.logger.Warn("rate limiter wait interrupted", logger.Error(err))
		return err
	}
	return nil
}

// Allow reports whether a token is available without waiting.
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}
