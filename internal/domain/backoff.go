package domain

import "time"

// BackoffPolicy computes exponential retry delays:
// delay = min(Base * Multiplier^(attempt-1), Cap).
type BackoffPolicy struct {
	Base       time.Duration `json:"base"`
	Multiplier float64       `json:"multiplier"`
	Cap        time.Duration `json:"cap"`
}

// DefaultJobBackoff is the backoff applied when scheduling an explicit retry
// of a rate-limited or failed campaign job.
func DefaultJobBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:       30 * time.Second,
		Multiplier: 2,
		Cap:        15 * time.Minute,
	}
}

// DefaultEmailBackoff is the queue-layer backoff for email-send tasks:
// 5s base, doubling, three attempts total.
func DefaultEmailBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:       5 * time.Second,
		Multiplier: 2,
		Cap:        5 * time.Minute,
	}
}

// Delay returns the wait before the given attempt number (1-based). Attempt
// values below 1 are treated as 1.
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	base := p.Base
	if base <= 0 {
		return 0
	}
	mult := p.Multiplier
	if mult <= 0 {
		mult = 2
	}

	delay := float64(base)
	for i := 1; i < attempt; i++ {
		delay *= mult
		if p.Cap > 0 && delay >= float64(p.Cap) {
			return p.Cap
		}
	}
	d := time.Duration(delay)
	if p.Cap > 0 && d > p.Cap {
		return p.Cap
	}
	return d
}
