// Package backoff computes retry delays for failed lifecycle steps and webhook
// deliveries. Delays grow exponentially with the consecutive failure count and
// are capped, so wait_until values are monotonically non-decreasing in retries.
package backoff

import "time"

// DefaultMaxDelay bounds the exponential growth so a record with many failures
// is still retried within a reasonable window.
const DefaultMaxDelay = 30 * time.Minute

// Policy computes the delay to apply before the next retry attempt.
type Policy interface {
	Delay(retriesCount int) time.Duration
}

// Exponential is a Policy producing base * 2^retries, capped at Max.
type Exponential struct {
	Base time.Duration
	Max  time.Duration
}

// NewExponential creates an exponential backoff policy with the given base
// interval and the default cap.
func NewExponential(base time.Duration) Exponential {
	return Exponential{Base: base, Max: DefaultMaxDelay}
}

// Delay returns the backoff delay for the given consecutive failure count.
// A negative count is treated as zero.
func (e Exponential) Delay(retriesCount int) time.Duration {
	if retriesCount < 0 {
		retriesCount = 0
	}

	max := e.Max
	if max <= 0 {
		max = DefaultMaxDelay
	}

	delay := e.Base
	for i := 0; i < retriesCount; i++ {
		delay *= 2
		if delay >= max || delay <= 0 {
			return max
		}
	}

	if delay > max {
		return max
	}
	return delay
}
