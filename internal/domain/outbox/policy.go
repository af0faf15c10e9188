// Package outbox holds the pure delivery policy for outbox messages: the
// retry backoff schedule and the per-type email body templates.
package outbox

import (
	"math"
	"time"
)

// RetryPolicy describes the bounded exponential backoff applied to failed
// outbox deliveries.
type RetryPolicy struct {
	// BaseDelay is the delay before the first retry.
	BaseDelay time.Duration
	// Multiplier scales the delay for each subsequent attempt.
	Multiplier float64
	// MaxAttempts is the number of delivery attempts before a message is
	// marked permanently failed.
	MaxAttempts int
}

// Delay returns how long to wait before the retry following failed attempt
// number attemptCount (1-based). The schedule is
// BaseDelay * Multiplier^(attemptCount-1).
func (p RetryPolicy) Delay(attemptCount int) time.Duration {
	if attemptCount < 1 {
		attemptCount = 1
	}
	scale := math.Pow(p.Multiplier, float64(attemptCount-1))
	return time.Duration(float64(p.BaseDelay) * scale)
}

// NextRetryAt returns the absolute time of the retry following failed
// attempt number attemptCount, relative to now.
func (p RetryPolicy) NextRetryAt(now time.Time, attemptCount int) time.Time {
	return now.Add(p.Delay(attemptCount))
}

// Exhausted reports whether attemptCount failed attempts have used up the
// retry budget.
func (p RetryPolicy) Exhausted(attemptCount int) bool {
	return attemptCount >= p.MaxAttempts
}
