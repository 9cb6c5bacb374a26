package queue

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy computes redelivery delays for failed tasks
type RetryPolicy struct {
	initial time.Duration
	cap     time.Duration
}

// NewRetryPolicy creates a policy with exponential growth capped at cap.
func NewRetryPolicy(initial, cap time.Duration) *RetryPolicy {
	if initial <= 0 {
		initial = 2 * time.Second
	}
	if cap <= 0 {
		cap = 600 * time.Second
	}
	return &RetryPolicy{initial: initial, cap: cap}
}

// DelayForAttempt returns the redelivery delay after the given delivery
// attempt (1-based). Doubles per attempt with jitter, never exceeding the cap.
func (p *RetryPolicy) DelayForAttempt(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxInterval = p.cap
	b.Multiplier = 2
	b.RandomizationFactor = 0.2
	b.MaxElapsedTime = 0
	b.Reset()

	delay := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		delay = b.NextBackOff()
	}
	if delay > p.cap || delay == backoff.Stop {
		delay = p.cap
	}
	return delay
}
