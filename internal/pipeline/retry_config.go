package pipeline

import "time"

// RetryConfig bounds evaluator retries per stage.
type RetryConfig struct {
	MaxAttempts      int
	RetryIntervalMin time.Duration
	RetryIntervalMax time.Duration
}

// Backoff returns the wait before the given retry attempt (1-based),
// doubling from the minimum and capped at the maximum.
func (rc *RetryConfig) Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return rc.RetryIntervalMin
	}
	d := rc.RetryIntervalMin
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= rc.RetryIntervalMax {
			return rc.RetryIntervalMax
		}
	}
	return d
}
