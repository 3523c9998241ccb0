// Package retry provides a bounded retry with exponential backoff for
// operations that fail transiently under contention.
package retry

import (
	"time"
)

// Policy bounds the retry loop: up to Retries re-attempts after the first
// try, starting at Delay and multiplying by Factor (2 when unset). When
// Retryable is set, errors it rejects are returned at once instead of
// retried. OnRetry, when set, observes every re-attempt.
type Policy struct {
	Retries   int
	Delay     time.Duration
	Factor    float64
	Retryable func(err error) bool
	OnRetry   func(attempt int, err error)
}

// Run executes op until it succeeds, fails permanently or the attempts are
// exhausted, sleeping with exponential backoff in between. The last error
// is returned as is.
func Run(policy Policy, op func() error) error {
	backoff := policy.Delay
	factor := policy.Factor
	if factor == 0 {
		factor = 2
	}

	for attempt := 0; ; attempt++ {
		err := op()
		if err == nil {
			return nil
		}

		if attempt == policy.Retries {
			return err
		}

		if policy.Retryable != nil && !policy.Retryable(err) {
			return err
		}

		if policy.OnRetry != nil {
			policy.OnRetry(attempt+1, err)
		}

		time.Sleep(backoff)
		backoff = time.Duration(float64(backoff) * factor)
	}
}

// Do is Run for operations that produce a value.
func Do[T any](policy Policy, op func() (T, error)) (result T, err error) {
	err = Run(policy, func() error {
		result, err = op()
		return err
	})
	return result, err
}
