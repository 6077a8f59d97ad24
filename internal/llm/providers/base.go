package providers

import (
	"context"

	"github.com/forgehook/forgehostd/internal/backoff"
)

// BaseProvider holds the name every adapter reports through Provider.Name
// and a shared retry loop driven by internal/backoff's exponential curve —
// the same package internal/lifecycle/invoke.go uses for hook endpoint
// retries, here applied to a provider's own transient transport failures
// (rate limits, 5xx, timeouts) instead of a hook's.
type BaseProvider struct {
	name        string
	maxAttempts int
	policy      backoff.BackoffPolicy
}

// NewBaseProvider constructs a BaseProvider with internal/backoff's
// ProviderRetryPolicy and the given attempt budget (at least 1).
func NewBaseProvider(name string, maxAttempts int) BaseProvider {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return BaseProvider{name: name, maxAttempts: maxAttempts, policy: backoff.ProviderRetryPolicy()}
}

// Name returns the provider's registered name.
func (b *BaseProvider) Name() string {
	return b.name
}

// Retry runs op up to maxAttempts times, sleeping backoff.ComputeBackoff's
// curve between failures, and returns as soon as op succeeds, isRetryable
// reports the failure won't improve on replay, or ctx is cancelled.
func (b *BaseProvider) Retry(ctx context.Context, isRetryable func(error) bool, op func() error) error {
	if op == nil {
		return nil
	}

	var lastErr error
	for attempt := 1; attempt <= b.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := op(); err == nil {
			return nil
		} else {
			lastErr = err
			if isRetryable == nil || !isRetryable(err) {
				return err
			}
			if attempt >= b.maxAttempts {
				break
			}
			if err := backoff.SleepWithBackoff(ctx, b.policy, attempt); err != nil {
				return err
			}
		}
	}
	return lastErr
}
