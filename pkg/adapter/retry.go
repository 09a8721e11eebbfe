package adapter

import (
	"context"
	"time"
)

// RetryPolicy bounds the transient-fault retry loop every adapter call
// runs under.
type RetryPolicy struct {
	MaxAttempts int
	BaseBackoff time.Duration
	Multiplier  float64
	MaxBackoff  time.Duration
}

// DefaultRetryPolicy is the standard policy: 3 attempts, exponential
// backoff starting at 1 s, factor 2.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseBackoff: time.Second,
		Multiplier:  2,
		MaxBackoff:  30 * time.Second,
	}
}

// CallWithRetry invokes the adapter under the retry policy. Each attempt
// runs under opts.Timeout when set. Non-transient failures (authentication,
// quota, client errors) surface immediately.
func CallWithRetry(ctx context.Context, a Adapter, model string, query Query, opts Options, policy RetryPolicy) (*Outcome, error) {
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}

	backoff := policy.BaseBackoff
	var lastErr error

	for attempt := 0; attempt < policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
			backoff = time.Duration(float64(backoff) * policy.Multiplier)
			if policy.MaxBackoff > 0 && backoff > policy.MaxBackoff {
				backoff = policy.MaxBackoff
			}
		}

		outcome, err := callOnce(ctx, a, model, query, opts)
		if err == nil {
			return outcome, nil
		}
		lastErr = err

		if !IsTransient(err) {
			return nil, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	return nil, lastErr
}

func callOnce(ctx context.Context, a Adapter, model string, query Query, opts Options) (*Outcome, error) {
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}
	return a.Call(ctx, model, query, opts)
}
