// Package retry wraps fallible operations with bounded attempts and
// exponential backoff. The controller treats every failure uniformly;
// callers that want to exempt certain errors supply a predicate, since
// deciding what is worth retrying is the caller's policy, not ours.
package retry

import (
	"context"
	"time"
)

// Policy holds the attempt budget and delay schedule. The zero value is not
// usable; build one with New.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	retryIf     func(error) bool
	onRetry     func(attempt int, err error)
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option customizes a Policy.
type Option func(*Policy)

// WithRetryIf restricts retries to errors the predicate accepts; any other
// failure is returned immediately. The default retries everything.
func WithRetryIf(pred func(error) bool) Option {
	return func(p *Policy) { p.retryIf = pred }
}

// WithSleep replaces the suspension function, mainly so tests can observe
// delays without waiting them out.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(p *Policy) { p.sleep = sleep }
}

// WithOnRetry registers a callback invoked before each backoff suspension
// with the failed attempt number and its error.
func WithOnRetry(fn func(attempt int, err error)) Option {
	return func(p *Policy) { p.onRetry = fn }
}

// New builds a Policy allowing maxAttempts invocations with a backoff of
// baseDelay doubling after each failed attempt.
func New(maxAttempts int, baseDelay time.Duration, opts ...Option) Policy {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	p := Policy{
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		retryIf:     func(error) bool { return true },
		sleep:       contextSleep,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

// Do invokes op until it succeeds or the attempt budget is exhausted. After
// failed attempt k it suspends for baseDelay * 2^(k-1). The final failure is
// returned exactly as op produced it, never wrapped.
func Do[T any](ctx context.Context, p Policy, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if attempt == p.maxAttempts || !p.retryIf(err) {
			return zero, err
		}
		if p.onRetry != nil {
			p.onRetry(attempt, err)
		}
		delay := p.baseDelay << (attempt - 1)
		if err := p.sleep(ctx, delay); err != nil {
			return zero, lastErr
		}
	}
	return zero, lastErr
}

// contextSleep waits for d or until ctx finishes, whichever comes first.
func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
