// Package poll provides the bounded waiting primitives used across a sync run.
//
// Until waits for a condition with a fixed interval and a wall-clock budget;
// it replaces implicit browser waits so page interactions are deterministic
// and testable against a fake browser. Retry wraps a network call in a small
// attempt budget with exponential backoff.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go"
)

// ErrTimeout is returned by Until when the condition never held.
var ErrTimeout = errors.New("condition not met before timeout")

// Condition reports whether the awaited state has been reached. A non-nil
// error stops polling immediately.
type Condition func(ctx context.Context) (bool, error)

// Options bounds a call to Until.
type Options struct {
	Timeout  time.Duration
	Interval time.Duration
}

// Until evaluates cond immediately and then once per interval until it
// returns true, returns an error, or the timeout elapses.
func Until(ctx context.Context, opts Options, cond Condition) error {
	if opts.Interval <= 0 {
		opts.Interval = time.Second
	}

	var deadline <-chan time.Time
	if opts.Timeout > 0 {
		timer := time.NewTimer(opts.Timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	ticker := time.NewTicker(opts.Interval)
	defer ticker.Stop()

	for {
		ok, err := cond(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("%w after %s", ErrTimeout, opts.Timeout)
		case <-ticker.C:
		}
	}
}

// Backoff bounds a call to Retry.
type Backoff struct {
	Attempts uint
	Delay    time.Duration
	MaxDelay time.Duration
	// OnRetry is called before each new attempt.
	OnRetry func(attempt uint, err error)
}

// DefaultBackoff is three attempts starting at half a second.
var DefaultBackoff = Backoff{Attempts: 3, Delay: 500 * time.Millisecond, MaxDelay: 5 * time.Second}

// Retry runs fn until it succeeds or the attempt budget is spent, doubling
// the delay between attempts. Errors wrapped with Permanent are not retried.
func Retry(ctx context.Context, b Backoff, fn func(ctx context.Context) error) error {
	if b.Attempts == 0 {
		b.Attempts = 1
	}

	opts := []retry.Option{
		retry.Context(ctx),
		retry.Attempts(b.Attempts),
		retry.Delay(b.Delay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			var p *permanentError
			return !errors.As(err, &p)
		}),
	}
	if b.MaxDelay > 0 {
		opts = append(opts, retry.MaxDelay(b.MaxDelay))
	}
	if b.OnRetry != nil {
		opts = append(opts, retry.OnRetry(b.OnRetry))
	}

	err := retry.Do(func() error { return fn(ctx) }, opts...)

	var p *permanentError
	if errors.As(err, &p) {
		return p.err
	}
	return err
}

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}
