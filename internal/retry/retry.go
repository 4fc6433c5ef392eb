// Package retry reruns a whole scenario body with a fixed delay between
// attempts and a hard wall-clock bound on each attempt.
//
// The rerun bound and the per-attempt timeout are orthogonal: an attempt
// that overruns its bound is aborted and counts as one failed attempt.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrInvalidPolicy indicates a Policy that cannot be executed.
var ErrInvalidPolicy = errors.New("invalid retry policy")

// Policy configures bounded reruns.
type Policy struct {
	// MaxReruns is the number of additional attempts after the first.
	MaxReruns int

	// Delay elapses between a failed attempt and the next one.
	Delay time.Duration

	// AttemptTimeout bounds each individual attempt.
	AttemptTimeout time.Duration
}

// Once returns a policy with no reruns and the given attempt timeout.
func Once(timeout time.Duration) Policy {
	return Policy{AttemptTimeout: timeout}
}

// Validate checks that the policy can be executed.
func (p Policy) Validate() error {
	if p.MaxReruns < 0 {
		return fmt.Errorf("%w: max reruns %d < 0", ErrInvalidPolicy, p.MaxReruns)
	}
	if p.Delay < 0 {
		return fmt.Errorf("%w: delay %v < 0", ErrInvalidPolicy, p.Delay)
	}
	if p.AttemptTimeout <= 0 {
		return fmt.Errorf("%w: attempt timeout must be > 0", ErrInvalidPolicy)
	}
	return nil
}

// Attempt describes the attempt currently executing.
type Attempt struct {
	// Number is the 0-based rerun index. It never exceeds MaxReruns.
	Number int

	// MaxReruns mirrors Policy.MaxReruns.
	MaxReruns int

	// Delay mirrors Policy.Delay.
	Delay time.Duration

	// Deadline is the absolute time at which this attempt is aborted.
	Deadline time.Time
}

// Last reports whether no rerun follows this attempt.
func (a Attempt) Last() bool { return a.Number >= a.MaxReruns }

// Body is a scenario body. It must honor ctx on every blocking call.
type Body func(ctx context.Context, a Attempt) error

// Observer is notified after every attempt with its result.
type Observer func(a Attempt, err error)

// Option configures Run.
type Option func(*runOptions)

type runOptions struct {
	observers []Observer
}

// WithObserver registers a hook called after every attempt.
func WithObserver(o Observer) Option {
	return func(ro *runOptions) {
		ro.observers = append(ro.observers, o)
	}
}

// Run executes body under p. It returns nil on the first successful
// attempt, the unwrapped error of a Permanent failure, a parent context
// error, or *ExhaustedError once 1+MaxReruns attempts have failed.
func Run(ctx context.Context, p Policy, body Body, opts ...Option) error {
	if err := p.Validate(); err != nil {
		return err
	}

	var ro runOptions
	for _, opt := range opts {
		opt(&ro)
	}

	var last error
	for n := 0; n <= p.MaxReruns; n++ {
		if n > 0 {
			if err := contextSleep(ctx, p.Delay); err != nil {
				return fmt.Errorf("retry aborted before attempt %d: %w (last failure: %w)", n+1, err, last)
			}
		}

		a := Attempt{
			Number:    n,
			MaxReruns: p.MaxReruns,
			Delay:     p.Delay,
		}

		last = runAttempt(ctx, p.AttemptTimeout, a, body)

		for _, o := range ro.observers {
			o(a, last)
		}

		if last == nil {
			return nil
		}

		var perm *permanentError
		if errors.As(last, &perm) {
			return perm.err
		}

		if ctx.Err() != nil {
			return fmt.Errorf("retry aborted: %w (last failure: %w)", ctx.Err(), last)
		}
	}

	return &ExhaustedError{Attempts: p.MaxReruns + 1, Last: last}
}

// runAttempt executes one attempt under its own deadline. An attempt whose
// deadline elapsed is reported as a timeout regardless of what the body
// returned.
func runAttempt(parent context.Context, timeout time.Duration, a Attempt, body Body) error {
	ctx, cancel := context.WithTimeout(parent, timeout)
	defer cancel()

	a.Deadline, _ = ctx.Deadline()

	err := body(ctx, a)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) && parent.Err() == nil {
		return &TimeoutError{Attempt: a.Number, Limit: timeout, Err: err}
	}

	return err
}

// contextSleep waits for the given duration or until the context is done,
// whichever comes first. Returns ctx.Err() if the context was cancelled.
func contextSleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		timer.Stop()
		return ctx.Err()
	}
}
