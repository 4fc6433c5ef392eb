// Package cleanup provides scoped rollback guards.
//
// A Stack collects named rollback actions and runs them in reverse
// registration order exactly once when it is unwound. Unwinding always
// happens on a context detached from the caller's cancellation, so a body
// aborted by its deadline still gets its rollback.
package cleanup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
)

// ErrCleanup wraps rollback failures returned from a successful body.
var ErrCleanup = errors.New("cleanup failed")

// DefaultTimeout bounds an unwind when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Action is a rollback operation.
type Action func(ctx context.Context) error

type entry struct {
	name   string
	action Action
}

// Stack is a LIFO set of rollback actions. It is not safe for concurrent
// use; scenario bodies run on a single goroutine.
type Stack struct {
	logger  *slog.Logger
	metrics *qametrics.Collector
	timeout time.Duration
	entries []entry
}

// Option configures a Stack.
type Option func(*Stack)

// WithTimeout bounds the whole unwind.
func WithTimeout(d time.Duration) Option {
	return func(s *Stack) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithMetrics counts rollback failures on c.
func WithMetrics(c *qametrics.Collector) Option {
	return func(s *Stack) { s.metrics = c }
}

// NewStack creates an empty Stack.
func NewStack(logger *slog.Logger, opts ...Option) *Stack {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stack{
		logger:  logger.With(slog.String("component", "cleanup")),
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Push registers a rollback action.
func (s *Stack) Push(name string, a Action) {
	s.entries = append(s.entries, entry{name: name, action: a})
}

// Len returns the number of pending actions.
func (s *Stack) Len() int { return len(s.entries) }

// Unwind runs every pending action in LIFO order. It is meant to be
// deferred with a pointer to the caller's named error result:
//
//	defer stack.Unwind(ctx, &err)
//
// A failure already stored in *errp is never replaced. When *errp is nil
// and a rollback failed, *errp receives the joined failures wrapped in
// ErrCleanup. errp may be nil, in which case failures are only logged.
func (s *Stack) Unwind(ctx context.Context, errp *error) {
	err := s.Drain(ctx)
	if err == nil || errp == nil {
		return
	}
	if *errp != nil {
		s.logger.Warn("rollback failure suppressed by primary failure",
			slog.String("primary", (*errp).Error()),
			slog.String("rollback", err.Error()),
		)
		return
	}
	*errp = err
}

// Drain runs every pending action in LIFO order and returns their joined
// failures wrapped in ErrCleanup. Each action runs once: the stack is empty
// afterwards.
func (s *Stack) Drain(ctx context.Context) error {
	if len(s.entries) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	var errs []error
	for len(s.entries) > 0 {
		e := s.entries[len(s.entries)-1]
		s.entries = s.entries[:len(s.entries)-1]

		if err := runAction(ctx, e); err != nil {
			s.logger.Error("rollback action failed",
				slog.String("action", e.name),
				slog.String("error", err.Error()),
			)
			s.metrics.IncCleanupFailures(e.name)
			errs = append(errs, fmt.Errorf("%s: %w", e.name, err))
			continue
		}

		s.logger.Debug("rollback action done", slog.String("action", e.name))
	}

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrCleanup, errors.Join(errs...))
}

// runAction converts a panicking rollback into an error so the remaining
// actions still run.
func runAction(ctx context.Context, e entry) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return e.action(ctx)
}

// Bracket runs body with rollback registered on a fresh child stack that
// shares s's settings. The rollback runs when body returns, fails, or
// panics. Brackets opened inside body unwind before this one.
func (s *Stack) Bracket(ctx context.Context, name string, rollback Action, body func(ctx context.Context) error) (err error) {
	child := &Stack{logger: s.logger, metrics: s.metrics, timeout: s.timeout}
	child.Push(name, rollback)
	defer child.Unwind(ctx, &err)

	return body(ctx)
}
