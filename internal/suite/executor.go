package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dantte-lp/vpnqa/internal/cleanup"
	"github.com/dantte-lp/vpnqa/internal/expect"
	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
	"github.com/dantte-lp/vpnqa/internal/report"
	"github.com/dantte-lp/vpnqa/internal/retry"
	"github.com/dantte-lp/vpnqa/internal/scenario"
)

// diagnosticsTimeout bounds evidence collection for a failed case.
const diagnosticsTimeout = 15 * time.Second

// Executor runs cases one at a time and builds the report.
type Executor struct {
	deps   *Deps
	logger *slog.Logger
}

// NewExecutor creates an Executor over deps.
func NewExecutor(deps Deps) *Executor {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	return &Executor{
		deps:   &deps,
		logger: deps.Logger.With(slog.String("component", "suite.executor")),
	}
}

// Run sets up env, runs cases strictly in order and tears env down.
// A setup failure aborts the run before any case. Cancelling ctx stops
// the run after the current case has unwound; remaining cases are
// reported as skipped.
func (x *Executor) Run(ctx context.Context, env *Environment, cases []Case) (rep *report.Report, err error) {
	rep = report.New()
	defer rep.Finish()

	if env != nil {
		if err := env.Setup(ctx); err != nil {
			return rep, fmt.Errorf("environment setup: %w", err)
		}
		defer func() {
			if terr := env.Teardown(ctx); terr != nil {
				err = errors.Join(err, fmt.Errorf("environment teardown: %w", terr))
			}
		}()
	}

	for _, c := range cases {
		if ctx.Err() != nil {
			rep.Add(x.skipped(c, ctx.Err()))
			continue
		}
		rep.Add(x.RunCase(ctx, c))
	}

	x.logger.Info("run finished",
		slog.Int("total", rep.Summary.Total),
		slog.Int("passed", rep.Summary.Passed),
		slog.Int("failed", rep.Summary.Failed),
		slog.Int("skipped", rep.Summary.Skipped),
	)
	return rep, ctx.Err()
}

// RunCase runs c under its retry policy. Every attempt gets its own
// cleanup stack; the connection-state tracker is reset between attempts.
func (x *Executor) RunCase(ctx context.Context, c Case) report.CaseResult {
	name := c.FullName()
	logger := x.logger.With(slog.String("case", name))
	metrics := x.deps.Metrics

	tracker := scenario.NewTracker(func(tr scenario.Transition) {
		metrics.RecordStateTransition(tr.OldState.String(), tr.NewState.String())
		logger.Debug("state transition",
			slog.String("event", tr.Event.String()),
			slog.String("from", tr.OldState.String()),
			slog.String("to", tr.NewState.String()),
		)
	})

	var (
		attempts int
		last     *T
	)

	start := time.Now()
	logger.Info("case started")

	err := retry.Run(ctx, c.Policy, func(ctx context.Context, a retry.Attempt) error {
		if a.Number > 0 {
			tracker.Apply(scenario.EventReset)
		}
		t := &T{
			Deps:     x.deps,
			Attempt:  a,
			Scenario: c.Scenario,
			stack: cleanup.NewStack(logger,
				cleanup.WithTimeout(x.deps.CleanupTimeout),
				cleanup.WithMetrics(metrics),
			),
			tracker: tracker,
			logger:  logger.With(slog.Int("attempt", a.Number)),
		}
		last = t
		return x.attempt(ctx, c, t)
	}, retry.WithObserver(func(a retry.Attempt, err error) {
		attempts = a.Number + 1
		outcome := attemptOutcome(err)
		metrics.RecordAttempt(c.Name, outcome)
		if err != nil {
			logger.Warn("attempt failed",
				slog.Int("attempt", a.Number),
				slog.Int("max_reruns", a.MaxReruns),
				slog.String("outcome", outcome),
				slog.String("error", err.Error()),
			)
		}
	}))

	if err == nil && tracker.State() != scenario.StateIdle {
		tracker.Apply(scenario.EventReset)
	}

	res := report.CaseResult{
		Name:     c.Name,
		Suite:    c.Suite,
		Attempts: attempts,
		Duration: report.Duration(time.Since(start)),
		Trail:    tracker.TrailString(),
	}
	if !c.Scenario.IsZero() {
		res.Scenario = c.Scenario.String()
	}

	switch {
	case err == nil:
		res.Outcome = report.Pass
	case errors.Is(err, ErrSkip):
		res.Outcome = report.Skip
		res.Error = err.Error()
	default:
		res.Outcome = report.Fail
		res.Kind = expect.Classify(err).String()
		res.Error = err.Error()
		x.evidence(ctx, last, &res)
	}

	metrics.RecordCase(c.Name, caseOutcome(res.Outcome), time.Since(start))
	logger.Info("case finished",
		slog.String("outcome", string(res.Outcome)),
		slog.Int("attempts", res.Attempts),
		slog.Duration("duration", time.Since(start)),
	)
	return res
}

// attempt runs one attempt: applies the scenario, runs the body, unwinds
// the attempt's stack and drives the tracker into Failed on error.
func (x *Executor) attempt(ctx context.Context, c Case, t *T) (err error) {
	if c.Teardown != nil {
		t.stack.Push("teardown", func(ctx context.Context) error { return c.Teardown(ctx, t) })
	}
	defer func() {
		if err != nil {
			fail(t.tracker)
		}
	}()
	defer t.stack.Unwind(ctx, &err)

	if !c.Scenario.IsZero() {
		if err := t.Product.Apply(ctx, c.Scenario); err != nil {
			return fmt.Errorf("apply scenario %s: %w", c.Scenario, err)
		}
	}
	return c.Body(ctx, t)
}

// fail moves the tracker to Failed with whichever event the current state
// accepts.
func fail(tr *scenario.Tracker) {
	switch tr.State() {
	case scenario.StateFailed:
	case scenario.StateConnecting, scenario.StateDisconnecting:
		tr.Apply(scenario.EventCommandFailed)
	default:
		tr.Apply(scenario.EventAssertionFailed)
	}
}

// evidence attaches the last command, routing snapshot and diagnostics.
func (x *Executor) evidence(ctx context.Context, t *T, res *report.CaseResult) {
	if t == nil {
		return
	}
	if t.last != nil {
		res.Command = &report.CommandEvidence{
			Command:  t.last.Command(),
			ExitCode: t.last.ExitCode,
			Stdout:   t.last.Stdout,
			Stderr:   t.last.Stderr,
		}
	}
	if t.routing != nil {
		res.Routing = t.routing.String()
	}
	if x.deps.Diagnostics != nil {
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagnosticsTimeout)
		defer cancel()
		res.Diagnostics = x.deps.Diagnostics.Collect(dctx)
	}
}

func (x *Executor) skipped(c Case, cause error) report.CaseResult {
	res := report.CaseResult{
		Name:    c.Name,
		Suite:   c.Suite,
		Outcome: report.Skip,
		Error:   cause.Error(),
	}
	if !c.Scenario.IsZero() {
		res.Scenario = c.Scenario.String()
	}
	return res
}

func attemptOutcome(err error) string {
	switch {
	case err == nil:
		return qametrics.OutcomePass
	case errors.Is(err, ErrSkip):
		return qametrics.OutcomeSkip
	case retry.IsTimeout(err):
		return qametrics.OutcomeTimeout
	default:
		return qametrics.OutcomeFail
	}
}

func caseOutcome(o report.Outcome) string {
	switch o {
	case report.Pass:
		return qametrics.OutcomePass
	case report.Skip:
		return qametrics.OutcomeSkip
	default:
		return qametrics.OutcomeFail
	}
}
