// Package suite holds the acceptance cases and the executor that runs them
// against a live product installation.
package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/dantte-lp/vpnqa/internal/catalog"
	"github.com/dantte-lp/vpnqa/internal/cleanup"
	"github.com/dantte-lp/vpnqa/internal/expect"
	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
	"github.com/dantte-lp/vpnqa/internal/probe"
	"github.com/dantte-lp/vpnqa/internal/retry"
	"github.com/dantte-lp/vpnqa/internal/scenario"
	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// Suite names.
const (
	SuiteConnect = "connect"
	SuiteRouting = "routing"
)

// ErrSkip marks a case that could not run in this environment.
var ErrSkip = errors.New("skipped")

// Skip returns an error that ends the case as skipped without reruns.
func Skip(reason string) error {
	return retry.Permanent(fmt.Errorf("%w: %s", ErrSkip, reason))
}

// Network takes the machine's uplink down and brings it back.
type Network interface {
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
}

// ServerPicker resolves a concrete server for a combination.
type ServerPicker interface {
	Pick(ctx context.Context, combo scenario.Combination) (catalog.Server, error)
}

// Collector gathers free-form diagnostics for a failed case.
type Collector interface {
	Collect(ctx context.Context) string
}

// Deps are the collaborators every case body may use.
type Deps struct {
	Product     *vpncli.Client
	Prober      *probe.Prober
	Network     Network
	Servers     ServerPicker
	Diagnostics Collector
	Metrics     *qametrics.Collector
	Logger      *slog.Logger

	// ReconnectTimeout bounds the wait for the tunnel after an uplink
	// restart.
	ReconnectTimeout time.Duration

	// CleanupTimeout bounds each attempt's rollback.
	CleanupTimeout time.Duration
}

// Body is the code of one case attempt.
type Body func(ctx context.Context, t *T) error

// Case is one acceptance test, optionally bound to a scenario.
type Case struct {
	Name     string
	Suite    string
	Scenario scenario.Scenario
	Policy   retry.Policy
	Body     Body

	// Teardown runs after every attempt, after the attempt's own rollback.
	Teardown Body
}

// FullName returns "suite/name[scenario]".
func (c Case) FullName() string {
	if c.Scenario.IsZero() {
		return c.Suite + "/" + c.Name
	}
	return fmt.Sprintf("%s/%s[%s]", c.Suite, c.Name, c.Scenario)
}

// Select keeps cases of the named suite (all when empty) whose full name
// matches pattern (all when empty).
func Select(cases []Case, suiteName, pattern string) ([]Case, error) {
	var re *regexp.Regexp
	if pattern != "" {
		var err error
		if re, err = regexp.Compile(pattern); err != nil {
			return nil, fmt.Errorf("case filter: %w", err)
		}
	}

	var out []Case
	for _, c := range cases {
		if suiteName != "" && c.Suite != suiteName {
			continue
		}
		if re != nil && !re.MatchString(c.FullName()) {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

// ----------------------------------------------------------------------------
// T: per-attempt case context
// ----------------------------------------------------------------------------

// T is handed to a case body for one attempt. It issues product commands,
// feeds the connection-state tracker and keeps the evidence for the report.
type T struct {
	*Deps

	Attempt  retry.Attempt
	Scenario scenario.Scenario

	stack   *cleanup.Stack
	tracker *scenario.Tracker
	logger  *slog.Logger

	last    *vpncli.Result
	routing *probe.RoutingSnapshot
}

// Log returns the attempt's logger.
func (t *T) Log() *slog.Logger { return t.logger }

// Defer registers a rollback action for the end of the attempt.
func (t *T) Defer(name string, a cleanup.Action) { t.stack.Push(name, a) }

// DeferDisconnect registers a disconnect that tolerates not being connected.
func (t *T) DeferDisconnect() {
	t.stack.Push("disconnect", t.forceDisconnect)
}

// Bracket runs body and then rollback, whatever body returns.
func (t *T) Bracket(ctx context.Context, name string, rollback cleanup.Action, body func(ctx context.Context) error) error {
	return t.stack.Bracket(ctx, name, rollback, body)
}

// Command runs a product command and records it as evidence.
func (t *T) Command(ctx context.Context, args ...string) (vpncli.Result, error) {
	res, err := t.Product.Raw(ctx, args...)
	t.record(res)
	return res, err
}

// Connect issues a connect that must succeed.
func (t *T) Connect(ctx context.Context, args ...string) (vpncli.Result, error) {
	return t.connect(func() (vpncli.Result, error) {
		return t.Command(ctx, append([]string{connectCommand}, args...)...)
	})
}

// ConnectTarget issues a connect to target that must succeed. The zero
// target is a quick connect.
func (t *T) ConnectTarget(ctx context.Context, target scenario.Target) (vpncli.Result, error) {
	return t.connect(func() (vpncli.Result, error) {
		res, err := t.Product.ConnectTarget(ctx, target)
		t.record(res)
		return res, err
	})
}

func (t *T) connect(run func() (vpncli.Result, error)) (vpncli.Result, error) {
	t.tracker.Apply(scenario.EventConnectIssued)
	res, err := run()
	if err != nil {
		t.tracker.Apply(scenario.EventCommandFailed)
		return res, err
	}
	t.tracker.Apply(scenario.EventConnectOK)
	return res, nil
}

// Reject issues a command that must fail. The product's error is returned
// for inspection; err is set when the command succeeded or was killed.
// Only a connect moves the connection state; any other rejected command
// leaves it where it was.
func (t *T) Reject(ctx context.Context, args ...string) (rejected error, err error) {
	isConnect := len(args) > 0 && args[0] == connectCommand
	if isConnect {
		t.tracker.Apply(scenario.EventConnectIssued)
	}
	res, err := t.Command(ctx, args...)
	if err == nil {
		if isConnect {
			t.tracker.Apply(scenario.EventConnectOK)
		}
		return nil, t.fail("'"+res.Command()+"' is rejected", res.Output())
	}
	if ce, ok := vpncli.AsCommandError(err); !ok || ce.Killed() {
		t.tracker.Apply(scenario.EventCommandFailed)
		return nil, err
	}
	if isConnect {
		t.tracker.Apply(scenario.EventConnectRejected)
	}
	return err, nil
}

// Disconnect issues a disconnect that must succeed.
func (t *T) Disconnect(ctx context.Context) (vpncli.Result, error) {
	t.tracker.Apply(scenario.EventDisconnectIssued)
	res, err := t.Product.Disconnect(ctx)
	t.record(res)
	if err != nil {
		t.tracker.Apply(scenario.EventCommandFailed)
		return res, err
	}
	t.tracker.Apply(scenario.EventDisconnectOK)
	return res, nil
}

// Check fails the attempt with an assertion failure unless ok holds.
func (t *T) Check(ok bool, check, evidence string) error {
	if ok {
		return nil
	}
	return t.fail(check, evidence)
}

// Connected asserts that the tunnel is up and the internet reachable.
func (t *T) Connected(ctx context.Context) error {
	c := t.Prober.Connectivity(ctx)
	return t.Check(c.State == probe.ConnConnected, "network is connected through the tunnel", c.String())
}

// Disconnected asserts that the tunnel is gone and the internet reachable.
func (t *T) Disconnected(ctx context.Context) error {
	c := t.Prober.Connectivity(ctx)
	return t.Check(c.State == probe.ConnDisconnected, "network is connected without the tunnel", c.String())
}

// Available asserts that an external host is reachable.
func (t *T) Available(ctx context.Context) error {
	return t.Check(t.Prober.Reachable(ctx), "internet is available", "")
}

// Unavailable asserts that no external host is reachable.
func (t *T) Unavailable(ctx context.Context) error {
	return t.Check(!t.Prober.Reachable(ctx), "internet is unavailable", "")
}

// Routing snapshots the managed table and keeps it as evidence.
func (t *T) Routing(ctx context.Context) (probe.RoutingSnapshot, error) {
	snap, err := t.Prober.Routing(ctx)
	if err != nil {
		return snap, fmt.Errorf("routing snapshot: %w", err)
	}
	t.routing = &snap
	return snap, nil
}

// Assert records an assertion failure from a predicate returning
// *expect.Failure.
func (t *T) Assert(err error) error {
	if err != nil && expect.IsFailure(err) {
		t.tracker.Apply(scenario.EventAssertionFailed)
	}
	return err
}

func (t *T) fail(check, evidence string) error {
	t.tracker.Apply(scenario.EventAssertionFailed)
	return expect.That(false, check, evidence)
}

func (t *T) record(res vpncli.Result) {
	if len(res.Args) == 0 {
		return
	}
	t.last = &res
}

// forceDisconnect disconnects, accepting "not connected" as success.
func (t *T) forceDisconnect(ctx context.Context) error {
	res, err := t.Product.Disconnect(ctx)
	if err != nil && strings.Contains(res.Output(), expect.MsgNotConnected) {
		return nil
	}
	return err
}
