package suite

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dantte-lp/vpnqa/internal/expect"
	"github.com/dantte-lp/vpnqa/internal/retry"
	"github.com/dantte-lp/vpnqa/internal/scenario"
)

const (
	absentServer   = "moon"
	mistypedVerb   = "kinect"
	invalidGroup   = "nonexisting_group"
	groupFlag      = "--group"
	connectCommand = "connect"
)

// ConnectCases returns the connect suite: every scenario-bound case over
// matrix, followed by the group cases. Group cases keep the configured
// technology and are paired with one target per group.
func ConnectCases(matrix []scenario.Scenario, p Policies) []Case {
	perScenario := []struct {
		name   string
		policy retry.Policy
		body   Body
	}{
		{"quick_connect", p.Flaky, quickConnect},
		{"double_quick_connect_only", p.Flaky, doubleQuickConnectOnly},
		{"connect_to_absent_server", p.Once, connectToAbsentServer},
		{"mistype_connect", p.Once, mistypeConnect},
		{"connect_to_random_server_by_name", p.Flaky, connectToRandomServerByName},
		{"connection_recovers_from_network_restart", p.Recovery, connectionRecoversFromNetworkRestart},
		{"double_quick_connect_disconnect", p.Flaky, doubleQuickConnectDisconnect},
		{"connect_without_internet_access", p.Offline, connectWithoutInternetAccess},
	}

	var cases []Case
	for _, c := range perScenario {
		for _, s := range matrix {
			cases = append(cases, Case{
				Name:     c.name,
				Suite:    SuiteConnect,
				Scenario: s,
				Policy:   c.policy,
				Body:     c.body,
			})
		}
	}

	var groups []scenario.Target
	for _, g := range scenario.Groups() {
		groups = append(groups, scenario.Group(g))
	}
	for _, s := range scenario.Targets([]scenario.Scenario{{}}, groups...) {
		cases = append(cases, Case{Name: "connect_to_group", Suite: SuiteConnect, Scenario: s, Policy: p.Flaky, Body: connectToGroup})
	}
	for _, s := range scenario.Targets([]scenario.Scenario{{}}, scenario.Group(invalidGroup)) {
		cases = append(cases, Case{Name: "connect_to_invalid_group", Suite: SuiteConnect, Scenario: s, Policy: p.Once, Body: connectToInvalidGroup})
	}
	return cases
}

// connectAndCheck connects to the scenario's target and verifies the
// tunnel.
func connectAndCheck(ctx context.Context, t *T, names []string) error {
	return connectToAndCheck(ctx, t, t.Scenario.Target(), names)
}

// connectToAndCheck connects to target and verifies the tunnel and that
// the product named every entry of names.
func connectToAndCheck(ctx context.Context, t *T, target scenario.Target, names []string) error {
	res, err := t.ConnectTarget(ctx, target)
	if err != nil {
		return err
	}
	if err := t.Check(expect.ConnectSucceeded(res.Output(), names...), "connect succeeded", res.Output()); err != nil {
		return err
	}
	return t.Connected(ctx)
}

// disconnectAndCheck disconnects and verifies the tunnel is gone.
func disconnectAndCheck(ctx context.Context, t *T) error {
	res, err := t.Disconnect(ctx)
	if err != nil {
		return err
	}
	if err := t.Check(expect.DisconnectSucceeded(res.Output()), "disconnect succeeded", res.Output()); err != nil {
		return err
	}
	if err := t.Disconnected(ctx); err != nil {
		return err
	}
	snap, err := t.Routing(ctx)
	if err != nil {
		return err
	}
	return t.Assert(expect.RoutingInactive(snap, t.Prober.Tunnel()))
}

func quickConnect(ctx context.Context, t *T) error {
	t.DeferDisconnect()
	if err := connectAndCheck(ctx, t, nil); err != nil {
		return err
	}
	return disconnectAndCheck(ctx, t)
}

func doubleQuickConnectOnly(ctx context.Context, t *T) error {
	t.DeferDisconnect()
	for range 2 {
		if err := connectAndCheck(ctx, t, nil); err != nil {
			return err
		}
	}
	snap, err := t.Routing(ctx)
	if err != nil {
		return err
	}
	if err := t.Assert(expect.RoutesUnique(snap)); err != nil {
		return err
	}
	return disconnectAndCheck(ctx, t)
}

func doubleQuickConnectDisconnect(ctx context.Context, t *T) error {
	t.DeferDisconnect()
	for range 2 {
		if err := connectAndCheck(ctx, t, nil); err != nil {
			return err
		}
		if err := disconnectAndCheck(ctx, t); err != nil {
			return err
		}
	}
	return nil
}

func connectToAbsentServer(ctx context.Context, t *T) error {
	t.DeferDisconnect()
	rejected, err := t.Reject(ctx, connectCommand, absentServer)
	if err != nil {
		return err
	}
	if err := t.Check(expect.ConnectFailed(rejected), "connect to an absent server failed", rejected.Error()); err != nil {
		return err
	}
	return t.Disconnected(ctx)
}

func mistypeConnect(ctx context.Context, t *T) error {
	rejected, err := t.Reject(ctx, mistypedVerb)
	if err != nil {
		return err
	}
	check := fmt.Sprintf("'%s' is rejected as an unknown command", mistypedVerb)
	if err := t.Check(expect.InvalidCommand(mistypedVerb, rejected), check, rejected.Error()); err != nil {
		return err
	}
	return t.Disconnected(ctx)
}

func connectToRandomServerByName(ctx context.Context, t *T) error {
	if t.Servers == nil {
		return Skip("no server catalog configured")
	}
	server, err := t.Servers.Pick(ctx, t.Scenario.Combination())
	if err != nil {
		return fmt.Errorf("pick server: %w", err)
	}
	target := scenario.Server(server.ShortName())
	t.Log().Info("server picked",
		slog.String("server", server.Name),
		slog.String("hostname", server.Hostname),
		slog.String("target", target.String()))

	t.DeferDisconnect()
	if err := connectToAndCheck(ctx, t, target, []string{server.Name, server.Hostname}); err != nil {
		return err
	}
	return disconnectAndCheck(ctx, t)
}

func connectionRecoversFromNetworkRestart(ctx context.Context, t *T) error {
	if t.Network == nil {
		return Skip("no uplink control configured")
	}

	t.DeferDisconnect()
	if err := connectAndCheck(ctx, t, nil); err != nil {
		return err
	}

	before, err := t.Prober.Interfaces(ctx)
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	err = t.Bracket(ctx, "start uplink", t.Network.Start, func(ctx context.Context) error {
		return t.Network.Stop(ctx)
	})
	if err != nil {
		return fmt.Errorf("restart uplink: %w", err)
	}

	rc, err := t.Prober.WaitForReconnect(ctx, before, t.ReconnectTimeout)
	if err != nil {
		return t.Assert(expect.That(false, "tunnel reconnected after uplink restart", err.Error()))
	}
	t.Log().Info("reconnected", slog.Bool("recreated", rc.Recreated), slog.Duration("elapsed", rc.Elapsed))

	evidence := fmt.Sprintf("%s index %d, before: %v", rc.Tunnel.Name, rc.Tunnel.Index, before)
	if err := t.Check(rc.Recreated, "tunnel interface recreated after uplink restart", evidence); err != nil {
		return err
	}

	if err := t.Connected(ctx); err != nil {
		return err
	}
	return disconnectAndCheck(ctx, t)
}

func connectWithoutInternetAccess(ctx context.Context, t *T) error {
	if t.Network == nil {
		return Skip("no uplink control configured")
	}

	t.DeferDisconnect()
	return t.Bracket(ctx, "start uplink", t.Network.Start, func(ctx context.Context) error {
		if err := t.Network.Stop(ctx); err != nil {
			return fmt.Errorf("stop uplink: %w", err)
		}
		rejected, err := t.Reject(ctx, connectCommand)
		if err != nil {
			return err
		}
		return t.Check(expect.ConnectFailed(rejected), "connect without uplink failed", rejected.Error())
	})
}

// connectToGroup connects to the group first as a plain server argument,
// then through the group flag.
func connectToGroup(ctx context.Context, t *T) error {
	group := t.Scenario.Target().Value

	t.DeferDisconnect()
	if err := connectToAndCheck(ctx, t, scenario.Server(group), nil); err != nil {
		return err
	}
	if err := connectAndCheck(ctx, t, nil); err != nil {
		return err
	}
	if err := disconnectAndCheck(ctx, t); err != nil {
		return err
	}

	rejected, err := t.Reject(ctx, connectCommand, groupFlag, group, group)
	if err != nil {
		return err
	}
	return t.Check(expect.ConnectFailed(rejected), "connect with both a group flag and a group target failed", rejected.Error())
}

func connectToInvalidGroup(ctx context.Context, t *T) error {
	t.DeferDisconnect()
	rejected, err := t.Reject(ctx, connectCommand, groupFlag, t.Scenario.Target().Value)
	if err != nil {
		return err
	}
	return t.Check(expect.GroupNotFound(rejected), "connect to an invalid group reports it missing", rejected.Error())
}
