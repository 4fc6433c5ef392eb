package suite

import (
	"context"
	"fmt"
	"net/netip"

	"github.com/dantte-lp/vpnqa/internal/expect"
	"github.com/dantte-lp/vpnqa/internal/scenario"
)

// whitelisted are the subnets the routing cases exempt from the tunnel.
var whitelisted = []netip.Prefix{
	netip.MustParsePrefix("1.1.1.1/32"),
	netip.MustParsePrefix("2.2.2.2/32"),
	netip.MustParsePrefix("3.3.3.3/32"),
}

// RoutingCases returns the routing suite. Policy routing is only
// inspected over NordLynx, so every case selects it.
func RoutingCases(p Policies) []Case {
	nordlynx, _ := scenario.New(scenario.Combination{Technology: scenario.NordLynx})

	mk := func(name string, body Body) Case {
		return Case{
			Name:     name,
			Suite:    SuiteRouting,
			Scenario: nordlynx,
			Policy:   p.Flaky,
			Body:     body,
			Teardown: restoreRouting,
		}
	}
	return []Case{
		mk("routing_on", routingOn),
		mk("routing_off", routingOff),
		mk("toggle_routing_in_the_middle_of_the_connection", toggleRouting),
	}
}

// restoreRouting turns policy routing back on after every routing case.
func restoreRouting(ctx context.Context, t *T) error {
	_, err := t.Product.SetRouting(ctx, true)
	return err
}

// whitelist adds subnets after registering their removal.
func whitelist(ctx context.Context, t *T, subnets ...netip.Prefix) error {
	t.Defer("whitelist remove all", func(ctx context.Context) error {
		_, err := t.Product.WhitelistRemoveAll(ctx)
		return err
	})
	for _, s := range subnets {
		res, err := t.Product.WhitelistAddSubnet(ctx, s)
		t.record(res)
		if err != nil {
			return fmt.Errorf("whitelist %s: %w", s, err)
		}
	}
	return nil
}

// setRouting switches policy routing and keeps the command as evidence.
func setRouting(ctx context.Context, t *T, on bool) error {
	res, err := t.Product.SetRouting(ctx, on)
	t.record(res)
	if err != nil {
		return fmt.Errorf("set routing: %w", err)
	}
	return nil
}

// routingActive snapshots the table and asserts the tunnel owns it.
func routingActive(ctx context.Context, t *T, subnets ...netip.Prefix) error {
	snap, err := t.Routing(ctx)
	if err != nil {
		return err
	}
	return t.Assert(expect.RoutingActive(snap, t.Prober.Tunnel(), subnets...))
}

// routingInactive snapshots the table and asserts the tunnel left it.
func routingInactive(ctx context.Context, t *T, subnets ...netip.Prefix) error {
	snap, err := t.Routing(ctx)
	if err != nil {
		return err
	}
	return t.Assert(expect.RoutingInactive(snap, t.Prober.Tunnel(), subnets...))
}

func routingOn(ctx context.Context, t *T) error {
	if err := whitelist(ctx, t, whitelisted...); err != nil {
		return err
	}
	t.DeferDisconnect()
	if err := connectAndCheck(ctx, t, nil); err != nil {
		return err
	}
	if err := routingActive(ctx, t, whitelisted...); err != nil {
		return err
	}

	res, err := t.Product.WhitelistRemoveAll(ctx)
	t.record(res)
	if err != nil {
		return fmt.Errorf("whitelist remove all: %w", err)
	}
	if err := disconnectAndCheck(ctx, t); err != nil {
		return err
	}
	return routingInactive(ctx, t, whitelisted...)
}

func routingOff(ctx context.Context, t *T) error {
	subnet := whitelisted[0]
	if err := whitelist(ctx, t, subnet); err != nil {
		return err
	}
	t.Defer("set routing on", func(ctx context.Context) error {
		return restoreRouting(ctx, t)
	})
	if err := setRouting(ctx, t, false); err != nil {
		return err
	}

	t.DeferDisconnect()
	res, err := t.Connect(ctx)
	if err != nil {
		return err
	}
	if err := t.Check(expect.ConnectSucceeded(res.Output()), "connect succeeded", res.Output()); err != nil {
		return err
	}
	return routingInactive(ctx, t, subnet)
}

func toggleRouting(ctx context.Context, t *T) error {
	t.DeferDisconnect()
	if err := connectAndCheck(ctx, t, nil); err != nil {
		return err
	}
	if err := routingActive(ctx, t); err != nil {
		return err
	}
	if err := t.Available(ctx); err != nil {
		return err
	}

	err := t.Bracket(ctx, "set routing on", func(ctx context.Context) error {
		return restoreRouting(ctx, t)
	}, func(ctx context.Context) error {
		if err := setRouting(ctx, t, false); err != nil {
			return err
		}
		if err := routingInactive(ctx, t); err != nil {
			return err
		}
		return t.Unavailable(ctx)
	})
	if err != nil {
		return err
	}

	if err := routingActive(ctx, t); err != nil {
		return err
	}
	if err := t.Available(ctx); err != nil {
		return err
	}
	return disconnectAndCheck(ctx, t)
}
