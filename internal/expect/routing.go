package expect

import (
	"fmt"
	"net/netip"
	"strings"

	"github.com/dantte-lp/vpnqa/internal/probe"
)

// RoutingActive checks that policy routing is in place: a fwmark rule
// selects the table, the table routes through tunnel, and every subnet
// has a table route.
func RoutingActive(snap probe.RoutingSnapshot, tunnel string, subnets ...netip.Prefix) error {
	var missing []string
	if !snap.FwmarkRule {
		missing = append(missing, "fwmark rule")
	}
	if !snap.HasTunnelRoute(tunnel) {
		missing = append(missing, tunnel+" route")
	}
	for _, s := range subnets {
		if !snap.HasSubnet(s) {
			missing = append(missing, s.String())
		}
	}
	return That(len(missing) == 0,
		fmt.Sprintf("routing active in table %d, missing: %s", snap.Table, strings.Join(missing, ", ")),
		snap.String())
}

// RoutingInactive checks that policy routing is gone: no fwmark rule, an
// empty table, and no main-table route for any subnet.
func RoutingInactive(snap probe.RoutingSnapshot, tunnel string, subnets ...netip.Prefix) error {
	var present []string
	if snap.FwmarkRule {
		present = append(present, "fwmark rule")
	}
	for _, r := range snap.TableRoutes {
		if r.Dev == tunnel {
			present = append(present, tunnel+" route")
			continue
		}
		present = append(present, "table route "+r.Dst+" dev "+r.Dev)
	}
	for _, s := range subnets {
		if snap.MainHasSubnet(s) {
			present = append(present, s.String())
		}
	}
	return That(len(present) == 0,
		fmt.Sprintf("routing inactive in table %d, still present: %s", snap.Table, strings.Join(present, ", ")),
		snap.String())
}

// RoutesUnique checks that neither a rule nor a route appears twice for
// the table, which a repeated connect must not cause.
func RoutesUnique(snap probe.RoutingSnapshot) error {
	var dups []string

	rules := make(map[string]bool, len(snap.Rules))
	for _, r := range snap.Rules {
		if rules[r] {
			dups = append(dups, "rule "+r)
		}
		rules[r] = true
	}

	routes := make(map[probe.Route]bool, len(snap.TableRoutes))
	for _, r := range snap.TableRoutes {
		if routes[r] {
			dups = append(dups, r.Dst+" dev "+r.Dev)
		}
		routes[r] = true
	}

	return That(len(dups) == 0,
		fmt.Sprintf("no duplicate rules or routes in table %d, duplicated: %s", snap.Table, strings.Join(dups, ", ")),
		snap.String())
}
