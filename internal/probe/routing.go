package probe

import (
	"fmt"
	"net/netip"
	"strings"
)

// Route is one routing-table entry.
type Route struct {
	// Dst is the destination as printed by iproute2: "default", an
	// address, or a prefix.
	Dst string

	// Dev is the output interface name, empty for unreachable or
	// blackhole entries.
	Dev string
}

// Prefix parses Dst. "default" maps to 0.0.0.0/0 and a bare address to a
// host prefix.
func (r Route) Prefix() (netip.Prefix, bool) {
	if r.Dst == "default" {
		return netip.PrefixFrom(netip.IPv4Unspecified(), 0), true
	}
	if p, err := netip.ParsePrefix(r.Dst); err == nil {
		return p.Masked(), true
	}
	if a, err := netip.ParseAddr(r.Dst); err == nil {
		return netip.PrefixFrom(a, a.BitLen()), true
	}
	return netip.Prefix{}, false
}

// RoutingSnapshot is the kernel policy-routing state at one instant.
// It is never cached: every check takes a fresh one.
type RoutingSnapshot struct {
	// Table is the inspected policy-routing table.
	Table int

	// FwmarkRule reports a rule selecting Table by firewall mark.
	FwmarkRule bool

	// Rules are the rules that look up Table.
	Rules []string

	// TableRoutes are the routes in Table.
	TableRoutes []Route

	// MainRoutes are the routes in the main table.
	MainRoutes []Route
}

// HasSubnet reports whether Table routes p.
func (s RoutingSnapshot) HasSubnet(p netip.Prefix) bool {
	return hasPrefix(s.TableRoutes, p)
}

// MainHasSubnet reports whether the main table routes p.
func (s RoutingSnapshot) MainHasSubnet(p netip.Prefix) bool {
	return hasPrefix(s.MainRoutes, p)
}

// HasTunnelRoute reports whether any Table route leaves through dev.
func (s RoutingSnapshot) HasTunnelRoute(dev string) bool {
	for _, r := range s.TableRoutes {
		if r.Dev == dev {
			return true
		}
	}
	return false
}

// String renders the snapshot in iproute2 style for failure evidence.
func (s RoutingSnapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ip rule (table %d, fwmark=%t):\n", s.Table, s.FwmarkRule)
	for _, r := range s.Rules {
		fmt.Fprintf(&b, "  %s\n", r)
	}
	fmt.Fprintf(&b, "ip route show table %d:\n", s.Table)
	writeRoutes(&b, s.TableRoutes)
	b.WriteString("ip route:\n")
	writeRoutes(&b, s.MainRoutes)
	return b.String()
}

func writeRoutes(b *strings.Builder, routes []Route) {
	for _, r := range routes {
		if r.Dev == "" {
			fmt.Fprintf(b, "  %s\n", r.Dst)
			continue
		}
		fmt.Fprintf(b, "  %s dev %s\n", r.Dst, r.Dev)
	}
}

func hasPrefix(routes []Route, p netip.Prefix) bool {
	p = p.Masked()
	for _, r := range routes {
		if rp, ok := r.Prefix(); ok && rp == p {
			return true
		}
	}
	return false
}
