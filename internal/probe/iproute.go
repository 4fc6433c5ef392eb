package probe

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// IPRouting reads routing state by parsing iproute2 output.
type IPRouting struct {
	ip *vpncli.Runner
}

// NewIPRouting returns a RoutingSource running the "ip" binary through r.
func NewIPRouting(r *vpncli.Runner) *IPRouting {
	return &IPRouting{ip: r}
}

// Routing implements RoutingSource.
func (s *IPRouting) Routing(ctx context.Context, table int) (RoutingSnapshot, error) {
	t := strconv.Itoa(table)

	rules, err := s.ip.Run(ctx, "rule", "show", "table", t)
	if err != nil {
		return RoutingSnapshot{}, fmt.Errorf("list rules: %w", err)
	}

	tableRoutes, err := s.ip.Run(ctx, "route", "show", "table", t)
	if err != nil {
		return RoutingSnapshot{}, fmt.Errorf("list table %d routes: %w", table, err)
	}

	mainRoutes, err := s.ip.Run(ctx, "route")
	if err != nil {
		return RoutingSnapshot{}, fmt.Errorf("list main routes: %w", err)
	}

	ruleLines := ParseRules(rules.Stdout)

	return RoutingSnapshot{
		Table:       table,
		FwmarkRule:  HasFwmark(ruleLines),
		Rules:       ruleLines,
		TableRoutes: ParseRoutes(tableRoutes.Stdout),
		MainRoutes:  ParseRoutes(mainRoutes.Stdout),
	}, nil
}

// ParseRules splits "ip rule" output into rule lines without priorities.
//
//	32765:	not from all fwmark 0xe1f1 lookup 205
func ParseRules(out string) []string {
	var rules []string
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, rest, ok := strings.Cut(line, ":"); ok {
			line = strings.TrimSpace(rest)
		}
		rules = append(rules, line)
	}
	return rules
}

// HasFwmark reports whether any rule matches on a firewall mark.
func HasFwmark(rules []string) bool {
	for _, r := range rules {
		for _, f := range strings.Fields(r) {
			if f == "fwmark" {
				return true
			}
		}
	}
	return false
}

// ParseRoutes parses "ip route" output.
//
//	default dev nordlynx scope link
//	1.1.1.1 via 192.168.1.1 dev eth0
//	unreachable 10.0.0.0/8
func ParseRoutes(out string) []Route {
	var routes []Route
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) == 0 {
			continue
		}

		dst := fields[0]
		rest := fields[1:]
		switch dst {
		case "unreachable", "blackhole", "prohibit", "throw", "local", "broadcast", "unicast":
			if len(rest) == 0 {
				continue
			}
			dst, rest = rest[0], rest[1:]
		}

		r := Route{Dst: dst}
		for i := 0; i+1 < len(rest); i++ {
			if rest[i] == "dev" {
				r.Dev = rest[i+1]
				break
			}
		}
		routes = append(routes, r)
	}
	return routes
}
