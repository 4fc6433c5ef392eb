package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"slices"

	"github.com/vishvananda/netlink"
	"golang.org/x/sys/unix"
)

// ErrNoUplink indicates no default-route interface could be found.
var ErrNoUplink = errors.New("no default-route interface")

// ---- Interfaces ----

// NetlinkLinks enumerates interfaces over rtnetlink.
type NetlinkLinks struct{}

// Interfaces implements LinkLister.
func (NetlinkLinks) Interfaces(context.Context) ([]Interface, error) {
	links, err := netlink.LinkList()
	if err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	out := make([]Interface, 0, len(links))
	for _, l := range links {
		a := l.Attrs()
		out = append(out, Interface{
			Index: a.Index,
			Name:  a.Name,
			Type:  l.Type(),
			Up:    a.Flags&net.FlagUp != 0,
		})
	}
	slices.SortFunc(out, func(a, b Interface) int { return a.Index - b.Index })
	return out, nil
}

// ---- Routing ----

// NetlinkRouting reads routing state from rtnetlink dumps.
type NetlinkRouting struct{}

// Routing implements RoutingSource.
func (NetlinkRouting) Routing(_ context.Context, table int) (RoutingSnapshot, error) {
	rules, err := netlink.RuleList(netlink.FAMILY_V4)
	if err != nil {
		return RoutingSnapshot{}, fmt.Errorf("list rules: %w", err)
	}

	snap := RoutingSnapshot{Table: table}
	for _, r := range rules {
		if r.Table != table {
			continue
		}
		snap.Rules = append(snap.Rules, r.String())
		if r.Mark != 0 {
			snap.FwmarkRule = true
		}
	}

	if snap.TableRoutes, err = listRoutes(table); err != nil {
		return RoutingSnapshot{}, err
	}
	if snap.MainRoutes, err = listRoutes(unix.RT_TABLE_MAIN); err != nil {
		return RoutingSnapshot{}, err
	}

	return snap, nil
}

func listRoutes(table int) ([]Route, error) {
	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4, &netlink.Route{Table: table}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return nil, fmt.Errorf("list table %d routes: %w", table, err)
	}

	names := make(map[int]string)
	out := make([]Route, 0, len(routes))
	for _, r := range routes {
		out = append(out, Route{Dst: routeDst(r), Dev: linkName(names, r.LinkIndex)})
	}
	return out, nil
}

// routeDst renders a destination the way iproute2 prints it.
func routeDst(r netlink.Route) string {
	if r.Dst == nil {
		return "default"
	}
	ones, bits := r.Dst.Mask.Size()
	if ones == bits {
		return r.Dst.IP.String()
	}
	return r.Dst.String()
}

func linkName(cache map[int]string, index int) string {
	if index == 0 {
		return ""
	}
	if name, ok := cache[index]; ok {
		return name
	}
	l, err := netlink.LinkByIndex(index)
	if err != nil {
		return ""
	}
	cache[index] = l.Attrs().Name
	return cache[index]
}

// ---- Uplink ----

// Uplink takes the host's uplink interface down and back up to simulate a
// network restart. Main-table routes through the uplink are restored after
// it comes back, since the kernel drops them on link down.
type Uplink struct {
	name   string
	logger *slog.Logger
	saved  []netlink.Route
}

// NewUplink returns an Uplink for the named interface, or for the
// interface of the main-table default route when name is empty.
func NewUplink(name string, logger *slog.Logger) *Uplink {
	if logger == nil {
		logger = slog.Default()
	}
	return &Uplink{name: name, logger: logger.With(slog.String("component", "probe.uplink"))}
}

func (u *Uplink) link() (netlink.Link, error) {
	if u.name != "" {
		l, err := netlink.LinkByName(u.name)
		if err != nil {
			return nil, fmt.Errorf("uplink %s: %w", u.name, err)
		}
		return l, nil
	}

	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4,
		&netlink.Route{Table: unix.RT_TABLE_MAIN}, netlink.RT_FILTER_TABLE)
	if err != nil {
		return nil, fmt.Errorf("list main routes: %w", err)
	}
	for _, r := range routes {
		if r.Dst == nil && r.LinkIndex > 0 {
			l, err := netlink.LinkByIndex(r.LinkIndex)
			if err != nil {
				return nil, fmt.Errorf("uplink index %d: %w", r.LinkIndex, err)
			}
			u.name = l.Attrs().Name
			return l, nil
		}
	}
	return nil, ErrNoUplink
}

// Stop records the uplink's main-table routes and sets the link down.
func (u *Uplink) Stop(context.Context) error {
	l, err := u.link()
	if err != nil {
		return err
	}

	routes, err := netlink.RouteListFiltered(netlink.FAMILY_V4,
		&netlink.Route{Table: unix.RT_TABLE_MAIN, LinkIndex: l.Attrs().Index},
		netlink.RT_FILTER_TABLE|netlink.RT_FILTER_OIF)
	if err != nil {
		return fmt.Errorf("list uplink routes: %w", err)
	}
	u.saved = routes

	if err := netlink.LinkSetDown(l); err != nil {
		return fmt.Errorf("set %s down: %w", u.name, err)
	}

	u.logger.Info("uplink down", slog.String("interface", u.name), slog.Int("saved_routes", len(routes)))
	return nil
}

// Start sets the uplink up and restores the routes recorded by Stop.
func (u *Uplink) Start(context.Context) error {
	l, err := u.link()
	if err != nil {
		return err
	}

	if err := netlink.LinkSetUp(l); err != nil {
		return fmt.Errorf("set %s up: %w", u.name, err)
	}

	// Link-scope routes must exist before routes via a gateway.
	slices.SortStableFunc(u.saved, func(a, b netlink.Route) int {
		return boolInt(a.Gw != nil) - boolInt(b.Gw != nil)
	})

	var errs []error
	for _, r := range u.saved {
		r.LinkIndex = l.Attrs().Index
		if err := netlink.RouteReplace(&r); err != nil && !errors.Is(err, unix.EEXIST) {
			errs = append(errs, fmt.Errorf("restore route %s: %w", routeDst(r), err))
		}
	}
	u.saved = nil

	u.logger.Info("uplink up", slog.String("interface", u.name))
	return errors.Join(errs...)
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
