// Package probe reads kernel and network state: external reachability,
// the interface table and the policy-routing layout.
//
// Probes are pure reads and never retry. A caller that expects state to
// settle (after a network restart, for example) opts into an explicit
// bounded wait with WaitFor or WaitForReconnect.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"
)

// ErrReconnectTimeout indicates the tunnel did not come back in time.
var ErrReconnectTimeout = errors.New("reconnect wait timed out")

// ErrWaitTimeout indicates an explicit wait condition never held.
var ErrWaitTimeout = errors.New("wait timed out")

// Interface is one entry of the interface table.
type Interface struct {
	Index int
	Name  string

	// Type is the rtnetlink kind, e.g. "wireguard", "tuntap", "device".
	Type string
	Up   bool
}

// LinkLister enumerates interfaces.
type LinkLister interface {
	Interfaces(ctx context.Context) ([]Interface, error)
}

// RoutingSource takes routing snapshots.
type RoutingSource interface {
	Routing(ctx context.Context, table int) (RoutingSnapshot, error)
}

// Reacher checks whether one external target answers.
type Reacher interface {
	Reach(ctx context.Context, host string) error
}

// ---- Connectivity ----

// ConnState is the derived connection state.
type ConnState int

// Connection states.
const (
	ConnUnknown ConnState = iota
	ConnConnected
	ConnDisconnected
)

func (s ConnState) String() string {
	switch s {
	case ConnConnected:
		return "connected"
	case ConnDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Connectivity is a freshly computed connection state with the evidence
// it was derived from.
type Connectivity struct {
	State ConnState

	// Tunnel is the tunnel interface found, if any.
	Tunnel *Interface

	// Reachable reports whether an external host answered.
	Reachable bool

	// Err is set when the interface table could not be read.
	Err error
}

func (c Connectivity) String() string {
	tunnel := "none"
	if c.Tunnel != nil {
		tunnel = fmt.Sprintf("%s#%d", c.Tunnel.Name, c.Tunnel.Index)
	}
	s := fmt.Sprintf("state=%s tunnel=%s reachable=%t", c.State, tunnel, c.Reachable)
	if c.Err != nil {
		s += " error=" + c.Err.Error()
	}
	return s
}

// ---- Prober ----

// Config configures a Prober.
type Config struct {
	// Table is the policy-routing table the product manages.
	Table int

	// Tunnel is the product's tunnel interface name.
	Tunnel string

	// TunnelPrefixes name the devices of technologies that number their
	// own tunnels (e.g., "nordtun" for OpenVPN). Links matching neither
	// Tunnel nor a prefix are never taken for the product tunnel.
	TunnelPrefixes []string

	// Hosts are the external reachability targets.
	Hosts []string

	// PollInterval paces explicit waits.
	PollInterval time.Duration
}

// Prober bundles the state probes a case uses.
type Prober struct {
	cfg     Config
	links   LinkLister
	routing RoutingSource
	reach   Reacher
	logger  *slog.Logger
}

// New creates a Prober from its three sources.
func New(cfg Config, links LinkLister, routing RoutingSource, reach Reacher, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &Prober{
		cfg:     cfg,
		links:   links,
		routing: routing,
		reach:   reach,
		logger:  logger.With(slog.String("component", "probe")),
	}
}

// Table returns the inspected policy-routing table.
func (p *Prober) Table() int { return p.cfg.Table }

// Tunnel returns the tunnel interface name.
func (p *Prober) Tunnel() string { return p.cfg.Tunnel }

// Reachable reports whether any configured host answers. It makes one
// attempt per host.
func (p *Prober) Reachable(ctx context.Context) bool {
	for _, h := range p.cfg.Hosts {
		err := p.reach.Reach(ctx, h)
		if err == nil {
			return true
		}
		p.logger.Debug("host unreachable", slog.String("host", h), slog.String("error", err.Error()))
	}
	return false
}

// Interfaces returns the current interface table.
func (p *Prober) Interfaces(ctx context.Context) ([]Interface, error) {
	return p.links.Interfaces(ctx)
}

// Routing returns a fresh snapshot of the product's routing table.
func (p *Prober) Routing(ctx context.Context) (RoutingSnapshot, error) {
	return p.routing.Routing(ctx, p.cfg.Table)
}

// Connectivity derives the connection state from tunnel presence and
// external reachability. Without reachability the state is unknown.
func (p *Prober) Connectivity(ctx context.Context) Connectivity {
	var c Connectivity

	links, err := p.links.Interfaces(ctx)
	if err != nil {
		c.Err = err
		return c
	}
	c.Tunnel = p.findTunnel(links)
	c.Reachable = p.Reachable(ctx)

	switch {
	case !c.Reachable:
		c.State = ConnUnknown
	case c.Tunnel != nil:
		c.State = ConnConnected
	default:
		c.State = ConnDisconnected
	}
	return c
}

// findTunnel returns the product tunnel: the configured name, or a link
// whose name carries one of the configured prefixes.
func (p *Prober) findTunnel(links []Interface) *Interface {
	for i := range links {
		if links[i].Name == p.cfg.Tunnel {
			return &links[i]
		}
	}
	for i := range links {
		for _, prefix := range p.cfg.TunnelPrefixes {
			if prefix != "" && strings.HasPrefix(links[i].Name, prefix) {
				return &links[i]
			}
		}
	}
	return nil
}

// ---- Waits ----

// WaitFor polls cond every interval until it holds, timeout elapses, or
// ctx is done.
func WaitFor(ctx context.Context, timeout, interval time.Duration, cond func(context.Context) bool) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if cond(ctx) {
			return nil
		}
		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w after %v", ErrWaitTimeout, timeout)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Reconnect describes how the tunnel came back.
type Reconnect struct {
	Tunnel Interface

	// Recreated is true when the tunnel index was absent from the table
	// taken before the restart.
	Recreated bool

	Elapsed time.Duration
}

// WaitForReconnect blocks until the tunnel interface is present and an
// external host is reachable again, then reports whether the tunnel was
// recreated relative to before.
func (p *Prober) WaitForReconnect(ctx context.Context, before []Interface, timeout time.Duration) (Reconnect, error) {
	start := time.Now()
	var last Connectivity

	err := WaitFor(ctx, timeout, p.cfg.PollInterval, func(ctx context.Context) bool {
		last = p.Connectivity(ctx)
		return last.State == ConnConnected
	})
	if errors.Is(err, ErrWaitTimeout) {
		return Reconnect{}, fmt.Errorf("%w after %v: %s", ErrReconnectTimeout, timeout, last)
	}
	if err != nil {
		return Reconnect{}, err
	}

	rc := Reconnect{Tunnel: *last.Tunnel, Elapsed: time.Since(start)}
	rc.Recreated = !slices.ContainsFunc(before, func(i Interface) bool {
		return i.Index == rc.Tunnel.Index && i.Name == rc.Tunnel.Name
	})

	p.logger.Info("tunnel reconnected",
		slog.String("tunnel", rc.Tunnel.Name),
		slog.Int("index", rc.Tunnel.Index),
		slog.Bool("recreated", rc.Recreated),
		slog.Duration("elapsed", rc.Elapsed),
	)
	return rc, nil
}
