// Package scenario generates the connection scenarios a suite exercises
// and tracks the connection state of a running scenario.
package scenario

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// Technology is a VPN technology selectable in the product.
type Technology string

// Supported technologies.
const (
	OpenVPN  Technology = "openvpn"
	NordLynx Technology = "nordlynx"
)

// Protocol is an OpenVPN transport protocol. NordLynx has none.
type Protocol string

// Supported protocols.
const (
	UDP        Protocol = "udp"
	TCP        Protocol = "tcp"
	NoProtocol Protocol = ""
)

// ErrUnsupported indicates a combination the product does not support.
var ErrUnsupported = errors.New("unsupported combination")

// Combination is one row of the supported-combination table.
type Combination struct {
	Technology Technology
	Protocol   Protocol
	Obfuscated bool
}

// DefaultCombinations is the supported table in matrix order.
var DefaultCombinations = []Combination{
	{Technology: OpenVPN, Protocol: UDP, Obfuscated: false},
	{Technology: OpenVPN, Protocol: UDP, Obfuscated: true},
	{Technology: OpenVPN, Protocol: TCP, Obfuscated: false},
	{Technology: OpenVPN, Protocol: TCP, Obfuscated: true},
	{Technology: NordLynx, Protocol: NoProtocol, Obfuscated: false},
}

// Validate rejects combinations the product cannot select.
func Validate(c Combination) error {
	switch c.Technology {
	case OpenVPN:
		if c.Protocol != UDP && c.Protocol != TCP {
			return fmt.Errorf("%w: openvpn requires udp or tcp, got %q", ErrUnsupported, c.Protocol)
		}
	case NordLynx:
		if c.Protocol != NoProtocol {
			return fmt.Errorf("%w: nordlynx has no protocol selector, got %q", ErrUnsupported, c.Protocol)
		}
		if c.Obfuscated {
			return fmt.Errorf("%w: obfuscation requires openvpn", ErrUnsupported)
		}
	default:
		return fmt.Errorf("%w: technology %q", ErrUnsupported, c.Technology)
	}
	return nil
}

// -------------------------------------------------------------------------
// Target
// -------------------------------------------------------------------------

// TargetKind is what a connect command is pointed at.
type TargetKind int

// Target kinds.
const (
	TargetNone TargetKind = iota
	TargetServer
	TargetGroup
)

func (k TargetKind) String() string {
	switch k {
	case TargetNone:
		return "none"
	case TargetServer:
		return "server"
	case TargetGroup:
		return "group"
	default:
		return fmt.Sprintf("TargetKind(%d)", int(k))
	}
}

// Target is an optional connect destination.
type Target struct {
	Kind  TargetKind
	Value string
}

// Server returns a target naming a server or hostname.
func Server(name string) Target { return Target{Kind: TargetServer, Value: name} }

// Group returns a target naming a server group.
func Group(name string) Target { return Target{Kind: TargetGroup, Value: name} }

func (t Target) String() string {
	if t.Kind == TargetNone {
		return "none"
	}
	return t.Kind.String() + ":" + t.Value
}

// -------------------------------------------------------------------------
// Scenario
// -------------------------------------------------------------------------

// Scenario is an immutable connection setup.
type Scenario struct {
	technology Technology
	protocol   Protocol
	obfuscated bool
	target     Target
}

// New builds a Scenario from a validated combination.
func New(c Combination) (Scenario, error) {
	if err := Validate(c); err != nil {
		return Scenario{}, err
	}
	return Scenario{technology: c.Technology, protocol: c.Protocol, obfuscated: c.Obfuscated}, nil
}

// Technology returns the VPN technology.
func (s Scenario) Technology() Technology { return s.technology }

// Protocol returns the transport protocol; empty for NordLynx.
func (s Scenario) Protocol() Protocol { return s.protocol }

// Obfuscated reports whether obfuscation is enabled.
func (s Scenario) Obfuscated() bool { return s.obfuscated }

// Target returns the connect destination.
func (s Scenario) Target() Target { return s.target }

// Combination returns the scenario's table row.
func (s Scenario) Combination() Combination {
	return Combination{Technology: s.technology, Protocol: s.protocol, Obfuscated: s.obfuscated}
}

// IsZero reports whether s carries neither product settings nor a target.
func (s Scenario) IsZero() bool { return !s.Configured() && s.target.Kind == TargetNone }

// Configured reports whether s was built from a combination and so selects
// product settings. A target-only scenario keeps whatever is configured.
func (s Scenario) Configured() bool { return s.technology != "" }

// WithTarget returns a copy of s pointed at t.
func (s Scenario) WithTarget(t Target) Scenario {
	s.target = t
	return s
}

// String returns a stable name suffix such as "openvpn-udp-obfuscated".
func (s Scenario) String() string {
	if s.IsZero() {
		return "default"
	}
	parts := []string{"default"}
	if s.Configured() {
		parts[0] = string(s.technology)
	}
	if s.protocol != NoProtocol {
		parts = append(parts, string(s.protocol))
	}
	if s.obfuscated {
		parts = append(parts, "obfuscated")
	}
	if s.target.Kind != TargetNone {
		parts = append(parts, s.target.Kind.String(), s.target.Value)
	}
	return strings.Join(parts, "-")
}

// -------------------------------------------------------------------------
// Matrix
// -------------------------------------------------------------------------

// Matrix returns one Scenario per valid row of table, in table order.
// Invalid rows are skipped.
func Matrix(table []Combination) []Scenario {
	out := make([]Scenario, 0, len(table))
	for _, c := range table {
		s, err := New(c)
		if err != nil {
			continue
		}
		out = append(out, s)
	}
	return out
}

// Targets pairs every scenario with every target, scenario-major.
// With no targets the scenarios are returned unchanged.
func Targets(scenarios []Scenario, targets ...Target) []Scenario {
	if len(targets) == 0 {
		return slices.Clone(scenarios)
	}
	out := make([]Scenario, 0, len(scenarios)*len(targets))
	for _, s := range scenarios {
		for _, t := range targets {
			out = append(out, s.WithTarget(t))
		}
	}
	return out
}

// Filter keeps scenarios whose technology is in techs. An empty techs
// keeps everything.
func Filter(scenarios []Scenario, techs ...Technology) []Scenario {
	if len(techs) == 0 {
		return slices.Clone(scenarios)
	}
	out := make([]Scenario, 0, len(scenarios))
	for _, s := range scenarios {
		if slices.Contains(techs, s.technology) {
			out = append(out, s)
		}
	}
	return out
}

// ParseTechnology maps a configuration string to a Technology.
func ParseTechnology(s string) (Technology, error) {
	switch Technology(strings.ToLower(s)) {
	case OpenVPN:
		return OpenVPN, nil
	case NordLynx:
		return NordLynx, nil
	default:
		return "", fmt.Errorf("%w: technology %q", ErrUnsupported, s)
	}
}

// groups is the fixed set of group names accepted by "connect --group".
var groups = []string{
	"Africa_The_Middle_East_And_India",
	"Asia_Pacific",
	"Europe",
	"The_Americas",
	"P2P",
	"Standard_VPN_Servers",
}

// Groups returns a copy of the valid group names.
func Groups() []string { return slices.Clone(groups) }
