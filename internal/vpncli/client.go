package vpncli

import (
	"context"
	"fmt"
	"net/netip"
	"strings"

	"github.com/dantte-lp/vpnqa/internal/scenario"
)

// alreadySet is printed, with a failing exit status, when a setting
// already holds the requested value.
const alreadySet = "already set"

// Client exposes the product subcommands a suite drives.
type Client struct {
	r *Runner
}

// NewClient wraps a Runner configured for the product binary.
func NewClient(r *Runner) *Client { return &Client{r: r} }

// Runner returns the underlying Runner.
func (c *Client) Runner() *Runner { return c.r }

// ---- Connection ----

// Connect runs "connect" with an optional server, country or group target.
func (c *Client) Connect(ctx context.Context, target ...string) (Result, error) {
	return c.r.Run(ctx, append([]string{"connect"}, target...)...)
}

// ConnectGroup runs "connect --group" followed by groups. Passing more
// than one value is how the rejection of extra arguments is exercised.
func (c *Client) ConnectGroup(ctx context.Context, groups ...string) (Result, error) {
	return c.r.Run(ctx, append([]string{"connect", "--group"}, groups...)...)
}

// ConnectTarget connects to a scenario target.
func (c *Client) ConnectTarget(ctx context.Context, t scenario.Target) (Result, error) {
	switch t.Kind {
	case scenario.TargetServer:
		return c.Connect(ctx, t.Value)
	case scenario.TargetGroup:
		return c.ConnectGroup(ctx, t.Value)
	default:
		return c.Connect(ctx)
	}
}

// Disconnect runs "disconnect".
func (c *Client) Disconnect(ctx context.Context) (Result, error) {
	return c.r.Run(ctx, "disconnect")
}

// ---- Account ----

// Login runs "login --token".
func (c *Client) Login(ctx context.Context, token string) (Result, error) {
	return c.r.Run(ctx, "login", "--token", token)
}

// Logout runs "logout", keeping the stored token when persist is set.
func (c *Client) Logout(ctx context.Context, persist bool) (Result, error) {
	if persist {
		return c.r.Run(ctx, "logout", "--persist-token")
	}
	return c.r.Run(ctx, "logout")
}

// ---- Whitelist ----

// WhitelistAddSubnet runs "whitelist add subnet <prefix>".
func (c *Client) WhitelistAddSubnet(ctx context.Context, p netip.Prefix) (Result, error) {
	return c.r.Run(ctx, "whitelist", "add", "subnet", p.String())
}

// WhitelistRemoveAll runs "whitelist remove all".
func (c *Client) WhitelistRemoveAll(ctx context.Context) (Result, error) {
	return c.r.Run(ctx, "whitelist", "remove", "all")
}

// ---- Settings ----

// SetRouting runs "set routing on|off".
func (c *Client) SetRouting(ctx context.Context, on bool) (Result, error) {
	return c.set(ctx, "routing", onOff(on))
}

// SetTechnology runs "set technology".
func (c *Client) SetTechnology(ctx context.Context, t scenario.Technology) (Result, error) {
	return c.set(ctx, "technology", string(t))
}

// SetProtocol runs "set protocol".
func (c *Client) SetProtocol(ctx context.Context, p scenario.Protocol) (Result, error) {
	return c.set(ctx, "protocol", string(p))
}

// SetObfuscate runs "set obfuscate on|off".
func (c *Client) SetObfuscate(ctx context.Context, on bool) (Result, error) {
	return c.set(ctx, "obfuscate", onOff(on))
}

// set runs "set <key> <value>" and accepts the "already set" rejection.
func (c *Client) set(ctx context.Context, key, value string) (Result, error) {
	res, err := c.r.Run(ctx, "set", key, value)
	if ce, ok := AsCommandError(err); ok && !ce.Killed() &&
		strings.Contains(strings.ToLower(res.Output()), alreadySet) {
		return res, nil
	}
	return res, err
}

// Apply selects the scenario's technology, then its protocol, then its
// obfuscation mode. Steps that do not apply to the technology are skipped.
func (c *Client) Apply(ctx context.Context, s scenario.Scenario) error {
	if !s.Configured() {
		return nil
	}

	if _, err := c.SetTechnology(ctx, s.Technology()); err != nil {
		return fmt.Errorf("apply %s: %w", s, err)
	}

	if s.Protocol() != scenario.NoProtocol {
		if _, err := c.SetProtocol(ctx, s.Protocol()); err != nil {
			return fmt.Errorf("apply %s: %w", s, err)
		}
	}

	if s.Technology() == scenario.OpenVPN {
		if _, err := c.SetObfuscate(ctx, s.Obfuscated()); err != nil {
			return fmt.Errorf("apply %s: %w", s, err)
		}
	}

	return nil
}

// ---- Inspection ----

// Status runs "status".
func (c *Client) Status(ctx context.Context) (Result, error) {
	return c.r.Run(ctx, "status")
}

// Settings runs "settings".
func (c *Client) Settings(ctx context.Context) (Result, error) {
	return c.r.Run(ctx, "settings")
}

// Raw runs arbitrary arguments, e.g. a mistyped subcommand.
func (c *Client) Raw(ctx context.Context, args ...string) (Result, error) {
	return c.r.Run(ctx, args...)
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
