package vpncli_test

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/vpnqa/internal/scenario"
	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// fakeProduct writes a stand-in product binary that logs its arguments
// and rejects settings that already hold the requested value.
func fakeProduct(t *testing.T) (*vpncli.Client, func() []string) {
	t.Helper()

	dir := t.TempDir()
	logPath := filepath.Join(dir, "calls.log")
	script := fmt.Sprintf(`#!/bin/sh
echo "$*" >> %q
case "$1 $2" in
  "set protocol") echo "Protocol is already set to '$3'." >&2; exit 1 ;;
  "set routing") echo "Routing is set to '$3' successfully." ;;
esac
exit 0
`, logPath)

	bin := filepath.Join(dir, "nordvpn")
	if err := os.WriteFile(bin, []byte(script), 0o600); err != nil {
		t.Fatalf("write fake product: %v", err)
	}

	// Interpreting the script avoids ETXTBSY when parallel tests fork while
	// it is still open for writing.
	c := vpncli.NewClient(vpncli.NewRunner(vpncli.RunnerConfig{
		Binary: bin,
		Prefix: []string{"sh"},
	}, discardLogger(), nil))

	calls := func() []string {
		data, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read call log: %v", err)
		}
		return strings.Split(strings.TrimSpace(string(data)), "\n")
	}

	return c, calls
}

func TestClientVerbs(t *testing.T) {
	t.Parallel()

	c, calls := fakeProduct(t)
	ctx := t.Context()

	steps := []func() error{
		func() error { _, err := c.Connect(ctx); return err },
		func() error { _, err := c.Connect(ctx, "de123"); return err },
		func() error { _, err := c.ConnectGroup(ctx, "P2P", "P2P"); return err },
		func() error { _, err := c.WhitelistAddSubnet(ctx, netip.MustParsePrefix("1.1.1.1/32")); return err },
		func() error { _, err := c.SetRouting(ctx, false); return err },
		func() error { _, err := c.WhitelistRemoveAll(ctx); return err },
		func() error { _, err := c.Disconnect(ctx); return err },
		func() error { _, err := c.Logout(ctx, true); return err },
		func() error { _, err := c.Raw(ctx, "kinect"); return err },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d error: %v", i, err)
		}
	}

	want := []string{
		"connect",
		"connect de123",
		"connect --group P2P P2P",
		"whitelist add subnet 1.1.1.1/32",
		"set routing off",
		"whitelist remove all",
		"disconnect",
		"logout --persist-token",
		"kinect",
	}
	if diff := cmp.Diff(want, calls()); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}
}

func TestClientApply(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		c    scenario.Combination
		want []string
	}{
		{
			name: "openvpn obfuscated",
			c:    scenario.Combination{Technology: scenario.OpenVPN, Protocol: scenario.TCP, Obfuscated: true},
			want: []string{"set technology openvpn", "set protocol tcp", "set obfuscate on"},
		},
		{
			name: "nordlynx",
			c:    scenario.Combination{Technology: scenario.NordLynx},
			want: []string{"set technology nordlynx"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			c, calls := fakeProduct(t)
			s, err := scenario.New(tt.c)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}

			// "set protocol" fails with "already set", which Apply accepts.
			if err := c.Apply(t.Context(), s); err != nil {
				t.Fatalf("Apply() error: %v", err)
			}

			if diff := cmp.Diff(tt.want, calls()); diff != "" {
				t.Errorf("invocations mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestClientApplyTargetOnly(t *testing.T) {
	t.Parallel()

	c, calls := fakeProduct(t)
	var s scenario.Scenario
	s = s.WithTarget(scenario.Group("Europe"))

	if err := c.Apply(t.Context(), s); err != nil {
		t.Fatalf("Apply() error: %v", err)
	}
	if _, err := c.ConnectTarget(t.Context(), s.Target()); err != nil {
		t.Fatalf("ConnectTarget() error: %v", err)
	}

	// Only the connect reaches the product; no settings were selected.
	if diff := cmp.Diff([]string{"connect --group Europe"}, calls()); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}
}

func TestClientConnectTarget(t *testing.T) {
	t.Parallel()

	c, calls := fakeProduct(t)
	ctx := t.Context()

	for _, target := range []scenario.Target{{}, scenario.Server("de123"), scenario.Group("Europe")} {
		if _, err := c.ConnectTarget(ctx, target); err != nil {
			t.Fatalf("ConnectTarget(%v) error: %v", target, err)
		}
	}

	want := []string{"connect", "connect de123", "connect --group Europe"}
	if diff := cmp.Diff(want, calls()); diff != "" {
		t.Errorf("invocations mismatch (-want +got):\n%s", diff)
	}
}
