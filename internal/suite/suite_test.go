package suite_test

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/vpnqa/internal/config"
	"github.com/dantte-lp/vpnqa/internal/report"
	"github.com/dantte-lp/vpnqa/internal/retry"
	"github.com/dantte-lp/vpnqa/internal/scenario"
	"github.com/dantte-lp/vpnqa/internal/suite"
)

func TestConnectCasesCoverMatrix(t *testing.T) {
	t.Parallel()

	matrix := scenario.Matrix(scenario.DefaultCombinations)
	cases := suite.ConnectCases(matrix, testPolicies())

	if want := 8*len(matrix) + len(scenario.Groups()) + 1; len(cases) != want {
		t.Fatalf("len(ConnectCases) = %d, want %d", len(cases), want)
	}

	seen := make(map[string]bool)
	for _, c := range cases {
		if seen[c.FullName()] {
			t.Errorf("duplicate case %s", c.FullName())
		}
		seen[c.FullName()] = true

		if c.Suite != suite.SuiteConnect {
			t.Errorf("%s: suite %q", c.FullName(), c.Suite)
		}
	}

	for _, name := range []string{
		"connect/quick_connect[openvpn-udp]",
		"connect/connect_without_internet_access[nordlynx]",
		"connect/connect_to_group[default-group-Europe]",
		"connect/connect_to_group[default-group-P2P]",
		"connect/connect_to_invalid_group[default-group-nonexisting_group]",
	} {
		if !seen[name] {
			t.Errorf("missing case %s", name)
		}
	}
}

func TestCasePolicies(t *testing.T) {
	t.Parallel()

	p := suite.PoliciesFrom(config.DefaultConfig().Retry, config.DefaultConfig().Probe.ReconnectTimeout)
	cases := suite.All([]scenario.Scenario{nordlynx(t)}, p)

	want := map[string]retry.Policy{
		"quick_connect":                            p.Flaky,
		"connect_to_absent_server":                 p.Once,
		"mistype_connect":                          p.Once,
		"connect_to_invalid_group":                 p.Once,
		"connect_without_internet_access":          p.Offline,
		"connection_recovers_from_network_restart": p.Recovery,
		"routing_on":                               p.Flaky,
	}
	for _, c := range cases {
		w, ok := want[c.Name]
		if !ok {
			continue
		}
		if c.Policy != w {
			t.Errorf("%s: policy %+v, want %+v", c.Name, c.Policy, w)
		}
	}

	if p.Once.MaxReruns != 0 {
		t.Errorf("Once.MaxReruns = %d, want 0", p.Once.MaxReruns)
	}
	if p.Recovery.AttemptTimeout <= p.Flaky.AttemptTimeout {
		t.Errorf("Recovery.AttemptTimeout = %v, want more than %v", p.Recovery.AttemptTimeout, p.Flaky.AttemptTimeout)
	}
}

func TestRoutingCasesRestoreRouting(t *testing.T) {
	t.Parallel()

	for _, c := range suite.RoutingCases(testPolicies()) {
		if c.Teardown == nil {
			t.Errorf("%s: no teardown", c.Name)
		}
		if c.Scenario.Technology() != scenario.NordLynx {
			t.Errorf("%s: technology %q, want nordlynx", c.Name, c.Scenario.Technology())
		}
	}
}

func TestSelect(t *testing.T) {
	t.Parallel()

	all := suite.All([]scenario.Scenario{nordlynx(t)}, testPolicies())

	tests := []struct {
		name    string
		suite   string
		pattern string
		want    []string
	}{
		{
			name:  "routing suite",
			suite: suite.SuiteRouting,
			want: []string{
				"routing/routing_on[nordlynx]",
				"routing/routing_off[nordlynx]",
				"routing/toggle_routing_in_the_middle_of_the_connection[nordlynx]",
			},
		},
		{
			name:    "pattern across suites",
			pattern: "group-P2P|invalid_group",
			want: []string{
				"connect/connect_to_group[default-group-P2P]",
				"connect/connect_to_invalid_group[default-group-nonexisting_group]",
			},
		},
		{
			name:    "suite and pattern",
			suite:   suite.SuiteRouting,
			pattern: "^routing/routing_o",
			want: []string{
				"routing/routing_on[nordlynx]",
				"routing/routing_off[nordlynx]",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := suite.Select(all, tt.suite, tt.pattern)
			if err != nil {
				t.Fatalf("Select() error: %v", err)
			}
			names := make([]string, 0, len(got))
			for _, c := range got {
				names = append(names, c.FullName())
			}
			if diff := cmp.Diff(tt.want, names); diff != "" {
				t.Errorf("Select() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestSelectInvalidPattern(t *testing.T) {
	t.Parallel()

	if _, err := suite.Select(nil, "", "("); err == nil {
		t.Fatal("Select() returned nil error for an invalid pattern")
	}
}

func TestRejectSucceededIsAssertion(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	x := suite.NewExecutor(w.deps())

	res := x.RunCase(t.Context(), suite.Case{
		Name:   "reject_connect",
		Suite:  suite.SuiteConnect,
		Policy: retry.Once(defaultTimeout),
		Body: func(ctx context.Context, tc *suite.T) error {
			tc.DeferDisconnect()
			_, err := tc.Reject(ctx, "connect")
			return err
		},
	})

	if res.Kind != "assertion" {
		t.Errorf("Kind = %q, want assertion", res.Kind)
	}
	if w.exists(w.state) {
		t.Error("rollback did not disconnect")
	}
}

func TestGroupCasesCarryTargets(t *testing.T) {
	t.Parallel()

	var got []scenario.Target
	for _, c := range suite.ConnectCases(nil, testPolicies()) {
		if c.Scenario.Configured() {
			t.Errorf("%s: group case selects settings %s", c.FullName(), c.Scenario)
		}
		got = append(got, c.Scenario.Target())
	}

	var want []scenario.Target
	for _, g := range scenario.Groups() {
		want = append(want, scenario.Group(g))
	}
	want = append(want, scenario.Group("nonexisting_group"))

	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("group targets mismatch (-want +got):\n%s", diff)
	}
}

func TestRejectOtherCommandKeepsState(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	x := suite.NewExecutor(w.deps())

	res := x.RunCase(t.Context(), suite.Case{
		Name:   "reject_verb",
		Suite:  suite.SuiteConnect,
		Policy: retry.Once(defaultTimeout),
		Body: func(ctx context.Context, tc *suite.T) error {
			_, err := tc.Reject(ctx, "kinect")
			return err
		},
	})

	if res.Outcome != report.Pass {
		t.Fatalf("Outcome = %s, want pass (error: %s)", res.Outcome, res.Error)
	}
	if res.Trail != "Idle" {
		t.Errorf("Trail = %q, want Idle for a non-connect command", res.Trail)
	}
}
