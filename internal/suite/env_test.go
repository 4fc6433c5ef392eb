package suite_test

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/vpnqa/internal/config"
	"github.com/dantte-lp/vpnqa/internal/suite"
)

// execDaemon logs start and stop into the product call log so the
// relative order of daemon and product commands is visible.
func (w *world) execDaemon() *suite.ExecDaemon {
	return &suite.ExecDaemon{
		StartCommand: []string{"sh", "-c", fmt.Sprintf("echo daemon-start >> %q", w.log)},
		StopCommand:  []string{"sh", "-c", fmt.Sprintf("echo daemon-stop >> %q", w.log)},
		Logger:       discardLogger(),
	}
}

func TestEnvironmentLifecycle(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	env := suite.NewEnvironment(suite.EnvironmentConfig{
		Login:        config.LoginConfig{Token: "abc", PersistToken: true},
		ReadyTimeout: 5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}, w.execDaemon(), w.product, discardLogger(), nil)

	if err := env.Setup(t.Context()); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := env.Teardown(t.Context()); err != nil {
		t.Fatalf("Teardown() error: %v", err)
	}

	want := []string{
		"daemon-start",
		"status",
		"login --token abc",
		"logout --persist-token",
		"daemon-stop",
	}
	if diff := cmp.Diff(want, w.calls(t)); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironmentSetupFailureReleases(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	env := suite.NewEnvironment(suite.EnvironmentConfig{
		Login: config.LoginConfig{Token: "bad"},
	}, w.execDaemon(), w.product, discardLogger(), nil)

	if err := env.Setup(t.Context()); err == nil {
		t.Fatal("Setup() returned nil for a rejected token")
	}

	want := []string{"daemon-start", "login --token bad", "daemon-stop"}
	if diff := cmp.Diff(want, w.calls(t)); diff != "" {
		t.Errorf("call order mismatch (-want +got):\n%s", diff)
	}
}

func TestEnvironmentWithoutToken(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	env := suite.NewEnvironment(suite.EnvironmentConfig{}, suite.NoDaemon{}, w.product, discardLogger(), nil)

	if err := env.Setup(t.Context()); err != nil {
		t.Fatalf("Setup() error: %v", err)
	}
	if err := env.Teardown(t.Context()); err != nil {
		t.Fatalf("Teardown() error: %v", err)
	}
	if calls := w.calls(t); len(calls) != 0 {
		t.Errorf("calls = %v, want none", calls)
	}
}

func TestExecutorRunsEnvironment(t *testing.T) {
	t.Parallel()

	w := newWorld(t)
	env := suite.NewEnvironment(suite.EnvironmentConfig{
		Login: config.LoginConfig{Token: "abc"},
	}, w.execDaemon(), w.product, discardLogger(), nil)

	x := suite.NewExecutor(w.deps())
	cases, err := suite.Select(suite.ConnectCases(nil, testPolicies()), "", "invalid_group")
	if err != nil {
		t.Fatalf("Select() error: %v", err)
	}

	rep, err := x.Run(t.Context(), env, cases)
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if rep.Failed() {
		t.Errorf("report failed: %+v", rep.Cases)
	}

	calls := w.calls(t)
	if calls[0] != "daemon-start" || calls[len(calls)-1] != "daemon-stop" {
		t.Errorf("calls = %v, want cases bracketed by the daemon", calls)
	}
	if calls[len(calls)-2] != "logout" {
		t.Errorf("calls = %v, want logout before daemon-stop", calls)
	}
}

func TestNewDaemon(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mode    string
		wantErr error
	}{
		{mode: config.DaemonModeSystemd},
		{mode: config.DaemonModeExec},
		{mode: config.DaemonModeNone},
		{mode: "upstart", wantErr: config.ErrInvalidDaemonMode},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			t.Parallel()

			d, err := suite.NewDaemon(config.DaemonConfig{Mode: tt.mode, Unit: "nordvpnd.service"}, discardLogger())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("NewDaemon() error = %v, want %v", err, tt.wantErr)
			}
			if err == nil && d == nil {
				t.Fatal("NewDaemon() returned nil daemon")
			}
		})
	}
}

func TestExecDaemonMissingCommand(t *testing.T) {
	t.Parallel()

	d := &suite.ExecDaemon{Logger: discardLogger()}
	if err := d.Start(t.Context()); !errors.Is(err, config.ErrMissingDaemonCommand) {
		t.Errorf("Start() error = %v, want %v", err, config.ErrMissingDaemonCommand)
	}
}
