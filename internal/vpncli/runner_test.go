package vpncli_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/goleak"

	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func shRunner(m *qametrics.Collector) *vpncli.Runner {
	return vpncli.NewRunner(vpncli.RunnerConfig{Binary: "sh", WaitDelay: 200 * time.Millisecond}, discardLogger(), m)
}

func TestRunCapturesOutput(t *testing.T) {
	t.Parallel()

	res, err := shRunner(nil).Run(t.Context(), "-c", "echo connected; echo warning >&2")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	if res.ExitCode != 0 {
		t.Errorf("ExitCode = %d, want 0", res.ExitCode)
	}
	if strings.TrimSpace(res.Stdout) != "connected" {
		t.Errorf("Stdout = %q, want %q", res.Stdout, "connected\n")
	}
	if strings.TrimSpace(res.Stderr) != "warning" {
		t.Errorf("Stderr = %q, want %q", res.Stderr, "warning\n")
	}
	if res.Duration <= 0 {
		t.Error("Duration not measured")
	}
	if res.Args[0] != "sh" {
		t.Errorf("Args[0] = %q, want sh", res.Args[0])
	}
}

func TestRunNonzeroExit(t *testing.T) {
	t.Parallel()

	res, err := shRunner(nil).Run(t.Context(), "-c", "echo 'The specified server does not exist.' >&2; exit 1")

	ce, ok := vpncli.AsCommandError(err)
	if !ok {
		t.Fatalf("Run() error = %v, want *CommandError", err)
	}
	if ce.Killed() {
		t.Error("Killed() = true for a plain nonzero exit")
	}
	if ce.Result.ExitCode != 1 || res.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", ce.Result.ExitCode)
	}
	if !strings.Contains(ce.Error(), "The specified server does not exist.") {
		t.Errorf("Error() = %q, want captured output", ce.Error())
	}
}

func TestRunKillsProcessGroupOnTimeout(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer cancel()

	// The child shell spawns a grandchild that would keep stdout open.
	start := time.Now()
	_, err := shRunner(nil).Run(ctx, "-c", "sleep 30 & sleep 30; echo done")
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	ce, ok := vpncli.AsCommandError(err)
	if !ok || !ce.Killed() {
		t.Errorf("Run() error = %v, want killed *CommandError", err)
	}
	if elapsed > 5*time.Second {
		t.Errorf("Run() returned after %v, want prompt return", elapsed)
	}
}

func TestRunPrefix(t *testing.T) {
	t.Parallel()

	r := vpncli.NewRunner(vpncli.RunnerConfig{
		Binary: "sh",
		Prefix: []string{"env", "VPNQA_PREFIX=yes"},
	}, discardLogger(), nil)

	res, err := r.Run(t.Context(), "-c", "echo $VPNQA_PREFIX")
	if err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if strings.TrimSpace(res.Stdout) != "yes" {
		t.Errorf("Stdout = %q, want yes", res.Stdout)
	}
}

func TestRunMissingBinary(t *testing.T) {
	t.Parallel()

	r := vpncli.NewRunner(vpncli.RunnerConfig{Binary: "/nonexistent/nordvpn"}, discardLogger(), nil)
	_, err := r.Run(t.Context(), "status")
	if err == nil {
		t.Fatal("Run() returned nil error for missing binary")
	}
	if _, ok := vpncli.AsCommandError(err); ok {
		t.Error("missing binary reported as product failure")
	}

	empty := vpncli.NewRunner(vpncli.RunnerConfig{}, discardLogger(), nil)
	if _, err := empty.Run(t.Context()); !errors.Is(err, vpncli.ErrNoBinary) {
		t.Errorf("Run() error = %v, want ErrNoBinary", err)
	}
}

func TestRunRecordsMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	m := qametrics.NewCollector(reg)
	r := shRunner(m)

	_, _ = r.Run(t.Context(), "-c", "exit 0")
	_, _ = r.Run(t.Context(), "-c", "exit 1")

	// The first non-flag argument names the invocation.
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("sh exit 0", qametrics.StatusOK)); got != 1 {
		t.Errorf("ok commands = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Commands.WithLabelValues("sh exit 1", qametrics.StatusFailed)); got != 1 {
		t.Errorf("failed commands = %v, want 1", got)
	}
}

func TestResultOutput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		res  vpncli.Result
		want string
	}{
		{res: vpncli.Result{Stdout: "a"}, want: "a"},
		{res: vpncli.Result{Stderr: "b"}, want: "b"},
		{res: vpncli.Result{Stdout: "a", Stderr: "b"}, want: "a\nb"},
	}

	for _, tt := range tests {
		if got := tt.res.Output(); got != tt.want {
			t.Errorf("Output() = %q, want %q", got, tt.want)
		}
	}
}
