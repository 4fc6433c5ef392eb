// Package vpncli runs the VPN client CLI and system tools as child
// processes and captures what they print.
//
// The product signals every failure with the same exit status, so a Result
// always keeps full stdout and stderr for later text matching.
package vpncli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
)

// DefaultWaitDelay bounds the wait for inherited pipes after the process
// exited or was killed.
const DefaultWaitDelay = 2 * time.Second

// ErrNoBinary indicates a Runner without an executable.
var ErrNoBinary = errors.New("vpncli: no binary configured")

// -------------------------------------------------------------------------
// Result
// -------------------------------------------------------------------------

// Result is the captured outcome of one invocation.
type Result struct {
	Args     []string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Output returns stdout followed by stderr.
func (r Result) Output() string {
	switch {
	case r.Stderr == "":
		return r.Stdout
	case r.Stdout == "":
		return r.Stderr
	default:
		return r.Stdout + "\n" + r.Stderr
	}
}

// Command returns the invoked command line.
func (r Result) Command() string { return strings.Join(r.Args, " ") }

// CommandError reports a nonzero exit or a killed process.
type CommandError struct {
	Result Result

	// Err is the *exec.ExitError for a nonzero exit, or the context error
	// when the process group was killed.
	Err error
}

func (e *CommandError) Error() string {
	out := strings.TrimSpace(e.Result.Output())
	if out == "" {
		return fmt.Sprintf("%s: %v", e.Result.Command(), e.Err)
	}
	return fmt.Sprintf("%s: %v: %s", e.Result.Command(), e.Err, out)
}

func (e *CommandError) Unwrap() error { return e.Err }

// Killed reports whether the process was terminated by cancellation.
func (e *CommandError) Killed() bool {
	return errors.Is(e.Err, context.Canceled) || errors.Is(e.Err, context.DeadlineExceeded)
}

// AsCommandError extracts a *CommandError from err.
func AsCommandError(err error) (*CommandError, bool) {
	var ce *CommandError
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}

// -------------------------------------------------------------------------
// Runner
// -------------------------------------------------------------------------

// RunnerConfig configures a Runner.
type RunnerConfig struct {
	// Binary is the executable name or path.
	Binary string

	// Prefix is prepended to the command line (e.g., ["sudo", "-n"]).
	Prefix []string

	// WaitDelay overrides DefaultWaitDelay.
	WaitDelay time.Duration
}

// Runner executes one binary. Each child runs in its own process group so
// cancellation can kill everything it spawned.
type Runner struct {
	cfg     RunnerConfig
	logger  *slog.Logger
	metrics *qametrics.Collector
}

// NewRunner creates a Runner. logger and metrics may be nil.
func NewRunner(cfg RunnerConfig, logger *slog.Logger, metrics *qametrics.Collector) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = DefaultWaitDelay
	}
	return &Runner{
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "vpncli"), slog.String("binary", cfg.Binary)),
		metrics: metrics,
	}
}

// Binary returns the configured executable.
func (r *Runner) Binary() string { return r.cfg.Binary }

// Run executes the binary with args and blocks until it exits or ctx is
// done. On cancellation the whole process group receives SIGKILL.
func (r *Runner) Run(ctx context.Context, args ...string) (Result, error) {
	if r.cfg.Binary == "" {
		return Result{}, ErrNoBinary
	}

	argv := make([]string, 0, len(r.cfg.Prefix)+1+len(args))
	argv = append(argv, r.cfg.Prefix...)
	argv = append(argv, r.cfg.Binary)
	argv = append(argv, args...)

	res := Result{Args: append([]string{filepath.Base(r.cfg.Binary)}, args...)}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd.Process) }
	cmd.WaitDelay = r.cfg.WaitDelay

	start := time.Now()
	err := cmd.Run()
	res.Duration = time.Since(start)
	res.Stdout = stdout.String()
	res.Stderr = stderr.String()
	res.ExitCode = exitCode(cmd.ProcessState)

	label := r.metricLabel(args)
	logger := r.logger.With(
		slog.String("command", res.Command()),
		slog.Duration("duration", res.Duration),
	)

	if errors.Is(err, exec.ErrWaitDelay) && ctx.Err() == nil && res.ExitCode == 0 {
		// A detached grandchild kept the pipes open after a clean exit.
		logger.Debug("pipes held open after exit")
		err = nil
	}

	switch {
	case err == nil:
		logger.Debug("command succeeded")
		r.metrics.RecordCommand(label, qametrics.StatusOK, res.Duration)
		return res, nil

	case ctx.Err() != nil:
		logger.Warn("command killed", slog.String("reason", ctx.Err().Error()))
		r.metrics.RecordCommand(label, qametrics.StatusKilled, res.Duration)
		return res, &CommandError{Result: res, Err: ctx.Err()}

	case res.ExitCode > 0:
		logger.Debug("command failed", slog.Int("exit_code", res.ExitCode))
		r.metrics.RecordCommand(label, qametrics.StatusFailed, res.Duration)
		return res, &CommandError{Result: res, Err: err}

	default:
		r.metrics.RecordCommand(label, qametrics.StatusError, res.Duration)
		return res, fmt.Errorf("run %s: %w", res.Command(), err)
	}
}

// metricLabel names an invocation by binary and first argument.
func (r *Runner) metricLabel(args []string) string {
	name := filepath.Base(r.cfg.Binary)
	for _, a := range args {
		if !strings.HasPrefix(a, "-") {
			return name + " " + a
		}
	}
	return name
}

// killGroup sends SIGKILL to the process group led by p.
func killGroup(p *os.Process) error {
	if p == nil {
		return nil
	}
	err := unix.Kill(-p.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return os.ErrProcessDone
	}
	return err
}

func exitCode(ps *os.ProcessState) int {
	if ps == nil {
		return -1
	}
	return ps.ExitCode()
}
