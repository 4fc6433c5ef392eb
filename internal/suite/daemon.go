package suite

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/coreos/go-systemd/v22/dbus"

	"github.com/dantte-lp/vpnqa/internal/config"
	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// ErrUnitJob indicates a systemd job that did not finish with "done".
var ErrUnitJob = errors.New("systemd job failed")

// Daemon starts and stops the product daemon.
type Daemon interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NewDaemon builds the Daemon selected by cfg.Mode.
func NewDaemon(cfg config.DaemonConfig, logger *slog.Logger) (Daemon, error) {
	switch cfg.Mode {
	case config.DaemonModeSystemd:
		return &SystemdDaemon{Unit: cfg.Unit}, nil
	case config.DaemonModeExec:
		return &ExecDaemon{
			StartCommand: cfg.StartCommand,
			StopCommand:  cfg.StopCommand,
			Logger:       logger,
		}, nil
	case config.DaemonModeNone:
		return NoDaemon{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrInvalidDaemonMode, cfg.Mode)
	}
}

// ---- systemd ----

// SystemdDaemon controls a systemd unit over D-Bus.
type SystemdDaemon struct {
	Unit string
}

// Start implements Daemon.
func (d *SystemdDaemon) Start(ctx context.Context) error {
	return d.job(ctx, "start", func(conn *dbus.Conn, ch chan<- string) (int, error) {
		return conn.StartUnitContext(ctx, d.Unit, "replace", ch)
	})
}

// Stop implements Daemon.
func (d *SystemdDaemon) Stop(ctx context.Context) error {
	return d.job(ctx, "stop", func(conn *dbus.Conn, ch chan<- string) (int, error) {
		return conn.StopUnitContext(ctx, d.Unit, "replace", ch)
	})
}

// job enqueues a unit job and waits for its result.
func (d *SystemdDaemon) job(ctx context.Context, verb string, enqueue func(*dbus.Conn, chan<- string) (int, error)) error {
	conn, err := dbus.NewSystemConnectionContext(ctx)
	if err != nil {
		return fmt.Errorf("connect to systemd: %w", err)
	}
	defer conn.Close()

	ch := make(chan string, 1)
	if _, err := enqueue(conn, ch); err != nil {
		return fmt.Errorf("%s %s: %w", verb, d.Unit, err)
	}

	select {
	case result := <-ch:
		if result != "done" {
			return fmt.Errorf("%w: %s %s: %s", ErrUnitJob, verb, d.Unit, result)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%s %s: %w", verb, d.Unit, ctx.Err())
	}
}

// ---- exec ----

// ExecDaemon runs configured commands, e.g. an init script.
type ExecDaemon struct {
	StartCommand []string
	StopCommand  []string
	Logger       *slog.Logger
}

// Start implements Daemon.
func (d *ExecDaemon) Start(ctx context.Context) error { return d.run(ctx, d.StartCommand) }

// Stop implements Daemon.
func (d *ExecDaemon) Stop(ctx context.Context) error { return d.run(ctx, d.StopCommand) }

func (d *ExecDaemon) run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return config.ErrMissingDaemonCommand
	}
	r := vpncli.NewRunner(vpncli.RunnerConfig{Binary: argv[0]}, d.Logger, nil)
	if _, err := r.Run(ctx, argv[1:]...); err != nil {
		return fmt.Errorf("daemon command: %w", err)
	}
	return nil
}

// ---- none ----

// NoDaemon leaves daemon management to the operator.
type NoDaemon struct{}

// Start implements Daemon.
func (NoDaemon) Start(context.Context) error { return nil }

// Stop implements Daemon.
func (NoDaemon) Stop(context.Context) error { return nil }
