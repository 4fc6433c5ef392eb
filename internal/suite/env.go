package suite

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dantte-lp/vpnqa/internal/cleanup"
	"github.com/dantte-lp/vpnqa/internal/config"
	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
	"github.com/dantte-lp/vpnqa/internal/probe"
	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// msgAlreadyLoggedIn is printed with a failing status by a repeated login.
const msgAlreadyLoggedIn = "already logged in"

// Environment owns suite-scoped state: the daemon process and the login
// session. It is set up once before the first case and torn down once
// after the last.
type Environment struct {
	daemon  Daemon
	product *vpncli.Client
	login   config.LoginConfig
	ready   time.Duration
	poll    time.Duration
	logger  *slog.Logger
	stack   *cleanup.Stack
}

// EnvironmentConfig configures an Environment.
type EnvironmentConfig struct {
	Login        config.LoginConfig
	ReadyTimeout time.Duration
	PollInterval time.Duration

	// CleanupTimeout bounds Teardown.
	CleanupTimeout time.Duration
}

// NewEnvironment creates an Environment.
func NewEnvironment(cfg EnvironmentConfig, daemon Daemon, product *vpncli.Client, logger *slog.Logger, metrics *qametrics.Collector) *Environment {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	logger = logger.With(slog.String("component", "suite.env"))
	return &Environment{
		daemon:  daemon,
		product: product,
		login:   cfg.Login,
		ready:   cfg.ReadyTimeout,
		poll:    cfg.PollInterval,
		logger:  logger,
		stack:   cleanup.NewStack(logger, cleanup.WithTimeout(cfg.CleanupTimeout), cleanup.WithMetrics(metrics)),
	}
}

// Setup starts the daemon, waits until the product answers and logs in.
// Everything acquired before a failure is released again.
func (e *Environment) Setup(ctx context.Context) (err error) {
	defer func() {
		if err != nil {
			e.stack.Unwind(ctx, &err)
		}
	}()

	if err := e.daemon.Start(ctx); err != nil {
		return fmt.Errorf("start daemon: %w", err)
	}
	e.stack.Push("stop daemon", e.daemon.Stop)
	e.logger.Info("daemon started")

	if e.ready > 0 {
		err := probe.WaitFor(ctx, e.ready, e.poll, func(ctx context.Context) bool {
			_, err := e.product.Status(ctx)
			return err == nil
		})
		if err != nil {
			return fmt.Errorf("wait for daemon: %w", err)
		}
	}

	if e.login.Token == "" {
		e.logger.Info("login skipped, no token configured")
		return nil
	}

	res, err := e.product.Login(ctx, e.login.Token)
	if err != nil && !strings.Contains(strings.ToLower(res.Output()), msgAlreadyLoggedIn) {
		return fmt.Errorf("login: %w", err)
	}
	persist := e.login.PersistToken
	e.stack.Push("logout", func(ctx context.Context) error {
		_, err := e.product.Logout(ctx, persist)
		return err
	})
	e.logger.Info("logged in")

	return nil
}

// Teardown logs out and stops the daemon, in reverse order of Setup.
func (e *Environment) Teardown(ctx context.Context) error {
	err := e.stack.Drain(ctx)
	e.logger.Info("environment torn down")
	return err
}
