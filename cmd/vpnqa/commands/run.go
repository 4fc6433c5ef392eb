package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dantte-lp/vpnqa/internal/config"
	"github.com/dantte-lp/vpnqa/internal/report"
	"github.com/dantte-lp/vpnqa/internal/suite"
	appversion "github.com/dantte-lp/vpnqa/internal/version"
)

// shutdownTimeout is the maximum time to wait for the metrics server to
// drain active connections after the run.
const shutdownTimeout = 10 * time.Second

// errCasesFailed is returned when at least one case failed.
var errCasesFailed = errors.New("acceptance cases failed")

func runCmd() *cobra.Command {
	var (
		suiteName   string
		casePattern string
		reportPath  string
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the acceptance suites",
		Long: "Starts the product daemon, logs in, runs the selected cases one at a time " +
			"and tears everything down again. Exits non-zero if any case failed.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := checkFormat(outputFormat); err != nil {
				return err
			}
			if cmd.Flags().Changed("report") {
				cfg.Report.Path = reportPath
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.Metrics.Addr = metricsAddr
			}

			all, err := cases(cfg)
			if err != nil {
				return err
			}
			selected, err := suite.Select(all, suiteName, casePattern)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep, err := runSuites(ctx, cfg, selected)
			if rep != nil {
				if werr := writeReport(cmd, rep); werr != nil {
					err = errors.Join(err, werr)
				}
			}
			if err != nil {
				return err
			}
			if rep.Failed() {
				return fmt.Errorf("%w: %d of %d", errCasesFailed, rep.Summary.Failed, rep.Summary.Total)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&suiteName, "suite", "",
		"run only this suite: connect, routing")
	cmd.Flags().StringVar(&casePattern, "case", "",
		"run only cases whose suite/name[scenario] matches this regular expression")
	cmd.Flags().StringVar(&reportPath, "report", "",
		"write the YAML report to this file (overrides report.path)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "",
		"serve Prometheus metrics on this address during the run (overrides metrics.addr)")

	return cmd
}

// runSuites runs the cases next to an optional metrics server. The server
// is shut down once the cases finish.
func runSuites(ctx context.Context, c *config.Config, selected []suite.Case) (*report.Report, error) {
	reg, metrics := newRegistry()
	h := newHarness(c, metrics, logger)

	env, err := newEnvironment(c, h.product, metrics, logger)
	if err != nil {
		return nil, err
	}

	logger.Info("vpnqa starting",
		slog.String("version", appversion.Version),
		slog.String("binary", c.Product.Binary),
		slog.Int("cases", len(selected)),
		slog.String("metrics_addr", c.Metrics.Addr),
	)

	g, gCtx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	if c.Metrics.Addr != "" {
		srv := newMetricsServer(c.Metrics, reg)
		lc := net.ListenConfig{}
		g.Go(func() error {
			logger.Info("metrics server listening",
				slog.String("addr", c.Metrics.Addr),
				slog.String("path", c.Metrics.Path),
			)
			return listenAndServe(gCtx, &lc, srv, c.Metrics.Addr)
		})
		g.Go(func() error {
			select {
			case <-done:
			case <-gCtx.Done():
			}
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("shutdown metrics server: %w", err)
			}
			return nil
		})
	}

	var rep *report.Report
	g.Go(func() error {
		defer close(done)
		var err error
		rep, err = suite.NewExecutor(h.deps).Run(gCtx, env, selected)
		return err
	})

	err = g.Wait()
	return rep, err
}

// writeReport prints rep to stdout and writes the report file if configured.
func writeReport(cmd *cobra.Command, rep *report.Report) error {
	out := cmd.OutOrStdout()

	var err error
	switch outputFormat {
	case formatJSON:
		err = rep.WriteJSON(out)
	case formatYAML:
		err = rep.WriteYAML(out)
	default:
		err = rep.WriteTable(out)
	}
	if err != nil {
		return fmt.Errorf("print report: %w", err)
	}

	if cfg.Report.Path == "" {
		return nil
	}
	if err := rep.WriteFile(cfg.Report.Path); err != nil {
		return fmt.Errorf("write report: %w", err)
	}
	logger.Info("report written", slog.String("path", cfg.Report.Path))
	return nil
}

// listenAndServe creates a TCP listener using the ListenConfig and serves
// HTTP requests until the server is shut down.
func listenAndServe(ctx context.Context, lc *net.ListenConfig, srv *http.Server, addr string) error {
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", addr, err)
	}
	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve on %s: %w", addr, err)
	}
	return nil
}

// newMetricsServer creates an HTTP server for the Prometheus metrics endpoint.
func newMetricsServer(mc config.MetricsConfig, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	mux.Handle(mc.Path, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	return &http.Server{
		Addr:              mc.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}
