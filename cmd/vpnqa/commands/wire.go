package commands

import (
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/dantte-lp/vpnqa/internal/catalog"
	"github.com/dantte-lp/vpnqa/internal/config"
	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
	"github.com/dantte-lp/vpnqa/internal/probe"
	"github.com/dantte-lp/vpnqa/internal/scenario"
	"github.com/dantte-lp/vpnqa/internal/suite"
	"github.com/dantte-lp/vpnqa/internal/vpncli"
)

// ipBinary is the iproute2 executable used by the ip probe backend.
const ipBinary = "ip"

// harness is everything a command needs to talk to the machine.
type harness struct {
	product *vpncli.Client
	prober  *probe.Prober
	deps    suite.Deps
}

// newHarness wires the product client, probes and collaborators from c.
// metrics may be nil.
func newHarness(c *config.Config, metrics *qametrics.Collector, logger *slog.Logger) *harness {
	runner := vpncli.NewRunner(vpncli.RunnerConfig{
		Binary: c.Product.Binary,
		Prefix: c.Product.Prefix,
	}, logger, metrics)
	product := vpncli.NewClient(runner)

	ip := vpncli.NewRunner(vpncli.RunnerConfig{Binary: ipBinary}, logger, metrics)

	var routing probe.RoutingSource = probe.NewIPRouting(ip)
	if c.Probe.Backend == config.ProbeBackendNetlink {
		routing = probe.NetlinkRouting{}
	}

	var reach probe.Reacher = probe.TCPReacher{Timeout: c.Probe.DialTimeout}
	if c.Probe.ReachabilityMethod == config.ReachabilityICMP {
		reach = probe.ICMPReacher{Timeout: c.Probe.DialTimeout}
	}

	prober := probe.New(probe.Config{
		Table:          c.Routing.Table,
		Tunnel:         c.Product.TunnelInterface,
		TunnelPrefixes: c.Product.TunnelPrefixes,
		Hosts:          c.Probe.Hosts,
		PollInterval:   c.Probe.PollInterval,
	}, probe.NetlinkLinks{}, routing, reach, logger)

	deps := suite.Deps{
		Product:          product,
		Prober:           prober,
		Network:          probe.NewUplink(c.Probe.Uplink, logger),
		Diagnostics:      probe.NewDiagnostics(product, ip, c.Routing.Table),
		Metrics:          metrics,
		Logger:           logger,
		ReconnectTimeout: c.Probe.ReconnectTimeout,
		CleanupTimeout:   c.Retry.CleanupTimeout,
	}
	if c.Catalog.URL != "" {
		deps.Servers = catalog.New(c.Catalog.URL, c.Catalog.Timeout, logger)
	}

	return &harness{product: product, prober: prober, deps: deps}
}

// newEnvironment builds the suite environment for c.
func newEnvironment(c *config.Config, product *vpncli.Client, metrics *qametrics.Collector, logger *slog.Logger) (*suite.Environment, error) {
	daemon, err := suite.NewDaemon(c.Daemon, logger)
	if err != nil {
		return nil, fmt.Errorf("daemon: %w", err)
	}
	return suite.NewEnvironment(suite.EnvironmentConfig{
		Login:          c.Login,
		ReadyTimeout:   c.Daemon.ReadyTimeout,
		PollInterval:   c.Probe.PollInterval,
		CleanupTimeout: c.Retry.CleanupTimeout,
	}, daemon, product, logger, metrics), nil
}

// matrix returns the scenario matrix narrowed by c.Matrix.
func matrix(c *config.Config) ([]scenario.Scenario, error) {
	techs := make([]scenario.Technology, 0, len(c.Matrix.Technologies))
	for _, s := range c.Matrix.Technologies {
		t, err := scenario.ParseTechnology(s)
		if err != nil {
			return nil, fmt.Errorf("matrix: %w", err)
		}
		techs = append(techs, t)
	}
	return scenario.Filter(scenario.Matrix(scenario.DefaultCombinations), techs...), nil
}

// cases returns every case for c.
func cases(c *config.Config) ([]suite.Case, error) {
	m, err := matrix(c)
	if err != nil {
		return nil, err
	}
	p := suite.PoliciesFrom(c.Retry, c.Probe.ReconnectTimeout)
	return suite.All(m, p), nil
}

// newRegistry returns a registry with the harness collector and the Go
// runtime collectors.
func newRegistry() (*prometheus.Registry, *qametrics.Collector) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, qametrics.NewCollector(reg)
}
