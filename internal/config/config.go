// Package config manages vpnqa harness configuration using koanf/v2.
//
// Supports YAML files and environment variables layered over defaults.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// -------------------------------------------------------------------------
// Configuration Structures
// -------------------------------------------------------------------------

// Config holds the complete vpnqa configuration.
type Config struct {
	Product ProductConfig `koanf:"product"`
	Daemon  DaemonConfig  `koanf:"daemon"`
	Login   LoginConfig   `koanf:"login"`
	Routing RoutingConfig `koanf:"routing"`
	Probe   ProbeConfig   `koanf:"probe"`
	Retry   RetryConfig   `koanf:"retry"`
	Matrix  MatrixConfig  `koanf:"matrix"`
	Catalog CatalogConfig `koanf:"catalog"`
	Report  ReportConfig  `koanf:"report"`
	Log     LogConfig     `koanf:"log"`
	Metrics MetricsConfig `koanf:"metrics"`
}

// ProductConfig describes the VPN client binary under test.
type ProductConfig struct {
	// Binary is the product CLI executable (e.g., "nordvpn").
	Binary string `koanf:"binary"`

	// Prefix is prepended to every product invocation (e.g., ["sudo", "-n"]).
	Prefix []string `koanf:"prefix"`

	// TunnelInterface is the interface name the product creates when connected.
	TunnelInterface string `koanf:"tunnel_interface"`

	// TunnelPrefixes match the devices of technologies that number their
	// own tunnels (OpenVPN creates "nordtun"). Other tun or WireGuard
	// links on the host are ignored.
	TunnelPrefixes []string `koanf:"tunnel_prefixes"`
}

// DaemonConfig controls how the product daemon is started and stopped.
type DaemonConfig struct {
	// Mode is "systemd", "exec" or "none".
	Mode string `koanf:"mode"`

	// Unit is the systemd unit name used in systemd mode.
	Unit string `koanf:"unit"`

	// StartCommand and StopCommand are used in exec mode.
	StartCommand []string `koanf:"start_command"`
	StopCommand  []string `koanf:"stop_command"`

	// ReadyTimeout bounds the wait for the product to answer after start.
	ReadyTimeout time.Duration `koanf:"ready_timeout"`
}

// LoginConfig holds the suite login settings.
type LoginConfig struct {
	// Token is passed to "login --token". Empty skips login.
	Token string `koanf:"token"`

	// PersistToken keeps the token on suite logout ("logout --persist-token").
	PersistToken bool `koanf:"persist_token"`
}

// RoutingConfig describes the policy-routing layout the product uses.
type RoutingConfig struct {
	// Table is the policy-routing table identifier.
	Table int `koanf:"table"`
}

// ProbeConfig configures the kernel and reachability probes.
type ProbeConfig struct {
	// Backend is "ip" (parse iproute2 output) or "netlink".
	Backend string `koanf:"backend"`

	// ReachabilityMethod is "tcp" or "icmp".
	ReachabilityMethod string `koanf:"reachability_method"`

	// Hosts are external targets; host:port for tcp, address for icmp.
	Hosts []string `koanf:"hosts"`

	// DialTimeout bounds a single reachability attempt against one host.
	DialTimeout time.Duration `koanf:"dial_timeout"`

	// ReconnectTimeout bounds the wait for the tunnel to come back after
	// a simulated network restart.
	ReconnectTimeout time.Duration `koanf:"reconnect_timeout"`

	// PollInterval is the polling interval for explicit waits.
	PollInterval time.Duration `koanf:"poll_interval"`

	// Uplink is the interface cycled to simulate a network restart.
	// Empty selects the interface of the main-table default route.
	Uplink string `koanf:"uplink"`
}

// RetryConfig holds the default rerun policy for flaky cases.
type RetryConfig struct {
	MaxReruns      int           `koanf:"max_reruns"`
	Delay          time.Duration `koanf:"delay"`
	AttemptTimeout time.Duration `koanf:"attempt_timeout"`

	// OfflineAttemptTimeout bounds cases that connect with the uplink down.
	OfflineAttemptTimeout time.Duration `koanf:"offline_attempt_timeout"`

	// CleanupTimeout bounds the unwinding of rollback actions.
	CleanupTimeout time.Duration `koanf:"cleanup_timeout"`
}

// MatrixConfig narrows the generated scenario matrix.
type MatrixConfig struct {
	// Technologies limits the matrix; empty means every supported one.
	Technologies []string `koanf:"technologies"`
}

// CatalogConfig points at the server recommendation API.
type CatalogConfig struct {
	URL     string        `koanf:"url"`
	Timeout time.Duration `koanf:"timeout"`
}

// ReportConfig controls where the run report is written.
type ReportConfig struct {
	// Path is the YAML report path. Empty disables the file.
	Path string `koanf:"path"`
}

// LogConfig holds the logging configuration.
type LogConfig struct {
	// Level is the log level: "debug", "info", "warn", "error".
	Level string `koanf:"level"`
	// Format is the log output format: "json" or "text".
	Format string `koanf:"format"`
}

// MetricsConfig holds the Prometheus metrics endpoint configuration.
type MetricsConfig struct {
	// Addr is the HTTP listen address. Empty disables the endpoint.
	Addr string `koanf:"addr"`
	// Path is the URL path for the metrics endpoint.
	Path string `koanf:"path"`
}

// -------------------------------------------------------------------------
// Defaults
// -------------------------------------------------------------------------

// DefaultConfig returns a Config populated with defaults matching the
// stock nordvpn package on a systemd host.
func DefaultConfig() *Config {
	return &Config{
		Product: ProductConfig{
			Binary:          "nordvpn",
			TunnelInterface: "nordlynx",
			TunnelPrefixes:  []string{"nordtun"},
		},
		Daemon: DaemonConfig{
			Mode:         DaemonModeSystemd,
			Unit:         "nordvpnd.service",
			ReadyTimeout: 30 * time.Second,
		},
		Login: LoginConfig{
			PersistToken: true,
		},
		Routing: RoutingConfig{
			Table: 205,
		},
		Probe: ProbeConfig{
			Backend:            ProbeBackendIP,
			ReachabilityMethod: ReachabilityTCP,
			Hosts:              []string{"1.1.1.1:53", "8.8.8.8:53"},
			DialTimeout:        3 * time.Second,
			ReconnectTimeout:   60 * time.Second,
			PollInterval:       time.Second,
		},
		Retry: RetryConfig{
			MaxReruns:             2,
			Delay:                 90 * time.Second,
			AttemptTimeout:        20 * time.Second,
			OfflineAttemptTimeout: 120 * time.Second,
			CleanupTimeout:        30 * time.Second,
		},
		Catalog: CatalogConfig{
			URL:     "https://api.nordvpn.com/v1/servers/recommendations",
			Timeout: 10 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Path: "/metrics",
		},
	}
}

// Recognized enumerations.
const (
	DaemonModeSystemd = "systemd"
	DaemonModeExec    = "exec"
	DaemonModeNone    = "none"

	ProbeBackendIP      = "ip"
	ProbeBackendNetlink = "netlink"

	ReachabilityTCP  = "tcp"
	ReachabilityICMP = "icmp"
)

// -------------------------------------------------------------------------
// Loader
// -------------------------------------------------------------------------

// envPrefix is the environment variable prefix for vpnqa configuration.
const envPrefix = "VPNQA_"

// Load reads configuration from a YAML file at path, overlays environment
// variable overrides (VPNQA_ prefix), and merges on top of DefaultConfig().
// An empty path skips the file layer.
//
// Environment variable mapping splits section from key at the first
// underscore only, so multi-word keys survive:
//
//	VPNQA_RETRY_MAX_RERUNS   -> retry.max_reruns
//	VPNQA_LOGIN_TOKEN        -> login.token
//	VPNQA_PROBE_BACKEND      -> probe.backend
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := loadDefaults(k, DefaultConfig()); err != nil {
		return nil, fmt.Errorf("load config defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config from %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyMapper), nil); err != nil {
		return nil, fmt.Errorf("load env overrides: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// envKeyMapper transforms VPNQA_RETRY_MAX_RERUNS -> retry.max_reruns.
func envKeyMapper(s string) string {
	s = strings.ToLower(strings.TrimPrefix(s, envPrefix))
	section, key, found := strings.Cut(s, "_")
	if !found {
		return section
	}
	return section + "." + key
}

// loadDefaults sets the default config into koanf as the base layer.
func loadDefaults(k *koanf.Koanf, d *Config) error {
	defaultMap := map[string]any{
		"product.binary":                d.Product.Binary,
		"product.prefix":                d.Product.Prefix,
		"product.tunnel_interface":      d.Product.TunnelInterface,
		"product.tunnel_prefixes":       d.Product.TunnelPrefixes,
		"daemon.mode":                   d.Daemon.Mode,
		"daemon.unit":                   d.Daemon.Unit,
		"daemon.start_command":          d.Daemon.StartCommand,
		"daemon.stop_command":           d.Daemon.StopCommand,
		"daemon.ready_timeout":          d.Daemon.ReadyTimeout.String(),
		"login.token":                   d.Login.Token,
		"login.persist_token":           d.Login.PersistToken,
		"routing.table":                 d.Routing.Table,
		"probe.backend":                 d.Probe.Backend,
		"probe.reachability_method":     d.Probe.ReachabilityMethod,
		"probe.hosts":                   d.Probe.Hosts,
		"probe.dial_timeout":            d.Probe.DialTimeout.String(),
		"probe.reconnect_timeout":       d.Probe.ReconnectTimeout.String(),
		"probe.poll_interval":           d.Probe.PollInterval.String(),
		"probe.uplink":                  d.Probe.Uplink,
		"retry.max_reruns":              d.Retry.MaxReruns,
		"retry.delay":                   d.Retry.Delay.String(),
		"retry.attempt_timeout":         d.Retry.AttemptTimeout.String(),
		"retry.offline_attempt_timeout": d.Retry.OfflineAttemptTimeout.String(),
		"retry.cleanup_timeout":         d.Retry.CleanupTimeout.String(),
		"matrix.technologies":           d.Matrix.Technologies,
		"catalog.url":                   d.Catalog.URL,
		"catalog.timeout":               d.Catalog.Timeout.String(),
		"report.path":                   d.Report.Path,
		"log.level":                     d.Log.Level,
		"log.format":                    d.Log.Format,
		"metrics.addr":                  d.Metrics.Addr,
		"metrics.path":                  d.Metrics.Path,
	}

	for key, val := range defaultMap {
		if err := k.Set(key, val); err != nil {
			return fmt.Errorf("set default %s: %w", key, err)
		}
	}

	return nil
}

// -------------------------------------------------------------------------
// Validation
// -------------------------------------------------------------------------

// Validation errors.
var (
	// ErrEmptyBinary indicates no product binary is configured.
	ErrEmptyBinary = errors.New("product.binary must not be empty")

	// ErrEmptyTunnelInterface indicates no tunnel interface name is configured.
	ErrEmptyTunnelInterface = errors.New("product.tunnel_interface must not be empty")

	// ErrInvalidDaemonMode indicates an unrecognized daemon mode.
	ErrInvalidDaemonMode = errors.New("daemon.mode must be systemd, exec or none")

	// ErrMissingDaemonCommand indicates exec mode without start/stop commands.
	ErrMissingDaemonCommand = errors.New("daemon.start_command and daemon.stop_command are required in exec mode")

	// ErrInvalidTable indicates a non-positive routing table identifier.
	ErrInvalidTable = errors.New("routing.table must be > 0")

	// ErrInvalidProbeBackend indicates an unrecognized probe backend.
	ErrInvalidProbeBackend = errors.New("probe.backend must be ip or netlink")

	// ErrInvalidReachability indicates an unrecognized reachability method.
	ErrInvalidReachability = errors.New("probe.reachability_method must be tcp or icmp")

	// ErrNoProbeHosts indicates the reachability host list is empty.
	ErrNoProbeHosts = errors.New("probe.hosts must not be empty")

	// ErrInvalidProbeHost indicates a host that does not fit the
	// reachability method.
	ErrInvalidProbeHost = errors.New("invalid probe host")

	// ErrInvalidMaxReruns indicates a negative rerun bound.
	ErrInvalidMaxReruns = errors.New("retry.max_reruns must be >= 0")

	// ErrInvalidAttemptTimeout indicates a non-positive attempt timeout.
	ErrInvalidAttemptTimeout = errors.New("retry.attempt_timeout must be > 0")

	// ErrInvalidDuration indicates a negative duration setting.
	ErrInvalidDuration = errors.New("durations must be >= 0")
)

// Validate checks the configuration for logical errors.
// Returns the first validation error encountered.
func Validate(cfg *Config) error {
	if cfg.Product.Binary == "" {
		return ErrEmptyBinary
	}

	if cfg.Product.TunnelInterface == "" {
		return ErrEmptyTunnelInterface
	}

	if err := validateDaemon(cfg.Daemon); err != nil {
		return err
	}

	if cfg.Routing.Table <= 0 {
		return ErrInvalidTable
	}

	if err := validateProbe(cfg.Probe); err != nil {
		return err
	}

	if cfg.Retry.MaxReruns < 0 {
		return ErrInvalidMaxReruns
	}

	if cfg.Retry.AttemptTimeout <= 0 || cfg.Retry.OfflineAttemptTimeout <= 0 {
		return ErrInvalidAttemptTimeout
	}

	if cfg.Retry.Delay < 0 || cfg.Retry.CleanupTimeout < 0 {
		return fmt.Errorf("retry: %w", ErrInvalidDuration)
	}

	return nil
}

func validateDaemon(d DaemonConfig) error {
	switch d.Mode {
	case DaemonModeSystemd, DaemonModeNone:
	case DaemonModeExec:
		if len(d.StartCommand) == 0 || len(d.StopCommand) == 0 {
			return ErrMissingDaemonCommand
		}
	default:
		return fmt.Errorf("%w: %q", ErrInvalidDaemonMode, d.Mode)
	}

	if d.ReadyTimeout < 0 {
		return fmt.Errorf("daemon.ready_timeout: %w", ErrInvalidDuration)
	}

	return nil
}

func validateProbe(p ProbeConfig) error {
	if p.Backend != ProbeBackendIP && p.Backend != ProbeBackendNetlink {
		return fmt.Errorf("%w: %q", ErrInvalidProbeBackend, p.Backend)
	}

	if p.ReachabilityMethod != ReachabilityTCP && p.ReachabilityMethod != ReachabilityICMP {
		return fmt.Errorf("%w: %q", ErrInvalidReachability, p.ReachabilityMethod)
	}

	if len(p.Hosts) == 0 {
		return ErrNoProbeHosts
	}

	for _, h := range p.Hosts {
		if err := validateProbeHost(p.ReachabilityMethod, h); err != nil {
			return err
		}
	}

	if p.DialTimeout < 0 || p.ReconnectTimeout < 0 || p.PollInterval < 0 {
		return fmt.Errorf("probe: %w", ErrInvalidDuration)
	}

	return nil
}

// validateProbeHost checks that h fits method: host:port for tcp, a bare
// IPv4 address for icmp.
func validateProbeHost(method, h string) error {
	host, port, err := net.SplitHostPort(h)
	switch method {
	case ReachabilityTCP:
		if err != nil || host == "" || port == "" {
			return fmt.Errorf("%w: tcp needs host:port, got %q", ErrInvalidProbeHost, h)
		}
	case ReachabilityICMP:
		if err == nil {
			return fmt.Errorf("%w: icmp takes an address without port, got %q", ErrInvalidProbeHost, h)
		}
		if addr, perr := netip.ParseAddr(h); perr != nil || !addr.Is4() {
			return fmt.Errorf("%w: icmp needs an IPv4 address, got %q", ErrInvalidProbeHost, h)
		}
	}
	return nil
}

// -------------------------------------------------------------------------
// Log Level Parsing
// -------------------------------------------------------------------------

// ParseLogLevel maps a configuration log level string to the corresponding
// slog.Level. Unknown values default to slog.LevelInfo.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
