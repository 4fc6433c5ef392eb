package config_test

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/dantte-lp/vpnqa/internal/config"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()

	if cfg.Product.Binary != "nordvpn" {
		t.Errorf("Product.Binary = %q, want %q", cfg.Product.Binary, "nordvpn")
	}

	if cfg.Product.TunnelInterface != "nordlynx" {
		t.Errorf("Product.TunnelInterface = %q, want %q", cfg.Product.TunnelInterface, "nordlynx")
	}

	if cfg.Routing.Table != 205 {
		t.Errorf("Routing.Table = %d, want 205", cfg.Routing.Table)
	}

	if cfg.Retry.MaxReruns != 2 {
		t.Errorf("Retry.MaxReruns = %d, want 2", cfg.Retry.MaxReruns)
	}

	if cfg.Retry.Delay != 90*time.Second {
		t.Errorf("Retry.Delay = %v, want %v", cfg.Retry.Delay, 90*time.Second)
	}

	if cfg.Retry.AttemptTimeout != 20*time.Second {
		t.Errorf("Retry.AttemptTimeout = %v, want %v", cfg.Retry.AttemptTimeout, 20*time.Second)
	}

	if diff := cmp.Diff([]string{"nordtun"}, cfg.Product.TunnelPrefixes); diff != "" {
		t.Errorf("Product.TunnelPrefixes mismatch (-want +got):\n%s", diff)
	}

	if cfg.Metrics.Addr != "" {
		t.Errorf("Metrics.Addr = %q, want disabled", cfg.Metrics.Addr)
	}

	// Defaults must pass validation.
	if err := config.Validate(cfg); err != nil {
		t.Errorf("DefaultConfig() failed validation: %v", err)
	}
}

func TestLoadFromYAML(t *testing.T) {
	t.Parallel()

	yamlContent := `
product:
  binary: "/usr/bin/nordvpn"
  prefix: ["sudo", "-n"]
daemon:
  mode: "exec"
  start_command: ["/etc/init.d/nordvpn", "start"]
  stop_command: ["/etc/init.d/nordvpn", "stop"]
routing:
  table: 300
probe:
  backend: "netlink"
  reachability_method: "icmp"
  hosts: ["9.9.9.9"]
  reconnect_timeout: "45s"
retry:
  max_reruns: 1
  delay: "5s"
  attempt_timeout: "30s"
log:
  level: "debug"
  format: "json"
`

	path := writeTemp(t, yamlContent)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Product.Binary != "/usr/bin/nordvpn" {
		t.Errorf("Product.Binary = %q, want %q", cfg.Product.Binary, "/usr/bin/nordvpn")
	}

	if diff := cmp.Diff([]string{"sudo", "-n"}, cfg.Product.Prefix); diff != "" {
		t.Errorf("Product.Prefix mismatch (-want +got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"/etc/init.d/nordvpn", "start"}, cfg.Daemon.StartCommand); diff != "" {
		t.Errorf("Daemon.StartCommand mismatch (-want +got):\n%s", diff)
	}

	if cfg.Routing.Table != 300 {
		t.Errorf("Routing.Table = %d, want 300", cfg.Routing.Table)
	}

	if cfg.Probe.Backend != config.ProbeBackendNetlink {
		t.Errorf("Probe.Backend = %q, want %q", cfg.Probe.Backend, config.ProbeBackendNetlink)
	}

	if cfg.Probe.ReconnectTimeout != 45*time.Second {
		t.Errorf("Probe.ReconnectTimeout = %v, want 45s", cfg.Probe.ReconnectTimeout)
	}

	if cfg.Retry.MaxReruns != 1 {
		t.Errorf("Retry.MaxReruns = %d, want 1", cfg.Retry.MaxReruns)
	}

	if cfg.Retry.Delay != 5*time.Second {
		t.Errorf("Retry.Delay = %v, want 5s", cfg.Retry.Delay)
	}

	if cfg.Log.Format != "json" {
		t.Errorf("Log.Format = %q, want %q", cfg.Log.Format, "json")
	}
}

func TestLoadMergesDefaults(t *testing.T) {
	t.Parallel()

	// Partial YAML: everything else inherits from defaults.
	path := writeTemp(t, `
log:
  level: "warn"
`)

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load(%q) error: %v", path, err)
	}

	if cfg.Log.Level != "warn" {
		t.Errorf("Log.Level = %q, want %q", cfg.Log.Level, "warn")
	}

	if cfg.Routing.Table != 205 {
		t.Errorf("Routing.Table = %d, want default 205", cfg.Routing.Table)
	}

	if cfg.Retry.AttemptTimeout != 20*time.Second {
		t.Errorf("Retry.AttemptTimeout = %v, want default 20s", cfg.Retry.AttemptTimeout)
	}

	if cfg.Daemon.Unit != "nordvpnd.service" {
		t.Errorf("Daemon.Unit = %q, want default %q", cfg.Daemon.Unit, "nordvpnd.service")
	}
}

func TestLoadEmptyPathUsesDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load(\"\") error: %v", err)
	}

	if cfg.Product.Binary != "nordvpn" {
		t.Errorf("Product.Binary = %q, want default", cfg.Product.Binary)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("VPNQA_RETRY_MAX_RERUNS", "0")
	t.Setenv("VPNQA_LOGIN_TOKEN", "secret")

	cfg, err := config.Load("")
	if err != nil {
		t.Fatalf("Load error: %v", err)
	}

	if cfg.Retry.MaxReruns != 0 {
		t.Errorf("Retry.MaxReruns = %d, want 0 from env", cfg.Retry.MaxReruns)
	}

	if cfg.Login.Token != "secret" {
		t.Errorf("Login.Token = %q, want %q from env", cfg.Login.Token, "secret")
	}
}

func TestValidateErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		modify  func(*config.Config)
		wantErr error
	}{
		{
			name:    "empty binary",
			modify:  func(cfg *config.Config) { cfg.Product.Binary = "" },
			wantErr: config.ErrEmptyBinary,
		},
		{
			name:    "empty tunnel interface",
			modify:  func(cfg *config.Config) { cfg.Product.TunnelInterface = "" },
			wantErr: config.ErrEmptyTunnelInterface,
		},
		{
			name:    "unknown daemon mode",
			modify:  func(cfg *config.Config) { cfg.Daemon.Mode = "upstart" },
			wantErr: config.ErrInvalidDaemonMode,
		},
		{
			name:    "exec mode without commands",
			modify:  func(cfg *config.Config) { cfg.Daemon.Mode = config.DaemonModeExec },
			wantErr: config.ErrMissingDaemonCommand,
		},
		{
			name:    "zero table",
			modify:  func(cfg *config.Config) { cfg.Routing.Table = 0 },
			wantErr: config.ErrInvalidTable,
		},
		{
			name:    "unknown probe backend",
			modify:  func(cfg *config.Config) { cfg.Probe.Backend = "procfs" },
			wantErr: config.ErrInvalidProbeBackend,
		},
		{
			name:    "unknown reachability method",
			modify:  func(cfg *config.Config) { cfg.Probe.ReachabilityMethod = "http" },
			wantErr: config.ErrInvalidReachability,
		},
		{
			name:    "no probe hosts",
			modify:  func(cfg *config.Config) { cfg.Probe.Hosts = nil },
			wantErr: config.ErrNoProbeHosts,
		},
		{
			name: "icmp with host:port",
			modify: func(cfg *config.Config) {
				cfg.Probe.ReachabilityMethod = config.ReachabilityICMP
			},
			wantErr: config.ErrInvalidProbeHost,
		},
		{
			name: "icmp with hostname",
			modify: func(cfg *config.Config) {
				cfg.Probe.ReachabilityMethod = config.ReachabilityICMP
				cfg.Probe.Hosts = []string{"one.one.one.one"}
			},
			wantErr: config.ErrInvalidProbeHost,
		},
		{
			name:    "tcp without port",
			modify:  func(cfg *config.Config) { cfg.Probe.Hosts = []string{"1.1.1.1"} },
			wantErr: config.ErrInvalidProbeHost,
		},
		{
			name:    "negative reruns",
			modify:  func(cfg *config.Config) { cfg.Retry.MaxReruns = -1 },
			wantErr: config.ErrInvalidMaxReruns,
		},
		{
			name:    "zero attempt timeout",
			modify:  func(cfg *config.Config) { cfg.Retry.AttemptTimeout = 0 },
			wantErr: config.ErrInvalidAttemptTimeout,
		},
		{
			name:    "negative delay",
			modify:  func(cfg *config.Config) { cfg.Retry.Delay = -time.Second },
			wantErr: config.ErrInvalidDuration,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := config.DefaultConfig()
			tt.modify(cfg)

			err := config.Validate(cfg)
			if err == nil {
				t.Fatal("Validate() returned nil, want error")
			}

			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateICMPHosts(t *testing.T) {
	t.Parallel()

	cfg := config.DefaultConfig()
	cfg.Probe.ReachabilityMethod = config.ReachabilityICMP
	cfg.Probe.Hosts = []string{"1.1.1.1", "8.8.8.8"}

	if err := config.Validate(cfg); err != nil {
		t.Errorf("Validate() error = %v, want nil for bare addresses", err)
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  slog.Level
	}{
		{input: "debug", want: slog.LevelDebug},
		{input: "INFO", want: slog.LevelInfo},
		{input: "warn", want: slog.LevelWarn},
		{input: "Error", want: slog.LevelError},
		{input: "", want: slog.LevelInfo},
		{input: "trace", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := config.ParseLogLevel(tt.input); got != tt.want {
				t.Errorf("ParseLogLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestLoadNonexistentFile(t *testing.T) {
	t.Parallel()

	if _, err := config.Load("/nonexistent/path/vpnqa.yml"); err == nil {
		t.Fatal("Load() returned nil error for nonexistent file")
	}
}

// writeTemp creates a temporary YAML file and returns its path.
func writeTemp(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "vpnqa.yml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write temp file: %v", err)
	}

	return path
}
