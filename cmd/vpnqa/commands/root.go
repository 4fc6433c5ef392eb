// Package commands implements the vpnqa CLI commands.
package commands

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dantte-lp/vpnqa/internal/config"
)

var (
	// cfg is the loaded configuration, initialized in PersistentPreRunE.
	cfg *config.Config

	// logger is built from cfg.Log in PersistentPreRunE.
	logger *slog.Logger

	// outputFormat controls the output format for all commands.
	outputFormat string

	// configPath is the optional YAML configuration file.
	configPath string
)

// newRootCmd builds the command tree. The shell rebuilds it for every
// line it reads, so commands must not keep state between executions.
func newRootCmd(withShell bool) *cobra.Command {
	root := &cobra.Command{
		Use:   "vpnqa",
		Short: "Acceptance tests for the NordVPN Linux client",
		Long: "vpnqa drives the nordvpn CLI through connect and routing scenarios and " +
			"checks the resulting tunnel, routing table and reachability.",
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			loaded, err := loadConfig(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			logger = newLogger(cfg.Log)
			return nil
		},
		// Silence cobra's built-in usage/error printing so we control it.
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&configPath, "config", configPath,
		"path to configuration file (YAML)")
	root.PersistentFlags().StringVar(&outputFormat, "format", formatTable,
		"output format: table, json, yaml")

	root.AddCommand(runCmd())
	root.AddCommand(listCmd())
	root.AddCommand(matrixCmd())
	root.AddCommand(probeCmd())
	root.AddCommand(versionCmd())
	if withShell {
		root.AddCommand(shellCmd())
	}

	return root
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := newRootCmd(true).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// loadConfig loads the configuration. An empty path uses defaults plus
// environment overrides.
func loadConfig(path string) (*config.Config, error) {
	loaded, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %q: %w", path, err)
	}
	return loaded, nil
}

// newLogger writes structured logs to stderr so that stdout carries only
// command output.
func newLogger(lc config.LogConfig) *slog.Logger {
	level := new(slog.LevelVar)
	level.Set(config.ParseLogLevel(lc.Level))
	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	switch lc.Format {
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	return slog.New(handler)
}
