package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

const (
	formatJSON  = "json"
	formatTable = "table"
	formatYAML  = "yaml"
)

// errUnsupportedFormat is returned when the requested output format is not supported.
var errUnsupportedFormat = errors.New("unsupported output format")

// render writes v in the requested format. table renders the table form.
func render(w io.Writer, format string, v any, table func(*tabwriter.Writer)) error {
	switch format {
	case formatJSON:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal to JSON: %w", err)
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("marshal to YAML: %w", err)
		}
		return enc.Close()
	case formatTable:
		tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
		table(tw)
		if err := tw.Flush(); err != nil {
			return fmt.Errorf("flush tabwriter: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// checkFormat rejects unknown formats before any work is done.
func checkFormat(format string) error {
	switch format {
	case formatJSON, formatYAML, formatTable:
		return nil
	default:
		return fmt.Errorf("%w: %q", errUnsupportedFormat, format)
	}
}

// --- View types for clean structured output ---

type caseView struct {
	Suite    string `json:"suite" yaml:"suite"`
	Name     string `json:"name" yaml:"name"`
	Scenario string `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	Reruns   int    `json:"reruns" yaml:"reruns"`
	Timeout  string `json:"timeout" yaml:"timeout"`
}

type scenarioView struct {
	Name       string `json:"name" yaml:"name"`
	Technology string `json:"technology" yaml:"technology"`
	Protocol   string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	Obfuscated bool   `json:"obfuscated" yaml:"obfuscated"`
}

type interfaceView struct {
	Index int    `json:"index" yaml:"index"`
	Name  string `json:"name" yaml:"name"`
	Type  string `json:"type" yaml:"type"`
	Up    bool   `json:"up" yaml:"up"`
}

type probeView struct {
	State      string          `json:"state" yaml:"state"`
	Tunnel     string          `json:"tunnel,omitempty" yaml:"tunnel,omitempty"`
	Reachable  bool            `json:"reachable" yaml:"reachable"`
	Table      int             `json:"table" yaml:"table"`
	Fwmark     bool            `json:"fwmark_rule" yaml:"fwmark_rule"`
	Rules      []string        `json:"rules" yaml:"rules"`
	Routes     []string        `json:"table_routes" yaml:"table_routes"`
	Interfaces []interfaceView `json:"interfaces" yaml:"interfaces"`
	Error      string          `json:"error,omitempty" yaml:"error,omitempty"`
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
