// Package report records case outcomes of an acceptance run and renders
// them as YAML, JSON or a console table.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	appversion "github.com/dantte-lp/vpnqa/internal/version"
)

// Outcome is the final result of a case.
type Outcome string

// Case outcomes.
const (
	Pass Outcome = "pass"
	Fail Outcome = "fail"
	Skip Outcome = "skip"
)

// Duration marshals as a Go duration string.
type Duration time.Duration

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) { return time.Duration(d).String(), nil }

// MarshalJSON implements json.Marshaler.
func (d Duration) MarshalJSON() ([]byte, error) { return json.Marshal(time.Duration(d).String()) }

// CommandEvidence is the last command a failed case ran.
type CommandEvidence struct {
	Command  string `yaml:"command" json:"command"`
	ExitCode int    `yaml:"exit_code" json:"exit_code"`
	Stdout   string `yaml:"stdout,omitempty" json:"stdout,omitempty"`
	Stderr   string `yaml:"stderr,omitempty" json:"stderr,omitempty"`
}

// CaseResult is the outcome of one case across all its attempts.
type CaseResult struct {
	Name     string   `yaml:"name" json:"name"`
	Suite    string   `yaml:"suite" json:"suite"`
	Scenario string   `yaml:"scenario" json:"scenario"`
	Outcome  Outcome  `yaml:"outcome" json:"outcome"`
	Attempts int      `yaml:"attempts" json:"attempts"`
	Duration Duration `yaml:"duration" json:"duration"`

	// Kind classifies the final failure.
	Kind  string `yaml:"kind,omitempty" json:"kind,omitempty"`
	Error string `yaml:"error,omitempty" json:"error,omitempty"`

	// Trail is the connection-state trail of the last attempt.
	Trail string `yaml:"trail,omitempty" json:"trail,omitempty"`

	Command     *CommandEvidence `yaml:"command,omitempty" json:"command,omitempty"`
	Routing     string           `yaml:"routing,omitempty" json:"routing,omitempty"`
	Diagnostics string           `yaml:"diagnostics,omitempty" json:"diagnostics,omitempty"`
}

// FullName returns "suite/name[scenario]".
func (c CaseResult) FullName() string {
	if c.Scenario == "" {
		return c.Suite + "/" + c.Name
	}
	return fmt.Sprintf("%s/%s[%s]", c.Suite, c.Name, c.Scenario)
}

// Summary counts outcomes.
type Summary struct {
	Total   int `yaml:"total" json:"total"`
	Passed  int `yaml:"passed" json:"passed"`
	Failed  int `yaml:"failed" json:"failed"`
	Skipped int `yaml:"skipped" json:"skipped"`
}

// Report is the record of one run.
type Report struct {
	RunID    string          `yaml:"run_id" json:"run_id"`
	Version  appversion.Info `yaml:"version" json:"version"`
	Started  time.Time       `yaml:"started" json:"started"`
	Finished time.Time       `yaml:"finished" json:"finished"`
	Summary  Summary         `yaml:"summary" json:"summary"`
	Cases    []CaseResult    `yaml:"cases" json:"cases"`
}

// New starts a report with a fresh run id.
func New() *Report {
	return &Report{
		RunID:   uuid.NewString(),
		Version: appversion.Current(),
		Started: time.Now().UTC(),
	}
}

// Add appends a case result and updates the summary.
func (r *Report) Add(c CaseResult) {
	r.Cases = append(r.Cases, c)
	r.Summary.Total++
	switch c.Outcome {
	case Pass:
		r.Summary.Passed++
	case Fail:
		r.Summary.Failed++
	case Skip:
		r.Summary.Skipped++
	}
}

// Finish stamps the end time.
func (r *Report) Finish() { r.Finished = time.Now().UTC() }

// Failed reports whether any case failed.
func (r *Report) Failed() bool { return r.Summary.Failed > 0 }

// ---- Writers ----

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// WriteJSON encodes the report as indented JSON.
func (r *Report) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}

// WriteFile writes the YAML report to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report %s: %w", path, err)
	}
	if err := r.WriteYAML(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WriteTable renders one line per case followed by a summary line.
// Outcomes are colored unless color output is disabled.
func (r *Report) WriteTable(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "OUTCOME\tCASE\tATTEMPTS\tDURATION\tKIND")

	for _, c := range r.Cases {
		kind := c.Kind
		if kind == "" {
			kind = "-"
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			outcomeColor(c.Outcome).Sprint(strings.ToUpper(string(c.Outcome))),
			c.FullName(),
			c.Attempts,
			time.Duration(c.Duration).Round(time.Millisecond),
			kind,
		)
	}

	if err := tw.Flush(); err != nil {
		return fmt.Errorf("flush tabwriter: %w", err)
	}

	s := r.Summary
	_, err := fmt.Fprintf(w, "\n%d cases: %s, %s, %s\n",
		s.Total,
		outcomeColor(Pass).Sprintf("%d passed", s.Passed),
		outcomeColor(Fail).Sprintf("%d failed", s.Failed),
		outcomeColor(Skip).Sprintf("%d skipped", s.Skipped),
	)
	return err
}

func outcomeColor(o Outcome) *color.Color {
	switch o {
	case Pass:
		return color.New(color.FgGreen)
	case Fail:
		return color.New(color.FgRed, color.Bold)
	default:
		return color.New(color.FgYellow)
	}
}
