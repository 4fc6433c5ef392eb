// Package qametrics exposes Prometheus metrics for acceptance runs.
package qametrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// -------------------------------------------------------------------------
// Prometheus Metric Constants
// -------------------------------------------------------------------------

const (
	namespace = "vpnqa"
	subsystem = "acceptance"
)

// Label names for acceptance metrics.
const (
	labelCase      = "case"
	labelOutcome   = "outcome"
	labelAction    = "action"
	labelCommand   = "command"
	labelStatus    = "status"
	labelFromState = "from_state"
	labelToState   = "to_state"
)

// Attempt and case outcome label values.
const (
	OutcomePass    = "pass"
	OutcomeFail    = "fail"
	OutcomeTimeout = "timeout"
	OutcomeSkip    = "skip"
)

// Command status label values.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
	StatusKilled = "killed"
	StatusError  = "error"
)

// -------------------------------------------------------------------------
// Collector
// -------------------------------------------------------------------------

// Collector holds all acceptance-run Prometheus metrics.
//
// A nil *Collector is valid and records nothing, so components can be
// constructed without metrics in unit tests.
type Collector struct {
	// Attempts counts individual case attempts by outcome. Reruns of a
	// flaky case show up as several fail samples followed by one pass.
	Attempts *prometheus.CounterVec

	// Cases counts final case outcomes.
	Cases *prometheus.CounterVec

	// CaseDuration observes wall time per case across all attempts.
	CaseDuration *prometheus.HistogramVec

	// CleanupFailures counts rollback actions that returned an error.
	CleanupFailures *prometheus.CounterVec

	// Commands counts product and system command invocations.
	Commands *prometheus.CounterVec

	// CommandDuration observes command wall time per subcommand.
	CommandDuration *prometheus.HistogramVec

	// StateTransitions counts scenario FSM transitions.
	StateTransitions *prometheus.CounterVec
}

// NewCollector creates a Collector with all metrics registered against the
// provided prometheus.Registerer. If reg is nil, prometheus.DefaultRegisterer
// is used.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	c := newMetrics()

	reg.MustRegister(
		c.Attempts,
		c.Cases,
		c.CaseDuration,
		c.CleanupFailures,
		c.Commands,
		c.CommandDuration,
		c.StateTransitions,
	)

	return c
}

// newMetrics creates all Prometheus metric vectors without registering them.
func newMetrics() *Collector {
	caseLabels := []string{labelCase, labelOutcome}
	commandLabels := []string{labelCommand, labelStatus}

	return &Collector{
		Attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "attempts_total",
			Help:      "Total case attempts by outcome.",
		}, caseLabels),

		Cases: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cases_total",
			Help:      "Total cases by final outcome.",
		}, caseLabels),

		CaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "case_duration_seconds",
			Help:      "Wall time per case including reruns.",
			Buckets:   []float64{1, 5, 10, 20, 60, 120, 300, 600},
		}, []string{labelCase}),

		CleanupFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "cleanup_failures_total",
			Help:      "Total rollback actions that failed.",
		}, []string{labelAction}),

		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "commands_total",
			Help:      "Total command invocations by subcommand and status.",
		}, commandLabels),

		CommandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "command_duration_seconds",
			Help:      "Command wall time by subcommand.",
			Buckets:   prometheus.DefBuckets,
		}, []string{labelCommand}),

		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "state_transitions_total",
			Help:      "Total scenario state machine transitions.",
		}, []string{labelFromState, labelToState}),
	}
}

// -------------------------------------------------------------------------
// Recording
// -------------------------------------------------------------------------

// RecordAttempt counts one case attempt with the given outcome.
func (c *Collector) RecordAttempt(caseName, outcome string) {
	if c == nil {
		return
	}
	c.Attempts.WithLabelValues(caseName, outcome).Inc()
}

// RecordCase counts a final case outcome and observes its duration.
func (c *Collector) RecordCase(caseName, outcome string, d time.Duration) {
	if c == nil {
		return
	}
	c.Cases.WithLabelValues(caseName, outcome).Inc()
	c.CaseDuration.WithLabelValues(caseName).Observe(d.Seconds())
}

// IncCleanupFailures counts a failed rollback action.
func (c *Collector) IncCleanupFailures(action string) {
	if c == nil {
		return
	}
	c.CleanupFailures.WithLabelValues(action).Inc()
}

// RecordCommand counts a command invocation and observes its duration.
func (c *Collector) RecordCommand(command, status string, d time.Duration) {
	if c == nil {
		return
	}
	c.Commands.WithLabelValues(command, status).Inc()
	c.CommandDuration.WithLabelValues(command).Observe(d.Seconds())
}

// RecordStateTransition counts a scenario FSM transition.
func (c *Collector) RecordStateTransition(from, to string) {
	if c == nil {
		return
	}
	c.StateTransitions.WithLabelValues(from, to).Inc()
}
