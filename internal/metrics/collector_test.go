package qametrics_test

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	qametrics "github.com/dantte-lp/vpnqa/internal/metrics"
)

func TestNewCollectorRegisters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qametrics.NewCollector(reg)

	c.RecordAttempt("quick_connect", qametrics.OutcomePass)
	c.RecordCase("quick_connect", qametrics.OutcomePass, 3*time.Second)
	c.IncCleanupFailures("disconnect")
	c.RecordCommand("connect", qametrics.StatusOK, time.Second)
	c.RecordStateTransition("Idle", "Connecting")

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	if len(families) != 7 {
		t.Errorf("gathered %d metric families, want 7", len(families))
	}
}

func TestAttemptCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qametrics.NewCollector(reg)

	// Two failed reruns followed by a pass.
	c.RecordAttempt("routing_on", qametrics.OutcomeFail)
	c.RecordAttempt("routing_on", qametrics.OutcomeTimeout)
	c.RecordAttempt("routing_on", qametrics.OutcomePass)

	for outcome, want := range map[string]float64{
		qametrics.OutcomeFail:    1,
		qametrics.OutcomeTimeout: 1,
		qametrics.OutcomePass:    1,
	} {
		got := counterValue(t, c.Attempts, "routing_on", outcome)
		if got != want {
			t.Errorf("Attempts(%s) = %v, want %v", outcome, got, want)
		}
	}
}

func TestRecordCase(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qametrics.NewCollector(reg)

	c.RecordCase("connect_to_group", qametrics.OutcomeFail, 2*time.Second)
	c.RecordCase("connect_to_group", qametrics.OutcomeFail, 4*time.Second)

	if got := counterValue(t, c.Cases, "connect_to_group", qametrics.OutcomeFail); got != 2 {
		t.Errorf("Cases(fail) = %v, want 2", got)
	}

	if n := testutil.CollectAndCount(c.CaseDuration); n != 1 {
		t.Errorf("CaseDuration series = %d, want 1", n)
	}
}

func TestCommandCounters(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qametrics.NewCollector(reg)

	c.RecordCommand("connect", qametrics.StatusOK, 500*time.Millisecond)
	c.RecordCommand("connect", qametrics.StatusFailed, time.Second)
	c.RecordCommand("connect", qametrics.StatusFailed, time.Second)

	if got := counterValue(t, c.Commands, "connect", qametrics.StatusFailed); got != 2 {
		t.Errorf("Commands(connect, failed) = %v, want 2", got)
	}

	if got := counterValue(t, c.Commands, "connect", qametrics.StatusOK); got != 1 {
		t.Errorf("Commands(connect, ok) = %v, want 1", got)
	}
}

func TestCleanupAndTransitions(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	c := qametrics.NewCollector(reg)

	c.IncCleanupFailures("set routing on")
	c.RecordStateTransition("Connecting", "Failed")
	c.RecordStateTransition("Connecting", "Failed")

	if got := counterValue(t, c.CleanupFailures, "set routing on"); got != 1 {
		t.Errorf("CleanupFailures = %v, want 1", got)
	}

	if got := counterValue(t, c.StateTransitions, "Connecting", "Failed"); got != 2 {
		t.Errorf("StateTransitions(Connecting->Failed) = %v, want 2", got)
	}
}

func TestNilCollector(t *testing.T) {
	t.Parallel()

	var c *qametrics.Collector

	// Must not panic.
	c.RecordAttempt("x", qametrics.OutcomePass)
	c.RecordCase("x", qametrics.OutcomePass, time.Second)
	c.IncCleanupFailures("x")
	c.RecordCommand("x", qametrics.StatusOK, time.Second)
	c.RecordStateTransition("Idle", "Connecting")
}

// -------------------------------------------------------------------------
// Helpers
// -------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec with the given labels.
func counterValue(t *testing.T, vec *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()

	counter, err := vec.GetMetricWithLabelValues(labels...)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues(%v): %v", labels, err)
	}

	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write metric: %v", err)
	}

	return m.GetCounter().GetValue()
}
