package suite

import (
	"time"

	"github.com/dantte-lp/vpnqa/internal/config"
	"github.com/dantte-lp/vpnqa/internal/retry"
	"github.com/dantte-lp/vpnqa/internal/scenario"
)

// Policies are the retry policies cases choose from.
type Policies struct {
	// Flaky reruns cases that depend on the remote service.
	Flaky retry.Policy

	// Once runs deterministic failure cases exactly one time.
	Once retry.Policy

	// Offline runs the no-uplink case with its longer limit.
	Offline retry.Policy

	// Recovery is Flaky with room for the reconnect wait.
	Recovery retry.Policy
}

// PoliciesFrom derives the case policies from configuration.
func PoliciesFrom(cfg config.RetryConfig, reconnect time.Duration) Policies {
	flaky := retry.Policy{
		MaxReruns:      cfg.MaxReruns,
		Delay:          cfg.Delay,
		AttemptTimeout: cfg.AttemptTimeout,
	}
	recovery := flaky
	recovery.AttemptTimeout += reconnect

	return Policies{
		Flaky:    flaky,
		Once:     retry.Once(cfg.AttemptTimeout),
		Offline:  retry.Once(cfg.OfflineAttemptTimeout),
		Recovery: recovery,
	}
}

// All returns the connect suite followed by the routing suite.
func All(matrix []scenario.Scenario, p Policies) []Case {
	return append(ConnectCases(matrix, p), RoutingCases(p)...)
}
