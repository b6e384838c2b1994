// Package metrics exposes Prometheus counters for the emergency access flow.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// DetectorRuns counts completed inactivity detector batches.
	DetectorRuns = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "family_shield",
		Name:      "detector_runs_total",
		Help:      "Completed inactivity detector runs.",
	})

	// DetectorTriggered counts inactive -> pending_verification transitions.
	DetectorTriggered = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "family_shield",
		Name:      "detector_triggered_total",
		Help:      "Shields moved to pending_verification by the detector.",
	})

	// DetectorUserFailures counts users skipped because processing failed.
	DetectorUserFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "family_shield",
		Name:      "detector_user_failures_total",
		Help:      "Users the detector failed to process.",
	})

	// AccessDecisions counts guardian access decisions by type and outcome.
	AccessDecisions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "family_shield",
		Name:      "access_decisions_total",
		Help:      "Emergency access decisions.",
	}, []string{"access_type", "outcome"})

	// AuditWriteFailures counts audit rows that could not be persisted.
	AuditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "family_shield",
		Name:      "audit_write_failures_total",
		Help:      "Audit log writes that failed.",
	})
)

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
