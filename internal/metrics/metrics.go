// Package metrics exposes Prometheus collectors for the attendance
// service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Toggles counts controller toggles by outcome
	// (signed_in, signed_out, or the error kind).
	Toggles = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timebook_toggles_total",
		Help: "Toggle operations by outcome.",
	}, []string{"outcome"})

	// ForgottenEntries counts entries force-closed by reconciliation.
	ForgottenEntries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "timebook_forgotten_entries_total",
		Help: "Entries force-closed as forgotten by reconciliation.",
	})

	// ReconcileRuns counts reconciliation passes by result.
	ReconcileRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "timebook_reconcile_runs_total",
		Help: "Reconciliation passes by result.",
	}, []string{"result"})
)
