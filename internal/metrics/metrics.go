package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScansStarted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "croaudit_scans_started_total",
			Help: "Total number of audit scans started",
		},
	)

	ScansFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "croaudit_scans_finished_total",
			Help: "Total number of audit scans that reached a terminal state",
		},
		[]string{"outcome"},
	)

	ScansActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "croaudit_scans_active",
			Help: "Number of audit scans currently in flight",
		},
	)

	PhaseTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "croaudit_scan_phase_transitions_total",
			Help: "Phase boundaries crossed by running scans",
		},
		[]string{"phase"},
	)

	MonthlyUplift = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "croaudit_report_monthly_uplift",
			Help:    "Modeled monthly revenue uplift of completed reports",
			Buckets: prometheus.ExponentialBuckets(1000, 4, 8),
		},
	)

	ContactsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "croaudit_contacts_submitted_total",
			Help: "Contact submissions by result",
		},
		[]string{"result"},
	)
)
