// Package metrics exposes Prometheus instrumentation for the scenario pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ScenariosSeeded = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runway_scenarios_seeded_total",
		Help: "Total number of scenarios seeded, labelled by scenario type.",
	}, []string{"scenario_type"})

	ScenariosApplied = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runway_scenarios_applied_total",
		Help: "Total number of scenario applies, labelled by scenario type.",
	}, []string{"scenario_type"})

	EmptyDeltas = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runway_empty_deltas_total",
		Help: "Applies that matched no events, labelled by scenario type.",
	}, []string{"scenario_type"})

	Commits = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runway_commits_total",
		Help: "Commit attempts, labelled by outcome (committed, conflict, error).",
	}, []string{"outcome"})

	Discards = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runway_discards_total",
		Help: "Total number of scenarios discarded.",
	})

	RuleBreaches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "runway_rule_breaches_total",
		Help: "Breached rule evaluations, labelled by rule type and severity.",
	}, []string{"rule_type", "severity"})

	ApplyDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "runway_apply_duration_ms",
		Help:    "Scenario apply latency in milliseconds, from snapshot load to persisted delta.",
		Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500},
	})

	EventsImported = promauto.NewCounter(prometheus.CounterOpts{
		Name: "runway_events_imported_total",
		Help: "Total number of canonical events imported.",
	})
)
