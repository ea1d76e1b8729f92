// Package metrics exposes the dispatcher's selection/claim behavior as
// Prometheus instrumentation, surfaced by internal/api's /metrics
// endpoint. An ambient concern (§6 of SPEC_FULL.md), carried despite
// the Non-goals' exclusion of cross-resource scheduling optimality:
// this instruments what already happened, it doesn't change what the
// scheduler decides.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Outcome labels for SelectionsTotal.
const (
	OutcomeSelected        = "selected"
	OutcomeSleep           = "sleep"
	OutcomeDie             = "die"
	OutcomeClaimContention = "claim_contention"
)

var (
	// SelectionsTotal counts get_task_to_run outcomes (spec.md §4.5):
	// one claim_contention increment per lost claim race, plus one
	// increment labeled by how the call ended.
	SelectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxi_dispatcher_selections_total",
			Help: "Outcomes of the selection protocol, by kind.",
		},
		[]string{"outcome"},
	)

	// SelectionDuration tracks how long a get_task_to_run call took,
	// including any claim-contention retries.
	SelectionDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taxi_dispatcher_selection_duration_seconds",
			Help:    "Time spent in the selection protocol per call.",
			Buckets: prometheus.DefBuckets,
		},
	)

	// ClaimRetries counts how many times a single selection call had
	// to retry after losing a claim race before giving up or
	// succeeding.
	ClaimRetries = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "taxi_dispatcher_claim_retries",
			Help:    "Number of claim-contention retries per selection call.",
			Buckets: []float64{0, 1, 2, 3, 5, 8},
		},
	)

	// JobPoolsInitialized counts initialize_new_job_pool calls, by
	// whether they succeeded.
	JobPoolsInitialized = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "taxi_dispatcher_job_pools_initialized_total",
			Help: "initialize_new_job_pool calls, by outcome.",
		},
		[]string{"outcome"},
	)
)

// NewRegistry bundles the collectors above into a dedicated Prometheus
// registry so callers control exactly what's exposed on /metrics
// rather than pulling in the default global registry's Go runtime
// noise by accident.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(SelectionsTotal, SelectionDuration, ClaimRetries, JobPoolsInitialized)
	return reg
}
