// Package metrics exposes Prometheus counters for the financial core and
// its periodic jobs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SplitsApplied counts committed jar allocations (chore rewards and
	// allowance payments alike).
	SplitsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "familybank_splits_applied_total",
		Help: "Number of jar allocation splits committed to the ledger.",
	})

	// JobRuns counts periodic job executions by job name.
	JobRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familybank_job_runs_total",
		Help: "Number of periodic job executions.",
	}, []string{"job"})

	// JobItemFailures counts per-item failures inside periodic jobs.
	JobItemFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "familybank_job_item_failures_total",
		Help: "Number of items that failed inside a periodic job run.",
	}, []string{"job"})
)
