package txn

import (
	"sync/atomic"

	"github.com/VictoriaMetrics/metrics"
)

// Prometheus-style metrics of the transaction layer, exported through
// metrics.WritePrometheus (see the cmd package).
var (
	metricStarted         = metrics.NewCounter(`tkv_txn_started_total`)
	metricCommits         = metrics.NewCounter(`tkv_txn_commits_total`)
	metricDiscards        = metrics.NewCounter(`tkv_txn_discards_total`)
	metricFailValidation  = metrics.NewCounter(`tkv_txn_commit_failures_total{reason="validation"}`)
	metricFailPersistence = metrics.NewCounter(`tkv_txn_commit_failures_total{reason="persistence"}`)
	metricMerges          = metrics.NewCounter(`tkv_txn_merges_total`)
	metricUsageViolations = metrics.NewCounter(`tkv_txn_usage_violations_total`)
	metricDroppedNotifies = metrics.NewCounter(`tkv_txn_dropped_notifications_total`)
	metricCommitDuration  = metrics.NewHistogram(`tkv_txn_commit_duration_seconds`)

	// metricActiveContexts counts live contexts across all managers in the
	// process; the gauge reads it lazily on scrape
	metricActiveContexts atomic.Int64

	_ = metrics.NewGauge(`tkv_txn_active_contexts`, func() float64 {
		return float64(metricActiveContexts.Load())
	})
)

// recordUsageViolation counts a detected programming error.
func (m *managerImpl) recordUsageViolation() {
	metricUsageViolations.Inc()
}
