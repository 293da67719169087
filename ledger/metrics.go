package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// =============================================================================
// Prometheus Metrics
// =============================================================================

var (
	// movementsTotal counts committed movement entries by change type
	movementsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_movements_total",
		Help: "Total movement entries written by change type",
	}, []string{"change_type"})

	// reconciledLevelsTotal counts stock levels created by reconciliation
	reconciledLevelsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_reconciled_levels_total",
		Help: "Total stock level rows created by lazy reconciliation",
	})

	snapshotsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "stockledger_snapshots_total",
		Help: "Total snapshots taken",
	})

	// operationDuration tracks ledger operation latency
	operationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "stockledger_operation_duration_seconds",
		Help:    "Ledger operation duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12), // 0.5ms to ~1s
	}, []string{"operation"})

	operationErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "stockledger_operation_errors_total",
		Help: "Total failed ledger operations",
	}, []string{"operation"})
)

// observe records duration and failure for one operation.
func observe(operation string, started time.Time, err error) {
	operationDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
	if err != nil {
		operationErrors.WithLabelValues(operation).Inc()
	}
}
