package reconciler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	patchAppliedCounter     prometheus.Counter
	patchIgnoredCounter     prometheus.Counter
	refetchTriggeredCounter prometheus.Counter
	refetchFailureCounter   prometheus.Counter
}

func NewMetrics() *Metrics {
	metrics := new(Metrics)

	metrics.patchAppliedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_reconciler_patch_applied_count",
		Help: "The number of booking status patches applied",
	})

	metrics.patchIgnoredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_reconciler_patch_ignored_count",
		Help: "The number of booking patches ignored (unknown id or unchanged status)",
	})

	metrics.refetchTriggeredCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_reconciler_refetch_triggered_count",
		Help: "The number of silent full refetches triggered",
	})

	metrics.refetchFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_reconciler_refetch_failure_count",
		Help: "The number of silent full refetches that failed",
	})

	return metrics
}

var (
	metrics = NewMetrics()
)
