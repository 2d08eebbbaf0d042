package controller

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	eventNormalizedCounter prometheus.Counter
	eventDroppedCounter    prometheus.Counter
	duplicateFrameCounter  prometheus.Counter
}

func NewMetrics() *Metrics {
	metrics := new(Metrics)

	metrics.eventNormalizedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_event_normalized_count",
		Help: "The number of frames that produced a normalized event",
	})

	metrics.eventDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_event_dropped_count",
		Help: "The number of frames that produced no normalized event",
	})

	metrics.duplicateFrameCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_duplicate_frame_count",
		Help: "The number of frames dropped as duplicates by message id",
	})

	return metrics
}

var (
	metrics = NewMetrics()
)
