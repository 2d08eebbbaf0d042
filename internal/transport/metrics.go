package transport

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	connectionEstablishedCounter prometheus.Counter
	connectionFailureCounter     prometheus.Counter
	reconnectScheduledCounter    prometheus.Counter
	framesReceivedCounter        prometheus.Counter
	frameParseFailureCounter     prometheus.Counter
	messagesSentCounter          prometheus.Counter
	sendsDroppedCounter          prometheus.Counter
	connectionStatusGauge        prometheus.Gauge
}

func NewMetrics() *Metrics {
	metrics := new(Metrics)

	metrics.connectionEstablishedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_connection_established_count",
		Help: "The number of times the notification channel was established",
	})

	metrics.connectionFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_connection_failure_count",
		Help: "The number of failed connection attempts",
	})

	metrics.reconnectScheduledCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_reconnect_scheduled_count",
		Help: "The number of reconnection attempts scheduled after an abnormal close",
	})

	metrics.framesReceivedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_frames_received_count",
		Help: "The number of frames received on the notification channel",
	})

	metrics.frameParseFailureCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_frame_parse_failure_count",
		Help: "The number of frames dropped because they were not valid JSON",
	})

	metrics.messagesSentCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_messages_sent_count",
		Help: "The number of outbound messages written to the channel",
	})

	metrics.sendsDroppedCounter = promauto.NewCounter(prometheus.CounterOpts{
		Name: "booking_sync_transport_sends_dropped_count",
		Help: "The number of outbound messages dropped because the channel was not open",
	})

	metrics.connectionStatusGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "booking_sync_transport_connection_status",
		Help: "Whether the notification channel is currently open (1) or not (0)",
	})

	return metrics
}

var (
	metrics = NewMetrics()
)
