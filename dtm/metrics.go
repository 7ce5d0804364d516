package dtm

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the prometheus instruments of the control loop.
type Metrics struct {
	ReferenceVectors       prometheus.Counter
	CompensationDispatched prometheus.Counter
	CompensationSuppressed prometheus.Counter
	PeerSendFailures       prometheus.Counter
	DeviceFailures         *prometheus.CounterVec
	TaskFailures           prometheus.Counter
	QueueDepth             prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		ReferenceVectors: f.NewCounter(prometheus.CounterOpts{
			Name: "dtm_reference_vectors_total",
			Help: "Total number of reference vectors accepted by the traffic manager.",
		}),
		CompensationDispatched: f.NewCounter(prometheus.CounterOpts{
			Name: "dtm_compensation_vectors_dispatched_total",
			Help: "Total number of compensation vectors handed to peer senders.",
		}),
		CompensationSuppressed: f.NewCounter(prometheus.CounterOpts{
			Name: "dtm_compensation_vectors_suppressed_total",
			Help: "Total number of compensation vectors withheld by the update controller.",
		}),
		PeerSendFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dtm_peer_send_failures_total",
			Help: "Total number of failed peer deliveries.",
		}),
		DeviceFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "dtm_device_config_failures_total",
			Help: "Total number of failed device configuration requests.",
		}, []string{"operation"}),
		TaskFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "dtm_dispatch_task_failures_total",
			Help: "Total number of dispatch tasks that returned an error.",
		}),
		QueueDepth: f.NewGauge(prometheus.GaugeOpts{
			Name: "dtm_dispatch_queue_depth",
			Help: "Number of dispatch tasks waiting for a worker.",
		}),
	}
}
