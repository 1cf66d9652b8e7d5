package outbox

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks outbox delivery.
type Metrics struct {
	Published       prometheus.Counter
	PublishFailures prometheus.Counter
}

func NewMetrics() *Metrics {
	return NewMetricsWithRegistry(prometheus.DefaultRegisterer)
}

func NewMetricsWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Published: factory.NewCounter(prometheus.CounterOpts{
			Name: "namereg_outbox_published_total",
			Help: "Registry events delivered to the message bus",
		}),
		PublishFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "namereg_outbox_publish_failures_total",
			Help: "Outbox batches that failed to publish",
		}),
	}
}
