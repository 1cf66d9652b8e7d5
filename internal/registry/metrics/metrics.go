package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var durationBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1}

// Metrics provides observability for the registry module.
// Tracks operation outcomes and durations, fee flow and the read cache.
type Metrics struct {
	Operations        *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	FeesCollectedWei  prometheus.Counter
	Withdrawals       *prometheus.CounterVec
	CacheHits         *prometheus.CounterVec
	CacheMisses       *prometheus.CounterVec
}

// New creates a Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the registry metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() so instances do not collide.
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_operations_total",
			Help: "Registry operations by operation and result code",
		}, []string{"operation", "result"}),
		OperationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "namereg_operation_duration_seconds",
			Help:    "Duration of registry operations including the transaction",
			Buckets: durationBuckets,
		}, []string{"operation"}),
		FeesCollectedWei: factory.NewCounter(prometheus.CounterOpts{
			Name: "namereg_fees_collected_wei_total",
			Help: "Fees accepted by register and renew, in wei",
		}),
		Withdrawals: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_withdrawals_total",
			Help: "Administrator withdrawals by result",
		}, []string{"result"}),
		CacheHits: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_cache_hits_total",
			Help: "Read cache hits by lookup kind",
		}, []string{"kind"}),
		CacheMisses: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "namereg_cache_misses_total",
			Help: "Read cache misses by lookup kind",
		}, []string{"kind"}),
	}
}

// ObserveOperation records the outcome and duration of one operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveOperation(operation, result string, start time.Time) {
	m.Operations.WithLabelValues(operation, result).Inc()
	m.OperationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}

// AddFees records accepted fee value in wei.
func (m *Metrics) AddFees(wei float64) {
	m.FeesCollectedWei.Add(wei)
}

func (m *Metrics) IncrementWithdrawal(result string) {
	m.Withdrawals.WithLabelValues(result).Inc()
}

func (m *Metrics) RecordCacheHit(kind string) {
	m.CacheHits.WithLabelValues(kind).Inc()
}

func (m *Metrics) RecordCacheMiss(kind string) {
	m.CacheMisses.WithLabelValues(kind).Inc()
}
