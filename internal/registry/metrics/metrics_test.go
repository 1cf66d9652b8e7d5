package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestObserveOperation(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.ObserveOperation("register", "ok", time.Now())
	m.ObserveOperation("register", "ok", time.Now())
	m.ObserveOperation("register", "invalid_fee", time.Now())

	assert.InDelta(t, 2, testutil.ToFloat64(m.Operations.WithLabelValues("register", "ok")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Operations.WithLabelValues("register", "invalid_fee")), 0)
	assert.Equal(t, 1, testutil.CollectAndCount(m.OperationDuration))
}

func TestFeesAndCache(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.AddFees(1e16)
	m.AddFees(5e15)
	m.RecordCacheHit("record")
	m.RecordCacheMiss("record")
	m.RecordCacheMiss("owned_name")
	m.IncrementWithdrawal("ok")

	assert.InDelta(t, 1.5e16, testutil.ToFloat64(m.FeesCollectedWei), 1)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheHits.WithLabelValues("record")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.CacheMisses.WithLabelValues("owned_name")), 0)
	assert.InDelta(t, 1, testutil.ToFloat64(m.Withdrawals.WithLabelValues("ok")), 0)
}
