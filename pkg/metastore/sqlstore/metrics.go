package sqlstore

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// storeMetrics tracks operation outcomes and the tombstone counter consumed
// by the external sweeper's dashboards. Collectors register once per process
// and are shared between store instances.
type storeMetrics struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	tombstones prometheus.Counter
}

var (
	metricsOnce sync.Once
	metrics     *storeMetrics
)

func newStoreMetrics() *storeMetrics {
	metricsOnce.Do(func() {
		metrics = &storeMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lazurite_metastore_operations_total",
				Help: "Total metadata store operations by name and outcome",
			}, []string{"operation", "outcome"}),
			duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lazurite_metastore_operation_duration_seconds",
				Help:    "Metadata store operation latency by name",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			tombstones: prometheus.NewCounter(prometheus.CounterOpts{
				Name: "lazurite_metastore_tombstoned_rows_total",
				Help: "Total blob and block rows soft-deleted and awaiting external sweep",
			}),
		}
		prometheus.DefaultRegisterer.MustRegister(metrics.operations, metrics.duration, metrics.tombstones)
	})
	return metrics
}

func (m *storeMetrics) observe(op string, started time.Time, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.operations.WithLabelValues(op, outcome).Inc()
	m.duration.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (m *storeMetrics) addTombstones(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.tombstones.Add(float64(n))
}
