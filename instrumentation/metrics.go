package instrumentation

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics exposes pool-level gauges and counters under the
// "vibur" namespace, labeled by pool name.
type PrometheusMetrics struct {
	poolName string

	created       prometheus.Gauge
	taken         prometheus.Gauge
	waiting       prometheus.Gauge
	borrowTotal   prometheus.Counter
	timeoutTotal  prometheus.Counter
	createTotal   prometheus.Counter
	destroyTotal  prometheus.Counter
	validateFails prometheus.Counter
	criticalDrain prometheus.Counter
	reducerTrims  prometheus.Counter
	borrowLatency prometheus.Histogram
}

// NewPrometheusMetrics registers a pool's metrics against registry. If
// registry is nil, prometheus.DefaultRegisterer is used.
func NewPrometheusMetrics(poolName string, registry prometheus.Registerer) *PrometheusMetrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	if poolName == "" {
		poolName = "default"
	}

	labels := prometheus.Labels{"pool": poolName}
	factory := promauto.With(registry)

	return &PrometheusMetrics{
		poolName: poolName,
		created: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vibur",
			Name:        "pool_created",
			Help:        "Number of ConnHolders currently created (taken + idle).",
			ConstLabels: labels,
		}),
		taken: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vibur",
			Name:        "pool_taken",
			Help:        "Number of ConnHolders currently taken.",
			ConstLabels: labels,
		}),
		waiting: factory.NewGauge(prometheus.GaugeOpts{
			Namespace:   "vibur",
			Name:        "pool_waiting",
			Help:        "Number of callers currently waiting on the borrow queue.",
			ConstLabels: labels,
		}),
		borrowTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_borrow_total",
			Help:        "Total number of successful borrows.",
			ConstLabels: labels,
		}),
		timeoutTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_timeout_total",
			Help:        "Total number of borrow timeouts (VI002).",
			ConstLabels: labels,
		}),
		createTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_created_total",
			Help:        "Total number of raw connections created.",
			ConstLabels: labels,
		}),
		destroyTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_destroyed_total",
			Help:        "Total number of raw connections destroyed.",
			ConstLabels: labels,
		}),
		validateFails: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_validation_failures_total",
			Help:        "Total number of holders that failed validation on take.",
			ConstLabels: labels,
		}),
		criticalDrain: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_critical_drains_total",
			Help:        "Total number of generation rollovers caused by a critical SQLSTATE.",
			ConstLabels: labels,
		}),
		reducerTrims: factory.NewCounter(prometheus.CounterOpts{
			Namespace:   "vibur",
			Name:        "pool_reducer_trims_total",
			Help:        "Total number of idle holders destroyed by the pool reducer.",
			ConstLabels: labels,
		}),
		borrowLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace:   "vibur",
			Name:        "pool_borrow_latency_seconds",
			Help:        "Latency of borrow() calls, in seconds.",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: labels,
		}),
	}
}

func (m *PrometheusMetrics) SetCreated(n int) { m.created.Set(float64(n)) }
func (m *PrometheusMetrics) SetTaken(n int)   { m.taken.Set(float64(n)) }
func (m *PrometheusMetrics) SetWaiting(n int) { m.waiting.Set(float64(n)) }

func (m *PrometheusMetrics) ObserveBorrow(d time.Duration, timedOut bool) {
	m.borrowLatency.Observe(d.Seconds())
	if timedOut {
		m.timeoutTotal.Inc()
	} else {
		m.borrowTotal.Inc()
	}
}

func (m *PrometheusMetrics) IncCreated()            { m.createTotal.Inc() }
func (m *PrometheusMetrics) AddDestroyed(n int)      { m.destroyTotal.Add(float64(n)) }
func (m *PrometheusMetrics) IncValidationFailure()   { m.validateFails.Inc() }
func (m *PrometheusMetrics) IncCriticalDrain()       { m.criticalDrain.Inc() }
func (m *PrometheusMetrics) AddReducerTrims(n int)   { m.reducerTrims.Add(float64(n)) }
