package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DerivationMetrics tracks engine runs and per-attribute outcomes.
type DerivationMetrics struct {
	runsTotal   prometheus.Counter
	runDuration prometheus.Histogram
	attributes  *prometheus.CounterVec
	lastFailed  prometheus.Gauge
}

// NewDerivationMetrics creates and registers derivation metrics.
func NewDerivationMetrics(cfg Config, registry *prometheus.Registry) *DerivationMetrics {
	dm := &DerivationMetrics{
		runsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "runs_total",
			Help:      "Total number of derivation runs",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "run_duration_seconds",
			Help:      "Duration of derivation runs in seconds",
			Buckets:   cfg.RunDurationBuckets,
		}),
		attributes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "attributes_total",
			Help:      "Attribute outcomes by final state and error kind",
		}, []string{"attribute", "state", "error_kind"}),
		lastFailed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "last_run_failed_attributes",
			Help:      "Number of failed requested attributes in the most recent run",
		}),
	}

	registry.MustRegister(dm.runsTotal, dm.runDuration, dm.attributes, dm.lastFailed)
	return dm
}

// RecordRun records one finished run.
func (dm *DerivationMetrics) RecordRun(duration time.Duration, resolved, failed int) {
	dm.runsTotal.Inc()
	dm.runDuration.Observe(duration.Seconds())
	dm.lastFailed.Set(float64(failed))
}

// RecordAttribute records the outcome of one attribute.
func (dm *DerivationMetrics) RecordAttribute(attribute, state, errorKind string) {
	dm.attributes.WithLabelValues(attribute, state, errorKind).Inc()
}
