package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// CatalogMetrics tracks attribute catalog reloads.
type CatalogMetrics struct {
	reloadsTotal *prometheus.CounterVec
	attributes   prometheus.Gauge
}

// NewCatalogMetrics creates and registers catalog metrics.
func NewCatalogMetrics(cfg Config, registry *prometheus.Registry) *CatalogMetrics {
	cm := &CatalogMetrics{
		reloadsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "catalog_reloads_total",
			Help:      "Catalog reload attempts by result",
		}, []string{"result"}),
		attributes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "catalog_attributes",
			Help:      "Number of attributes in the active catalog",
		}),
	}
	registry.MustRegister(cm.reloadsTotal, cm.attributes)
	return cm
}

// RecordReload records a reload. The attribute gauge only moves on success.
func (cm *CatalogMetrics) RecordReload(err error, attributes int) {
	if err != nil {
		cm.reloadsTotal.WithLabelValues("error").Inc()
		return
	}
	cm.reloadsTotal.WithLabelValues("success").Inc()
	cm.attributes.Set(float64(attributes))
}
