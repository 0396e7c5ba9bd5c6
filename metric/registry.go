// Package metric manages Prometheus metric registration and the core
// platform metrics of the data logger. Components receive a *MetricsRegistry
// through their dependencies; a nil registry disables metrics entirely.
package metric

import (
	stderrors "errors"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/Martenstenden/Data-Logger-sub001/errors"
)

// MetricsRegistry manages the registration and lifecycle of metrics
type MetricsRegistry struct {
	prometheusRegistry *prometheus.Registry
	Metrics            *Metrics
	registeredMetrics  map[string]prometheus.Collector
	mu                 sync.RWMutex
}

// NewMetricsRegistry creates a new metrics registry with core platform
// metrics and the Go runtime collectors pre-registered.
func NewMetricsRegistry() *MetricsRegistry {
	promReg := prometheus.NewRegistry()

	r := &MetricsRegistry{
		prometheusRegistry: promReg,
		registeredMetrics:  make(map[string]prometheus.Collector),
	}

	r.Metrics = NewMetrics()
	promReg.MustRegister(
		r.Metrics.SessionStatus,
		r.Metrics.ReconnectsTotal,
		r.Metrics.ConnectDuration,
		r.Metrics.GateTimeouts,
		r.Metrics.ValuesReceived,
		r.Metrics.SweepDuration,
		r.Metrics.TagReadErrors,
		r.Metrics.MonitoredItems,
		r.Metrics.AlarmTransitions,
		r.Metrics.OutliersTotal,
		r.Metrics.BaselineResets,
		r.Metrics.EventsPublished,
		r.Metrics.SinkErrors,
	)

	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return r
}

// PrometheusRegistry returns the underlying Prometheus registry
func (r *MetricsRegistry) PrometheusRegistry() *prometheus.Registry {
	return r.prometheusRegistry
}

// CoreMetrics returns the core platform metrics
func (r *MetricsRegistry) CoreMetrics() *Metrics {
	return r.Metrics
}

// Register registers a component-specific collector under service.metric
// naming. Duplicate registrations are invalid; Prometheus-level conflicts
// surface as invalid too so a component restart does not take the process
// down.
func (r *MetricsRegistry) Register(serviceName, metricName string, collector prometheus.Collector) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", serviceName, metricName)
	if _, exists := r.registeredMetrics[key]; exists {
		return errors.WrapInvalid(
			fmt.Errorf("metric %s already registered for service %s", metricName, serviceName),
			"MetricsRegistry", "Register", "duplicate metric registration")
	}

	if err := r.prometheusRegistry.Register(collector); err != nil {
		var alreadyRegErr prometheus.AlreadyRegisteredError
		if stderrors.As(err, &alreadyRegErr) {
			return errors.WrapInvalid(err, "MetricsRegistry", "Register",
				fmt.Sprintf("prometheus conflict for metric %s", metricName))
		}
		return errors.WrapFatal(err, "MetricsRegistry", "Register",
			"register collector with prometheus")
	}

	r.registeredMetrics[key] = collector
	return nil
}

// Unregister removes a metric from the registry
func (r *MetricsRegistry) Unregister(serviceName, metricName string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := fmt.Sprintf("%s.%s", serviceName, metricName)
	collector, exists := r.registeredMetrics[key]
	if !exists {
		return false
	}

	ok := r.prometheusRegistry.Unregister(collector)
	if ok {
		delete(r.registeredMetrics, key)
	}
	return ok
}
