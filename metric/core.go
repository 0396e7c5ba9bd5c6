package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains the platform-level metrics shared by all connections.
// Backend- and sink-specific metrics are registered separately through the
// MetricsRegistry.
type Metrics struct {
	// Session metrics
	SessionStatus   *prometheus.GaugeVec
	ReconnectsTotal *prometheus.CounterVec
	ConnectDuration *prometheus.HistogramVec
	GateTimeouts    *prometheus.CounterVec

	// Acquisition metrics
	ValuesReceived *prometheus.CounterVec
	SweepDuration  *prometheus.HistogramVec
	TagReadErrors  *prometheus.CounterVec
	MonitoredItems *prometheus.GaugeVec

	// Analytics metrics
	AlarmTransitions *prometheus.CounterVec
	OutliersTotal    *prometheus.CounterVec
	BaselineResets   *prometheus.CounterVec

	// Sink metrics
	EventsPublished *prometheus.CounterVec
	SinkErrors      *prometheus.CounterVec
}

// NewMetrics creates a new Metrics instance with all platform metrics
func NewMetrics() *Metrics {
	return &Metrics{
		SessionStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datalogger",
				Subsystem: "session",
				Name:      "status",
				Help:      "Session status (0=disconnected, 1=connecting, 2=connected, 3=reconnecting)",
			},
			[]string{"connection"},
		),

		ReconnectsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "session",
				Name:      "reconnects_total",
				Help:      "Total number of successful session re-establishments",
			},
			[]string{"connection"},
		),

		ConnectDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "datalogger",
				Subsystem: "session",
				Name:      "connect_duration_seconds",
				Help:      "Time spent establishing a session",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"connection"},
		),

		GateTimeouts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "gate",
				Name:      "timeouts_total",
				Help:      "Operations that failed to acquire the connection gate in time",
			},
			[]string{"connection", "operation"},
		),

		ValuesReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "acquire",
				Name:      "values_received_total",
				Help:      "Total acquired values, by acquisition mode",
			},
			[]string{"connection", "mode"},
		),

		SweepDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "datalogger",
				Subsystem: "acquire",
				Name:      "sweep_duration_seconds",
				Help:      "Duration of one poll sweep over all active tags",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"connection"},
		),

		TagReadErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "acquire",
				Name:      "tag_read_errors_total",
				Help:      "Per-tag read or registration failures",
			},
			[]string{"connection", "tag"},
		),

		MonitoredItems: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: "datalogger",
				Subsystem: "acquire",
				Name:      "monitored_items",
				Help:      "Monitored items currently registered on the subscription",
			},
			[]string{"connection"},
		),

		AlarmTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "analytics",
				Name:      "alarm_transitions_total",
				Help:      "Alarm state transitions, by target state",
			},
			[]string{"connection", "state"},
		),

		OutliersTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "analytics",
				Name:      "outliers_total",
				Help:      "Values classified as statistical outliers",
			},
			[]string{"connection"},
		),

		BaselineResets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "analytics",
				Name:      "baseline_resets_total",
				Help:      "Baseline accumulator resets (bad quality, conversion failure, toggle)",
			},
			[]string{"connection", "reason"},
		),

		EventsPublished: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "events",
				Name:      "published_total",
				Help:      "Events handed to sinks, by sink and kind",
			},
			[]string{"sink", "kind"},
		),

		SinkErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "datalogger",
				Subsystem: "events",
				Name:      "sink_errors_total",
				Help:      "Sink delivery failures",
			},
			[]string{"sink"},
		),
	}
}
