package monitoring

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Pass directions used as label values
const (
	DirectionIncoming = "incoming"
	DirectionOutgoing = "outgoing"
)

// Metrics holds all Prometheus metrics for IPC translation
type Metrics struct {
	// Pass metrics
	Passes       *prometheus.CounterVec
	PassDuration *prometheus.HistogramVec

	// Descriptor metrics
	Descriptors       *prometheus.CounterVec
	Handles           *prometheus.CounterVec
	StaticBufferBytes *prometheus.CounterVec

	// Context metrics
	ContextsActive prometheus.Gauge
}

// NewMetrics creates a new metrics collector registered against reg.
// A nil reg falls back to the default registerer.
func NewMetrics(reg prometheus.Registerer, namespace string) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		Passes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_passes_total",
				Help:      "Total number of command buffer translation passes",
			},
			[]string{"direction", "result"},
		),
		PassDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "ipc_pass_duration_seconds",
				Help:      "Command buffer translation pass duration in seconds",
				Buckets:   []float64{.000001, .000005, .00001, .00005, .0001, .0005, .001, .005},
			},
			[]string{"direction"},
		),
		Descriptors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_descriptors_total",
				Help:      "Total number of translate section descriptors processed",
			},
			[]string{"direction", "kind"},
		),
		Handles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_handles_total",
				Help:      "Total number of handles translated",
			},
			[]string{"direction", "mode"},
		),
		StaticBufferBytes: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "ipc_static_buffer_bytes_total",
				Help:      "Total number of static buffer bytes copied between address spaces",
			},
			[]string{"direction"},
		),
		ContextsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "ipc_contexts_active",
				Help:      "Number of request contexts not yet closed",
			},
		),
	}
}

// The recorders below are no-ops on a nil *Metrics so callers can leave
// metrics unconfigured.

// RecordPass records a completed translation pass
func (m *Metrics) RecordPass(direction, result string, duration time.Duration) {
	if m == nil {
		return
	}
	m.Passes.WithLabelValues(direction, result).Inc()
	m.PassDuration.WithLabelValues(direction).Observe(duration.Seconds())
}

// RecordDescriptor records one processed descriptor
func (m *Metrics) RecordDescriptor(direction, kind string) {
	if m == nil {
		return
	}
	m.Descriptors.WithLabelValues(direction, kind).Inc()
}

// RecordHandle records one translated handle
func (m *Metrics) RecordHandle(direction, mode string) {
	if m == nil {
		return
	}
	m.Handles.WithLabelValues(direction, mode).Inc()
}

// RecordStaticBuffer records bytes copied for a static buffer
func (m *Metrics) RecordStaticBuffer(direction string, n int) {
	if m == nil {
		return
	}
	m.StaticBufferBytes.WithLabelValues(direction).Add(float64(n))
}

// IncContextsActive increments open request contexts
func (m *Metrics) IncContextsActive() {
	if m == nil {
		return
	}
	m.ContextsActive.Inc()
}

// DecContextsActive decrements open request contexts
func (m *Metrics) DecContextsActive() {
	if m == nil {
		return
	}
	m.ContextsActive.Dec()
}
