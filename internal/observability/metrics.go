package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the generation pipeline.
type Metrics struct {
	registry      *prometheus.Registry
	Generations   *prometheus.CounterVec
	GenDuration   *prometheus.HistogramVec
	GenIterations *prometheus.HistogramVec
	ToolCalls     *prometheus.CounterVec
	ActiveSession *prometheus.GaugeVec
	TransportErrs *prometheus.CounterVec
}

// NewMetrics constructs a metrics registry with generation collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()

	gens := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scribepatch_generations_total",
		Help: "Completed generation requests by outcome",
	}, []string{"outcome"})

	durs := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribepatch_generation_duration_seconds",
		Help:    "Generation duration in seconds, clone to patches",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
	}, []string{"outcome"})

	iters := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "scribepatch_generation_iterations",
		Help:    "Model rounds consumed per generation",
		Buckets: []float64{1, 2, 3, 5, 8, 10, 15},
	}, []string{"outcome"})

	toolCalls := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scribepatch_tool_calls_total",
		Help: "Tool invocations by tool name",
	}, []string{"tool"})

	active := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scribepatch_transport_active_sessions",
		Help: "Active streaming sessions by transport",
	}, []string{"transport"})

	trErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scribepatch_transport_errors_total",
		Help: "Transport-level errors (handler/streaming) by transport and reason",
	}, []string{"transport", "reason"})

	reg.MustRegister(gens, durs, iters, toolCalls, active, trErrors)

	return &Metrics{
		registry:      reg,
		Generations:   gens,
		GenDuration:   durs,
		GenIterations: iters,
		ToolCalls:     toolCalls,
		ActiveSession: active,
		TransportErrs: trErrors,
	}
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// RecordGeneration records counts, duration, and rounds for one invocation.
func (m *Metrics) RecordGeneration(outcome string, duration time.Duration, iterations int) {
	if m == nil {
		return
	}
	if outcome == "" {
		outcome = "unknown"
	}
	m.Generations.WithLabelValues(outcome).Inc()
	m.GenDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	m.GenIterations.WithLabelValues(outcome).Observe(float64(iterations))
}

// RecordToolCall increments the invocation counter for a tool.
func (m *Metrics) RecordToolCall(tool string) {
	if m == nil {
		return
	}
	if tool == "" {
		tool = "unknown"
	}
	m.ToolCalls.WithLabelValues(tool).Inc()
}

// IncActiveSessions increments the active session gauge.
func (m *Metrics) IncActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Inc()
}

// DecActiveSessions decrements the active session gauge.
func (m *Metrics) DecActiveSessions(transport string) {
	if m == nil {
		return
	}
	m.ActiveSession.WithLabelValues(transport).Dec()
}

// RecordTransportError records a transport-level error.
func (m *Metrics) RecordTransportError(transport, reason string) {
	if m == nil {
		return
	}
	if transport == "" {
		transport = "unknown"
	}
	if reason == "" {
		reason = "unknown"
	}
	m.TransportErrs.WithLabelValues(transport, reason).Inc()
}
