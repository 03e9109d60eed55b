package telemetry

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the prometheus collectors for the service. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	ProviderCalls    *prometheus.CounterVec
	ProviderLatency  *prometheus.HistogramVec
	DispatchInFlight prometheus.Gauge
	DispatchWaiting  prometheus.Gauge
	AgentFailures    prometheus.Counter
	ToolInvocations  *prometheus.CounterVec
	PipelineDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers collectors on a private registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choir",
			Name:      "provider_calls_total",
			Help:      "Completion provider calls by stage and outcome.",
		}, []string{"stage", "outcome"}),
		ProviderLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "choir",
			Name:      "provider_call_duration_seconds",
			Help:      "Completion provider call latency by stage.",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 20, 40, 80},
		}, []string{"stage"}),
		DispatchInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "choir",
			Name:      "dispatch_in_flight",
			Help:      "Provider calls currently holding a dispatch permit.",
		}),
		DispatchWaiting: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "choir",
			Name:      "dispatch_waiting",
			Help:      "Callers waiting for a dispatch permit.",
		}),
		AgentFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "choir",
			Name:      "agent_failures_total",
			Help:      "Fan-out agent calls replaced by the failure sentinel.",
		}),
		ToolInvocations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "choir",
			Name:      "tool_invocations_total",
			Help:      "Function registry invocations by tool and outcome.",
		}, []string{"tool", "outcome"}),
		PipelineDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "choir",
			Name:      "pipeline_duration_seconds",
			Help:      "End-to-end orchestrator runs by outcome.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 9),
		}, []string{"outcome"}),
	}
	reg.MustRegister(
		m.ProviderCalls,
		m.ProviderLatency,
		m.DispatchInFlight,
		m.DispatchWaiting,
		m.AgentFailures,
		m.ToolInvocations,
		m.PipelineDuration,
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return m
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveProvider records one completion call.
func (m *Metrics) ObserveProvider(stage string, started time.Time, err error) {
	if m == nil {
		return
	}
	if stage == "" {
		stage = "unknown"
	}
	m.ProviderCalls.WithLabelValues(stage, outcome(err)).Inc()
	m.ProviderLatency.WithLabelValues(stage).Observe(time.Since(started).Seconds())
}

// ObserveTool records one registry invocation.
func (m *Metrics) ObserveTool(name string, err error) {
	if m == nil {
		return
	}
	m.ToolInvocations.WithLabelValues(name, outcome(err)).Inc()
}

// ObservePipeline records one orchestrator run.
func (m *Metrics) ObservePipeline(started time.Time, err error) {
	if m == nil {
		return
	}
	m.PipelineDuration.WithLabelValues(outcome(err)).Observe(time.Since(started).Seconds())
}

// AgentFailed counts a sentinel substitution.
func (m *Metrics) AgentFailed() {
	if m == nil {
		return
	}
	m.AgentFailures.Inc()
}

// SetDispatch publishes the dispatch gate occupancy.
func (m *Metrics) SetDispatch(inFlight, waiting int64) {
	if m == nil {
		return
	}
	m.DispatchInFlight.Set(float64(inFlight))
	m.DispatchWaiting.Set(float64(waiting))
}
