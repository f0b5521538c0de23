// Package telemetry provides Prometheus-based metrics recording for
// invocation execution.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Recorder receives execution measurements from the runner. Implementations
// must be safe for concurrent use.
type Recorder interface {
	// ObserveInvocation records a completed (or failed) invocation.
	ObserveInvocation(agent, status string, duration time.Duration)

	// IncEvent counts one event committed to a session log.
	IncEvent(author string, partial bool)

	// IncTransfer counts one agent-to-agent transfer request.
	IncTransfer(target string)

	// IncPause counts one invocation parked on a pending long-running call.
	IncPause(agent string)
}

// PrometheusRecorder implements Recorder on Prometheus collectors.
type PrometheusRecorder struct {
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	eventsTotal        *prometheus.CounterVec
	transfersTotal     *prometheus.CounterVec
	pausesTotal        *prometheus.CounterVec
}

// NewPrometheusRecorder creates a recorder registered on the default
// registry.
func NewPrometheusRecorder() *PrometheusRecorder {
	return NewPrometheusRecorderWith(prometheus.DefaultRegisterer)
}

// NewPrometheusRecorderWith creates a recorder registered on the given
// registerer. Tests use a private registry to avoid duplicate registration.
func NewPrometheusRecorderWith(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		invocationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloom_invocations_total",
				Help: "Total number of invocations by entry agent and terminal status",
			},
			[]string{"agent", "status"},
		),
		invocationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "agentloom_invocation_duration_seconds",
				Help:    "Duration of invocations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"agent"},
		),
		eventsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloom_events_total",
				Help: "Total number of events committed to session logs",
			},
			[]string{"author", "kind"},
		),
		transfersTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloom_transfers_total",
				Help: "Total number of agent-to-agent transfer requests",
			},
			[]string{"target"},
		),
		pausesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "agentloom_pauses_total",
				Help: "Total number of invocations parked on pending long-running calls",
			},
			[]string{"agent"},
		),
	}
}

// ObserveInvocation implements Recorder.
func (p *PrometheusRecorder) ObserveInvocation(agent, status string, duration time.Duration) {
	p.invocationsTotal.WithLabelValues(agent, status).Inc()
	p.invocationDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// IncEvent implements Recorder.
func (p *PrometheusRecorder) IncEvent(author string, partial bool) {
	kind := "full"
	if partial {
		kind = "partial"
	}
	p.eventsTotal.WithLabelValues(author, kind).Inc()
}

// IncTransfer implements Recorder.
func (p *PrometheusRecorder) IncTransfer(target string) {
	p.transfersTotal.WithLabelValues(target).Inc()
}

// IncPause implements Recorder.
func (p *PrometheusRecorder) IncPause(agent string) {
	p.pausesTotal.WithLabelValues(agent).Inc()
}

// NoopRecorder discards all measurements.
type NoopRecorder struct{}

// ObserveInvocation implements Recorder.
func (NoopRecorder) ObserveInvocation(string, string, time.Duration) {}

// IncEvent implements Recorder.
func (NoopRecorder) IncEvent(string, bool) {}

// IncTransfer implements Recorder.
func (NoopRecorder) IncTransfer(string) {}

// IncPause implements Recorder.
func (NoopRecorder) IncPause(string) {}
