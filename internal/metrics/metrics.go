// ABOUTME: Prometheus collectors for recovery runs, systemctl commands, agent traffic and server stats
// ABOUTME: Implements the observer and recorder hooks so components report without importing prometheus

package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/warden/internal/bridge"
	"github.com/2389/warden/internal/recovery"
	"github.com/2389/warden/internal/service"
)

const namespace = "warden"

// Metrics holds the registry and every warden collector.
type Metrics struct {
	registry *prometheus.Registry

	recoveryRuns     *prometheus.CounterVec
	recoveryAttempts prometheus.Histogram
	recoveryDuration prometheus.Histogram
	modsDisabled     prometheus.Counter

	serviceCommands *prometheus.CounterVec
	serviceLatency  *prometheus.HistogramVec

	agentConnected prometheus.Gauge
	agentCommands  *prometheus.CounterVec
	agentEvents    *prometheus.CounterVec

	serverPlayers prometheus.Gauge
	serverTPS     prometheus.Gauge

	plugins *prometheus.GaugeVec
}

// New creates a Metrics value with its own registry, including the Go
// runtime and process collectors.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		recoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "runs_total",
			Help:      "Recovery runs by result and failure reason.",
		}, []string{"result", "reason"}),
		recoveryAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "attempts",
			Help:      "Attempts performed per recovery run.",
			Buckets:   prometheus.LinearBuckets(1, 1, 10),
		}),
		recoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "duration_seconds",
			Help:      "Wall time of recovery runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		modsDisabled: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "recovery",
			Name:      "mods_disabled_total",
			Help:      "Mods moved to the disabled directory by recovery.",
		}),
		serviceCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "commands_total",
			Help:      "systemctl invocations by action and result.",
		}, []string{"action", "result"}),
		serviceLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "service",
			Name:      "command_duration_seconds",
			Help:      "systemctl invocation latency.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"action"}),
		agentConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "connected",
			Help:      "1 while an in-game agent is connected.",
		}),
		agentCommands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "commands_total",
			Help:      "Commands dispatched to the agent by type and result.",
		}, []string{"type", "result"}),
		agentEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agent",
			Name:      "events_total",
			Help:      "Messages received from the agent by event name.",
		}, []string{"event"}),
		serverPlayers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "players",
			Help:      "Online players from the last serverStats report.",
		}),
		serverTPS: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "server",
			Name:      "tps",
			Help:      "Ticks per second from the last serverStats report.",
		}),
		plugins: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "plugins",
			Name:      "artifacts",
			Help:      "Mod artifacts on disk by location.",
		}, []string{"location"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.recoveryRuns,
		m.recoveryAttempts,
		m.recoveryDuration,
		m.modsDisabled,
		m.serviceCommands,
		m.serviceLatency,
		m.agentConnected,
		m.agentCommands,
		m.agentEvents,
		m.serverPlayers,
		m.serverTPS,
		m.plugins,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// RecordRun implements recovery.RunRecorder.
func (m *Metrics) RecordRun(_ context.Context, res *recovery.Result) error {
	result := "failure"
	if res.Succeeded {
		result = "success"
	}
	m.recoveryRuns.WithLabelValues(result, string(res.Reason)).Inc()
	m.recoveryAttempts.Observe(float64(res.Attempts))
	m.recoveryDuration.Observe(res.Duration().Seconds())
	m.modsDisabled.Add(float64(len(res.Disabled)))
	return nil
}

// ObserveCommand implements service.Observer.
func (m *Metrics) ObserveCommand(action string, res service.Result) {
	m.serviceCommands.WithLabelValues(action, outcome(res.Success)).Inc()
	m.serviceLatency.WithLabelValues(action).Observe(res.Duration.Seconds())
}

// AgentConnected implements bridge.Observer.
func (m *Metrics) AgentConnected(connected bool) {
	if connected {
		m.agentConnected.Set(1)
		return
	}
	m.agentConnected.Set(0)
	m.serverPlayers.Set(0)
	m.serverTPS.Set(0)
}

// CommandDispatched implements bridge.Observer.
func (m *Metrics) CommandDispatched(msgType bridge.MessageType, err error) {
	m.agentCommands.WithLabelValues(string(msgType), dispatchResult(err)).Inc()
}

// AgentEvent counts one inbound agent message.
func (m *Metrics) AgentEvent(name string) {
	m.agentEvents.WithLabelValues(name).Inc()
}

// SetServerStats records the latest serverStats report.
func (m *Metrics) SetServerStats(st bridge.ServerStats) {
	m.serverPlayers.Set(float64(st.Players))
	m.serverTPS.Set(st.TPS)
}

// SetPluginCounts updates the artifact gauges.
func (m *Metrics) SetPluginCounts(enabled, disabled int) {
	m.plugins.WithLabelValues("enabled").Set(float64(enabled))
	m.plugins.WithLabelValues("disabled").Set(float64(disabled))
}

func outcome(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}

func dispatchResult(err error) string {
	switch {
	case err == nil:
		return "sent"
	case errors.Is(err, bridge.ErrNotConnected):
		return "not_connected"
	case errors.Is(err, bridge.ErrSendFailure):
		return "send_failed"
	default:
		return "rejected"
	}
}

var (
	_ recovery.RunRecorder = (*Metrics)(nil)
	_ service.Observer     = (*Metrics)(nil)
	_ bridge.Observer      = (*Metrics)(nil)
)
