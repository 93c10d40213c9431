// Package metrics exposes Prometheus collectors for warden.
//
// A Metrics value owns a private registry and implements the hook interfaces
// of the other packages, so it can be passed straight into their configs:
//
//   - service.Observer: systemctl command counts and latency
//   - bridge.Observer: agent connection state and dispatched commands
//   - recovery.RunRecorder: recovery outcomes and disabled mods
//
// AgentEvent and SetServerStats track inbound agent traffic; the player and
// TPS gauges drop to zero when the agent disconnects.
//
// Plugin directory gauges are refreshed with SetPluginCounts, typically from
// the plugins.Registry watcher. Handler serves the registry in the
// Prometheus text or OpenMetrics format.
package metrics
