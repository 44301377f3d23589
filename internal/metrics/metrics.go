// Package metrics registers the Prometheus instruments the session loop and
// dispatcher update. Modelled on runZeroInc-sockstats/runZeroInc-conniver's
// pkg/exporter, which registers a custom prometheus.Collector over raw
// tcp_info; there is no equivalent per-socket kernel struct to re-read here,
// so this package uses plain Counter/Gauge instruments instead of a
// Collect-on-scrape collector.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles every instrument the server updates. It is constructed
// once at process start and threaded explicitly into the session loop and
// dispatcher — no package-level globals, per spec.md §9.
type Metrics struct {
	SessionsTotal    prometheus.Counter
	ActiveSessions   prometheus.Gauge
	CommandsTotal    *prometheus.CounterVec
	InterruptsTotal  prometheus.Counter
	FramingErrors    prometheus.Counter
	ProtocolErrors   prometheus.Counter
}

// New creates and registers the instrument set against reg. Passing a fresh
// prometheus.NewRegistry() keeps tests hermetic; passing
// prometheus.DefaultRegisterer wires it into the process-wide /metrics
// endpoint.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		SessionsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdbstub",
			Name:      "sessions_total",
			Help:      "Number of GDB connections accepted.",
		}),
		ActiveSessions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "gdbstub",
			Name:      "active_sessions",
			Help:      "Number of GDB connections currently being served.",
		}),
		CommandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "gdbstub",
			Name:      "commands_total",
			Help:      "Number of RSP commands dispatched, by command tag.",
		}, []string{"command"}),
		InterruptsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdbstub",
			Name:      "interrupts_total",
			Help:      "Number of 0x03 interrupt bytes observed by the watcher.",
		}),
		FramingErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdbstub",
			Name:      "framing_errors_total",
			Help:      "Number of malformed frames rejected by the codec.",
		}),
		ProtocolErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "gdbstub",
			Name:      "protocol_errors_total",
			Help:      "Number of protocol violations (bad hex, garbled headers) answered with E01.",
		}),
	}
	reg.MustRegister(
		m.SessionsTotal,
		m.ActiveSessions,
		m.CommandsTotal,
		m.InterruptsTotal,
		m.FramingErrors,
		m.ProtocolErrors,
	)
	return m
}
