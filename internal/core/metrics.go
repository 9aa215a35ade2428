package core

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine's Prometheus collectors. Each Engine owns its own
// registry so tests can build several engines in one process.
type Metrics struct {
	Registry *prometheus.Registry

	EventsReceived    *prometheus.CounterVec
	EventsRejected    prometheus.Counter
	ModuleErrors      *prometheus.CounterVec
	Actions           *prometheus.CounterVec
	Commands          *prometheus.CounterVec
	QuarantinePending prometheus.Gauge
}

// NewMetrics creates and registers all collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		Registry: reg,
		EventsReceived: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildshield_events_received_total",
				Help: "Guild events received from the bus",
			},
			[]string{"type"},
		),
		EventsRejected: f.NewCounter(prometheus.CounterOpts{
			Name: "guildshield_events_rejected_total",
			Help: "Guild events dropped because they failed validation",
		}),
		ModuleErrors: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildshield_module_errors_total",
				Help: "Errors and recovered panics while a module handled an event",
			},
			[]string{"module"},
		),
		Actions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildshield_actions_total",
				Help: "Platform actions attempted by defense modules",
			},
			[]string{"module", "action", "status"}, // status: SUCCESS, FAILED
		),
		Commands: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "guildshield_commands_total",
				Help: "Operator commands by outcome",
			},
			[]string{"command", "outcome"},
		),
		QuarantinePending: f.NewGauge(prometheus.GaugeOpts{
			Name: "guildshield_quarantine_pending",
			Help: "Webhooks currently waiting out their quarantine delay",
		}),
	}
}
