package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/angel-control/angelmon/internal/liveness"
)

// collector holds the hub's self-observability metrics on a private registry.
type collector struct {
	registry *prometheus.Registry

	status       prometheus.Gauge
	primaryAlive prometheus.Gauge
	workerAlive  prometheus.Gauge
	statsStale   prometheus.Gauge
	sseClients   prometheus.Gauge
	subscribers  prometheus.Gauge

	events      *prometheus.CounterVec
	logEntries  *prometheus.CounterVec
	truncations *prometheus.CounterVec
	sseDropped  prometheus.Counter
}

func newCollector() *collector {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &collector{
		registry: registry,
		status: factory.NewGauge(prometheus.GaugeOpts{
			Name: "angelmon_status",
			Help: "Published liveness status (0 offline, 1 standby, 2 active)",
		}),
		primaryAlive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "angelmon_primary_alive",
			Help: "Whether the primary process was found on the last check",
		}),
		workerAlive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "angelmon_worker_alive",
			Help: "Whether the worker process was found on the last check",
		}),
		statsStale: factory.NewGauge(prometheus.GaugeOpts{
			Name: "angelmon_stats_stale",
			Help: "Whether the last metrics snapshot was stale or missing",
		}),
		sseClients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "angelmon_sse_clients",
			Help: "Connected SSE clients",
		}),
		subscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "angelmon_subscribers",
			Help: "Registered in-process subscriptions",
		}),
		events: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "angelmon_events_published_total",
			Help: "Events published by kind",
		}, []string{"kind"}),
		logEntries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "angelmon_log_entries_total",
			Help: "Log entries read by stream",
		}, []string{"stream"}),
		truncations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "angelmon_log_truncations_total",
			Help: "Detected log truncations by stream",
		}, []string{"stream"}),
		sseDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "angelmon_sse_dropped_total",
			Help: "Events dropped for slow SSE clients",
		}),
	}
}

func (c *collector) observeState(state liveness.State) {
	c.status.Set(float64(state.Status))
	c.primaryAlive.Set(boolGauge(state.PrimaryAlive))
	c.workerAlive.Set(boolGauge(state.WorkerAlive))
}

func boolGauge(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// Registry returns the registry holding the hub's metrics.
func (h *Hub) Registry() *prometheus.Registry {
	return h.metrics.registry
}
