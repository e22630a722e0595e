// Package metrics exposes Prometheus collectors fed from the event bus.
package metrics

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vaultwatch/internal/delivery"
	"vaultwatch/internal/eventbus"
	"vaultwatch/internal/monitor"
	"vaultwatch/internal/stream"
)

const namespace = "vaultwatch"

type Metrics struct {
	reg *prometheus.Registry

	batchesQueued  *prometheus.CounterVec
	fragments      *prometheus.CounterVec
	streamState    *prometheus.GaugeVec
	streamMessages *prometheus.CounterVec
	cycles         *prometheus.CounterVec
	cycleDuration  prometheus.Histogram
	cycleEntities  prometheus.Gauge
	cycleDeltas    prometheus.Gauge
}

// New registers every collector on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		batchesQueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "batches_queued_total",
			Help:      "Alert batches accepted by a delivery queue.",
		}, []string{"queue", "kind"}),
		fragments: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "delivery",
			Name:      "fragments_total",
			Help:      "Fragment send outcomes: sent, retry or dropped.",
		}, []string{"queue", "result"}),
		streamState: f.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "state",
			Help:      "Current subscriber state (0 disconnected, 1 connecting, 2 subscribed, 3 error).",
		}, []string{"user", "feed"}),
		streamMessages: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "messages_total",
			Help:      "Feed messages received, by channel.",
		}, []string{"channel"}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycles_total",
			Help:      "Poll cycles by result: ok, no_data or error.",
		}, []string{"result"}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "cycle_duration_seconds",
			Help:      "Wall time of one poll cycle including retries.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		cycleEntities: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "entities",
			Help:      "Vaults fetched in the last cycle.",
		}),
		cycleDeltas: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "poll",
			Name:      "deltas",
			Help:      "Vaults with position changes in the last cycle.",
		}),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// Run feeds the collectors from bus until ctx is done.
func (m *Metrics) Run(ctx context.Context, bus eventbus.Bus) {
	eventbus.Consume(ctx, bus, 256, m.Observe)
}

func (m *Metrics) Observe(e eventbus.Event) {
	switch e.Type {
	case delivery.EventQueued:
		if ev, ok := e.Data.(delivery.Event); ok {
			m.batchesQueued.WithLabelValues(ev.Queue, string(ev.Kind)).Inc()
		}
	case delivery.EventSent, delivery.EventRetry, delivery.EventDropped:
		if ev, ok := e.Data.(delivery.Event); ok {
			m.fragments.WithLabelValues(ev.Queue, e.Type[len("delivery."):]).Inc()
		}
	case stream.EventState:
		if ev, ok := e.Data.(stream.StateEvent); ok {
			m.streamState.WithLabelValues(ev.User, ev.Feed).Set(float64(ev.State))
		}
	case stream.EventMessage:
		if ch, ok := e.Data.(string); ok {
			m.streamMessages.WithLabelValues(ch).Inc()
		}
	case monitor.EventCycle:
		r, ok := e.Data.(monitor.Report)
		if !ok {
			return
		}
		switch {
		case r.NoData:
			m.cycles.WithLabelValues("no_data").Inc()
		case r.Error != "":
			m.cycles.WithLabelValues("error").Inc()
		default:
			m.cycles.WithLabelValues("ok").Inc()
			m.cycleDeltas.Set(float64(r.Deltas))
		}
		m.cycleEntities.Set(float64(r.Entities))
		m.cycleDuration.Observe(r.Took.Seconds())
	}
}
