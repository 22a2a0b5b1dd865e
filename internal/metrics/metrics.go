// Package metrics drží Prometheus metriky telemetrického serveru.
//
// Každá instance má vlastní registry, takže testy si mohou vytvořit čisté metriky.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "telemetry"

// Výsledky ingestu pro label "result".
const (
	ResultAccepted = "accepted"
	ResultRejected = "rejected"
	ResultFailed   = "failed"
)

// Metrics sdružuje všechny metriky služby.
type Metrics struct {
	registry *prometheus.Registry

	IngestTotal    *prometheus.CounterVec
	EventsDropped  prometheus.Counter
	Connections    prometheus.Gauge
	Subscriptions  prometheus.Gauge
	PushDropped    prometheus.Counter
	Revocations    prometheus.Counter
	BroadcastTicks prometheus.Histogram
}

// New vytvoří metriky a zaregistruje je spolu s Go runtime collectory.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		IngestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "messages_total",
			Help:      "Zpracované zprávy ze senzorů podle výsledku",
		}, []string{"result"}),
		EventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "dropped_total",
			Help:      "Události zahozené kvůli plné frontě",
		}),
		Connections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "connections",
			Help:      "Aktuálně připojení klienti",
		}),
		Subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "subscriptions",
			Help:      "Počet aktivních odběrů přes všechna spojení",
		}),
		PushDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "push_dropped_total",
			Help:      "Zprávy zahozené kvůli plné odchozí frontě spojení",
		}),
		Revocations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "revocations_total",
			Help:      "Odběry zrušené kvůli ztrátě oprávnění",
		}),
		BroadcastTicks: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcast_duration_seconds",
			Help:      "Doba jednoho periodického broadcastu",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		m.IngestTotal,
		m.EventsDropped,
		m.Connections,
		m.Subscriptions,
		m.PushDropped,
		m.Revocations,
		m.BroadcastTicks,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry vrací podkladový Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler obsluhuje GET /metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
