package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	OutcomeOK    = "ok"
	OutcomeError = "error"
)

type Metrics struct {
	registry *prometheus.Registry

	// CartOperations counts cart store operations by name and outcome.
	CartOperations *prometheus.CounterVec
	// StoreDuration observes key-value round trips by command.
	StoreDuration *prometheus.HistogramVec
	// EventsPublished counts cart events by type and outcome.
	EventsPublished *prometheus.CounterVec
}

// New builds a metric set on its own registry so tests can create as many as they like.
func New(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		CartOperations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Total cart store operations",
		}, []string{"operation", "outcome"}),
		StoreDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "store_duration_seconds",
			Help:      "Cart snapshot store round trip in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"command"}),
		EventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_published_total",
			Help:      "Cart events handed to the broker",
		}, []string{"event", "outcome"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.CartOperations,
		m.StoreDuration,
		m.EventsPublished,
	)

	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveOperation is nil-safe so callers can run without metrics.
func (m *Metrics) ObserveOperation(operation string, err error) {
	if m == nil {
		return
	}
	m.CartOperations.WithLabelValues(operation, outcome(err)).Inc()
}

func (m *Metrics) ObserveStore(command string, start time.Time) {
	if m == nil {
		return
	}
	m.StoreDuration.WithLabelValues(command).Observe(time.Since(start).Seconds())
}

func (m *Metrics) ObserveEvent(event string, err error) {
	if m == nil {
		return
	}
	m.EventsPublished.WithLabelValues(event, outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return OutcomeError
	}
	return OutcomeOK
}
