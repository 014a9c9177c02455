package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the swarmflow prometheus metrics. A collector is scoped to
// one agent process; the agent label distinguishes co-located agents in a
// shared registry.
type Collector struct {
	registry *prometheus.Registry

	MessagesPublished *prometheus.CounterVec
	MessagesConsumed  *prometheus.CounterVec
	MessagesDropped   *prometheus.CounterVec
	BusReconnects     *prometheus.CounterVec
	TurnsProcessed    *prometheus.CounterVec
	SelectionFallback *prometheus.CounterVec
	CompletionRetries *prometheus.CounterVec
}

// NewCollector creates a collector with its own registry.
func NewCollector(namespace string) *Collector {
	registry := prometheus.NewRegistry()
	factory := func(name, help string, labels ...string) *prometheus.CounterVec {
		vec := prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, labels)
		registry.MustRegister(vec)
		return vec
	}

	return &Collector{
		registry:          registry,
		MessagesPublished: factory("bus_messages_published_total", "Messages published to the bus", "agent", "topic"),
		MessagesConsumed:  factory("bus_messages_consumed_total", "Messages consumed from the bus", "agent"),
		MessagesDropped:   factory("bus_messages_dropped_total", "Malformed inbound envelopes dropped", "agent"),
		BusReconnects:     factory("bus_reconnects_total", "Full bus client reconnects", "agent"),
		TurnsProcessed:    factory("turns_processed_total", "Conversation turns processed", "agent"),
		SelectionFallback: factory("selection_fallback_total", "Agent selections resolved by the responsible fallback", "agent"),
		CompletionRetries: factory("completion_retries_total", "LLM completion retry attempts", "agent"),
	}
}

// Handler returns the /metrics HTTP handler for this collector's registry.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
