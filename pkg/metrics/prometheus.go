package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus is a Collector backed by a dedicated prometheus registry.
type Prometheus struct {
	registry      *prometheus.Registry
	calls         *prometheus.CounterVec
	latency       *prometheus.HistogramVec
	subscriptions prometheus.Gauge
}

var _ Collector = (*Prometheus)(nil)
var _ Exposer = (*Prometheus)(nil)

// NewPrometheus creates a Collector registered under the given
// namespace.
func NewPrometheus(namespace string) *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry: registry,
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Completed RPC calls by kind and outcome code.",
		}, []string{"kind", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "RPC call latency by kind.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"kind"}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_active_subscriptions",
			Help:      "Currently active WebSocket subscriptions.",
		}),
	}
	registry.MustRegister(p.calls, p.latency, p.subscriptions)
	return p
}

// ObserveCall implements Collector.
func (p *Prometheus) ObserveCall(kind, code string, duration time.Duration) {
	p.calls.WithLabelValues(kind, code).Inc()
	p.latency.WithLabelValues(kind).Observe(duration.Seconds())
}

// SubscriptionStarted implements Collector.
func (p *Prometheus) SubscriptionStarted() { p.subscriptions.Inc() }

// SubscriptionEnded implements Collector.
func (p *Prometheus) SubscriptionEnded() { p.subscriptions.Dec() }

// Handler serves the scrape endpoint for this collector's registry.
func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
