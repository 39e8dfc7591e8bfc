// Package metrics exposes Prometheus collectors for the gate. Every method is
// safe on a nil *Collectors, which is how metrics are disabled.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "guildgate"

// Collectors owns a private registry and all gate metrics.
type Collectors struct {
	reg *prometheus.Registry

	admission     *prometheus.CounterVec
	ledgerOps     *prometheus.CounterVec
	sweepDeleted  *prometheus.CounterVec
	stateIssued   *prometheus.CounterVec
	stateConsumed *prometheus.CounterVec
	oauthExchange *prometheus.CounterVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	feedClients   prometheus.Gauge
	feedDropped   prometheus.Counter
}

// New registers all collectors on a fresh registry, including the Go runtime
// and process collectors.
func New() *Collectors {
	c := &Collectors{
		reg: prometheus.NewRegistry(),
		admission: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "admission_decisions_total",
			Help:      "Admission evaluations by decision.",
		}, []string{"decision"}),
		ledgerOps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_operations_total",
			Help:      "Moderation ledger operations by op and result.",
		}, []string{"op", "result"}),
		sweepDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_deleted_total",
			Help:      "Rows removed by background sweeps.",
		}, []string{"table"}),
		stateIssued: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_tokens_issued_total",
			Help:      "OAuth state tokens issued by integration type.",
		}, []string{"integration"}),
		stateConsumed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "state_tokens_consumed_total",
			Help:      "OAuth state token consume attempts by result.",
		}, []string{"result"}),
		oauthExchange: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "oauth_exchanges_total",
			Help:      "Authorization code exchanges by result.",
		}, []string{"result"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route pattern and status class.",
		}, []string{"method", "route", "status_class"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route pattern.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
		feedClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "feed_clients",
			Help:      "Connected moderation feed subscribers.",
		}),
		feedDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "feed_events_dropped_total",
			Help:      "Feed events dropped because a subscriber queue was full.",
		}),
	}

	c.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.admission,
		c.ledgerOps,
		c.sweepDeleted,
		c.stateIssued,
		c.stateConsumed,
		c.oauthExchange,
		c.httpRequests,
		c.httpDuration,
		c.feedClients,
		c.feedDropped,
	)
	return c
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collectors) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{Registry: c.reg})
}

func (c *Collectors) AdmissionDecision(decision string) {
	if c == nil {
		return
	}
	c.admission.WithLabelValues(decision).Inc()
}

func (c *Collectors) LedgerOp(op, result string) {
	if c == nil {
		return
	}
	c.ledgerOps.WithLabelValues(op, result).Inc()
}

func (c *Collectors) SweepDeleted(table string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.sweepDeleted.WithLabelValues(table).Add(float64(n))
}

func (c *Collectors) StateIssued(integration string) {
	if c == nil {
		return
	}
	c.stateIssued.WithLabelValues(integration).Inc()
}

func (c *Collectors) StateConsumed(result string) {
	if c == nil {
		return
	}
	c.stateConsumed.WithLabelValues(result).Inc()
}

func (c *Collectors) OAuthExchange(result string) {
	if c == nil {
		return
	}
	c.oauthExchange.WithLabelValues(result).Inc()
}

// ObserveHTTP records one finished request. route is the mux pattern, not the
// raw path, to keep label cardinality bounded.
func (c *Collectors) ObserveHTTP(method, route string, status int, d time.Duration) {
	if c == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status/100)+"xx").Inc()
	c.httpDuration.WithLabelValues(route).Observe(d.Seconds())
}

func (c *Collectors) FeedClientsDelta(delta int) {
	if c == nil {
		return
	}
	c.feedClients.Add(float64(delta))
}

func (c *Collectors) FeedDropped() {
	if c == nil {
		return
	}
	c.feedDropped.Inc()
}
