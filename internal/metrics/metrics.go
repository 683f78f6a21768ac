package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	ordersPlaced   prometheus.Counter
	orderFailures  *prometheus.CounterVec
	commits        *prometheus.CounterVec
	snapshots      *prometheus.CounterVec
	activeToasts   prometheus.Gauge
	catalogFetches prometheus.Counter
	sessionChanges *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "storefront_http_request_duration_seconds",
				Help:    "HTTP request latency",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		ordersPlaced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_orders_placed_total",
			Help: "Orders committed successfully",
		}),
		orderFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_order_failures_total",
				Help: "Rejected or failed checkouts by reason",
			},
			[]string{"reason"},
		),
		commits: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_commits_total",
				Help: "Persistence commits by backend and result",
			},
			[]string{"backend", "result"},
		),
		snapshots: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_inbound_snapshots_total",
				Help: "Inbound collection snapshots by outcome",
			},
			[]string{"collection", "outcome"},
		),
		activeToasts: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "storefront_active_toasts",
			Help: "Toasts currently shown",
		}),
		catalogFetches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "storefront_catalog_fetches_total",
			Help: "Catalog source fetches on an empty cache",
		}),
		sessionChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "storefront_session_changes_total",
				Help: "Logins, registrations and logouts",
			},
			[]string{"kind"},
		),
	}
	reg.MustRegister(
		m.requests, m.requestLatency, m.ordersPlaced, m.orderFailures, m.commits,
		m.snapshots, m.activeToasts, m.catalogFetches, m.sessionChanges,
	)
	return m
}

func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.requests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.requestLatency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) OrderPlaced() {
	m.ordersPlaced.Inc()
}

func (m *Metrics) OrderFailed(reason string) {
	m.orderFailures.WithLabelValues(reason).Inc()
}

func (m *Metrics) Commit(backend string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.commits.WithLabelValues(backend, result).Inc()
}

// Snapshot records what happened to an inbound snapshot: applied, deferred or stale.
func (m *Metrics) Snapshot(collection, outcome string) {
	m.snapshots.WithLabelValues(collection, outcome).Inc()
}

func (m *Metrics) SetActiveToasts(n int) {
	m.activeToasts.Set(float64(n))
}

func (m *Metrics) CatalogFetched() {
	m.catalogFetches.Inc()
}

func (m *Metrics) SessionChanged(kind string) {
	m.sessionChanges.WithLabelValues(kind).Inc()
}
