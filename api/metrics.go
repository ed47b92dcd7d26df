package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prometheus metric names.
const (
	MetricSalesTotal           = "ticketbooth_sales_total"
	MetricTicketsSoldTotal     = "ticketbooth_tickets_sold_total"
	MetricCorrectionsTotal     = "ticketbooth_corrections_total"
	MetricPendingSales         = "ticketbooth_pending_sales"
	MetricHTTPRequestsTotal    = "ticketbooth_http_requests_total"
	MetricHTTPDurationSeconds  = "ticketbooth_http_request_duration_seconds"
	MetricPendingExpiredTotal  = "ticketbooth_pending_expired_total"
	MetricLedgerDriftEmployees = "ticketbooth_ledger_drift_employees"
)

// Sale outcome labels.
const (
	outcomeAutoApproved = "auto_approved"
	outcomePending      = "pending"
	outcomeConfirmed    = "confirmed"
	outcomeCancelled    = "cancelled"
	outcomeRejected     = "rejected"
)

// Metrics holds the service collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	sales          *prometheus.CounterVec
	ticketsSold    prometheus.Counter
	corrections    prometheus.Counter
	pendingExpired prometheus.Counter
	drift          prometheus.Gauge
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics registers every collector. pending reports the number of held
// repeat purchases at scrape time; it may be nil.
func NewMetrics(pending func() int) *Metrics {
	registry := prometheus.NewRegistry()
	m := &Metrics{
		registry: registry,
		sales: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricSalesTotal,
			Help: "Sale submissions by outcome.",
		}, []string{"outcome"}),
		ticketsSold: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricTicketsSoldTotal,
			Help: "Tickets committed by sales (corrections excluded).",
		}),
		corrections: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricCorrectionsTotal,
			Help: "Committed sale corrections.",
		}),
		pendingExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: MetricPendingExpiredTotal,
			Help: "Pending repeat purchases discarded after the session timeout.",
		}),
		drift: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: MetricLedgerDriftEmployees,
			Help: "Employees whose stored total disagreed with the event stream at the last check.",
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: MetricHTTPRequestsTotal,
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    MetricHTTPDurationSeconds,
			Help:    "HTTP request latency by route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	registry.MustRegister(
		m.sales, m.ticketsSold, m.corrections, m.pendingExpired, m.drift,
		m.httpRequests, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if pending != nil {
		registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: MetricPendingSales,
			Help: "Repeat purchases awaiting confirmation.",
		}, func() float64 { return float64(pending()) }))
	}
	return m
}

// Registry exposes the registry (tests, extra collectors).
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

func (m *Metrics) sale(outcome string, qty int) {
	m.sales.WithLabelValues(outcome).Inc()
	if qty > 0 {
		m.ticketsSold.Add(float64(qty))
	}
}

// Middleware records request counts and latency keyed by route pattern.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				route = p
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		m.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}
