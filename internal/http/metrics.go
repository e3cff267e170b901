package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sewa/internal/core"
)

// Metrics holds the server's Prometheus collectors. Each server owns its
// registry.
type Metrics struct {
	registry *prometheus.Registry

	requests          *prometheus.CounterVec
	duration          *prometheus.HistogramVec
	billsRecorded     prometheus.Counter
	submissionErrors  *prometheus.CounterVec
	tenantsRegistered prometheus.Counter
	rateLimited       prometheus.Counter
	suspicious        *prometheus.CounterVec
	namesCache        *prometheus.CounterVec
}

func newMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sewa_http_requests_total",
			Help: "HTTP requests by method, route and status.",
		}, []string{"method", "route", "status"}),
		duration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sewa_http_request_duration_seconds",
			Help:    "HTTP request latency by method and route.",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		billsRecorded: f.NewCounter(prometheus.CounterOpts{
			Name: "sewa_bills_recorded_total",
			Help: "Billing records appended to the ledger.",
		}),
		submissionErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sewa_submission_errors_total",
			Help: "Rejected portal and admin requests by error kind.",
		}, []string{"kind"}),
		tenantsRegistered: f.NewCounter(prometheus.CounterOpts{
			Name: "sewa_tenants_registered_total",
			Help: "Tenants added through the admin form.",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Name: "sewa_rate_limited_requests_total",
			Help: "Requests rejected by the per-client rate limit.",
		}),
		suspicious: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sewa_suspicious_requests_total",
			Help: "Requests flagged as scans, by reason.",
		}, []string{"reason"}),
		namesCache: f.NewCounterVec(prometheus.CounterOpts{
			Name: "sewa_names_cache_lookups_total",
			Help: "Tenant name cache lookups by result.",
		}, []string{"result"}),
	}
}

// observe records one finished request. Unmatched paths share a label.
func (m *Metrics) observe(r *http.Request, status int, d time.Duration) {
	route := r.Pattern
	if route == "" {
		route = "unmatched"
	}
	m.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
	m.duration.WithLabelValues(r.Method, route).Observe(d.Seconds())
}

func (m *Metrics) rejected(err error) {
	m.submissionErrors.WithLabelValues(core.ErrorKind(err)).Inc()
}

func (m *Metrics) handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
