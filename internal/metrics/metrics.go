// metrics/metrics.go
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the service's Prometheus metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	registry *prometheus.Registry

	httpRequests     *prometheus.CounterVec
	httpDuration     *prometheus.HistogramVec
	tokenRefreshes   *prometheus.CounterVec
	settlements      *prometheus.CounterVec
	upstreamRequests *prometheus.CounterVec
}

// NewCollector registers all metrics on a fresh registry
func NewCollector() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbinvoice_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "qbinvoice_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
		tokenRefreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbinvoice_token_refreshes_total",
			Help: "OAuth token refresh attempts by result",
		}, []string{"result"}),
		settlements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbinvoice_settlements_total",
			Help: "Invoice settlements by outcome",
		}, []string{"outcome"}),
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "qbinvoice_quickbooks_requests_total",
			Help: "QuickBooks API requests by operation and status class",
		}, []string{"operation", "status"}),
	}

	c.registry.MustRegister(
		c.httpRequests,
		c.httpDuration,
		c.tokenRefreshes,
		c.settlements,
		c.upstreamRequests,
		prometheus.NewGoCollector(),
	)
	return c
}

// Handler serves the registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// TokenRefresh counts a refresh attempt
func (c *Collector) TokenRefresh(success bool) {
	if c == nil {
		return
	}
	result := "success"
	if !success {
		result = "failure"
	}
	c.tokenRefreshes.WithLabelValues(result).Inc()
}

// Settlement counts a settlement by outcome (completed, unconfirmed,
// incomplete, rejected, failed)
func (c *Collector) Settlement(outcome string) {
	if c == nil {
		return
	}
	c.settlements.WithLabelValues(outcome).Inc()
}

// UpstreamRequest counts a QuickBooks API call
func (c *Collector) UpstreamRequest(operation string, status int) {
	if c == nil {
		return
	}
	class := "error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	c.upstreamRequests.WithLabelValues(operation, class).Inc()
}

// Middleware records request counts and latency per mux route template
func (c *Collector) Middleware(next http.Handler) http.Handler {
	if c == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unmatched"
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		c.httpRequests.WithLabelValues(r.Method, route, strconv.Itoa(rec.status)).Inc()
		c.httpDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
