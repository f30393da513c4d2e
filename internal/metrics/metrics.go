package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ariefcatur/campus-shop/internal/orders"
)

type ServerMetrics struct {
	Registry  *prometheus.Registry
	Requests  *prometheus.CounterVec
	LatencyMS *prometheus.HistogramVec
	OrderOps  *prometheus.CounterVec
}

// NewServerMetrics uses its own registry so several instances can coexist
// in one process.
func NewServerMetrics(service string) *ServerMetrics {
	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"service": service}

	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "campus_shop",
		Name:        "http_requests_total",
		Help:        "Total number of HTTP requests.",
		ConstLabels: labels,
	}, []string{"handler", "status"})
	latency := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   "campus_shop",
		Name:        "http_request_duration_ms",
		Help:        "HTTP request latency in milliseconds.",
		Buckets:     []float64{5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000},
		ConstLabels: labels,
	}, []string{"handler"})
	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   "campus_shop",
		Name:        "order_operations_total",
		Help:        "Order workflow operations by outcome (ok or error kind).",
		ConstLabels: labels,
	}, []string{"op", "outcome"})

	reg.MustRegister(requests, latency, ops,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return &ServerMetrics{Registry: reg, Requests: requests, LatencyMS: latency, OrderOps: ops}
}

func (m *ServerMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}

// Middleware labels requests by chi route pattern, not raw path, to keep
// cardinality bounded.
func (m *ServerMetrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		handler := "unmatched"
		if rc := chi.RouteContext(r.Context()); rc != nil {
			if p := rc.RoutePattern(); p != "" {
				handler = r.Method + " " + strings.TrimSuffix(p, "/")
			}
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		m.Requests.WithLabelValues(handler, strconv.Itoa(status)).Inc()
		m.LatencyMS.WithLabelValues(handler).Observe(float64(time.Since(start).Microseconds()) / 1000)
	})
}

// ObserveOrderOp counts one workflow call; outcome is "ok" or the error kind.
func (m *ServerMetrics) ObserveOrderOp(op string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = string(orders.KindOf(err))
	}
	m.OrderOps.WithLabelValues(op, outcome).Inc()
}
