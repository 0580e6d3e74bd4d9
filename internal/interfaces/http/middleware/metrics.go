package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mirono/webtrees/internal/infrastructure/monitoring/prometheus"
)

// MetricsMiddleware records per-request prometheus series: request count,
// latency, response size and in-flight gauge.
type MetricsMiddleware struct {
	metrics *prometheus.AppMetrics
}

// NewMetricsMiddleware creates a MetricsMiddleware.
func NewMetricsMiddleware(metrics *prometheus.AppMetrics) *MetricsMiddleware {
	return &MetricsMiddleware{metrics: metrics}
}

// Handler returns the middleware handler. The path label is the chi route
// pattern ("/api/v1/trees/{treeID}"), available only after routing, which
// keeps the label cardinality bounded by the route table.
func (m *MetricsMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newResponseRecorder(w)

		active := m.metrics.HTTPActiveRequests.WithLabelValues(r.Method)
		active.Inc()
		defer active.Dec()

		next.ServeHTTP(rec, r)

		pattern := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if p := rctx.RoutePattern(); p != "" {
				pattern = p
			}
		}

		m.metrics.HTTPRequestsTotal.WithLabelValues(r.Method, pattern, strconv.Itoa(rec.status)).Inc()
		m.metrics.HTTPRequestDuration.WithLabelValues(r.Method, pattern).Observe(time.Since(start).Seconds())
		m.metrics.HTTPResponseSize.WithLabelValues(r.Method, pattern).Observe(float64(rec.bytes))
	})
}
