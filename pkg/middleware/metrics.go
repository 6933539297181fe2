package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/competition-retrieval/pkg/metrics"
)

// Metrics returns middleware that records HTTP request count, latency, and
// in-flight gauge.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			duration := time.Since(start).Seconds()
			path := normalizePath(r.URL.Path)

			m.HTTPRequestsTotal.WithLabelValues(
				r.Method,
				path,
				strconv.Itoa(sw.status),
			).Inc()

			m.HTTPRequestDuration.WithLabelValues(
				r.Method,
				path,
			).Observe(duration)
		})
	}
}

// statusWriter wraps http.ResponseWriter to capture the response status code.
type statusWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (sw *statusWriter) WriteHeader(code int) {
	if !sw.wroteHeader {
		sw.status = code
		sw.wroteHeader = true
	}
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	if !sw.wroteHeader {
		sw.wroteHeader = true
	}
	return sw.ResponseWriter.Write(b)
}

var knownPaths = map[string]bool{
	"/api/v1/search":              true,
	"/api/v1/evaluate":            true,
	"/api/v1/passages":            true,
	"/api/v1/index/rebuild":       true,
	"/api/v1/index/stats":         true,
	"/api/v1/cache/stats":         true,
	"/api/v1/cache/invalidate":    true,
	"/api/v1/analytics":           true,
	"/api/v1/analytics/snapshots": true,
	"/api/v1/admin/keys":          true,
	"/health/live":                true,
	"/health/ready":               true,
}

// normalizePath keeps label cardinality bounded by folding unknown paths
// into "other".
func normalizePath(path string) string {
	path = strings.TrimSuffix(path, "/")
	if knownPaths[path] {
		return path
	}
	switch {
	case strings.HasPrefix(path, "/api/v1/passages/"):
		return "/api/v1/passages/{id}"
	case strings.HasPrefix(path, "/api/v1/admin/keys/"):
		return "/api/v1/admin/keys/{id}"
	}
	return "other"
}
