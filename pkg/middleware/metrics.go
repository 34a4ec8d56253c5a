// Package middleware holds the HTTP middleware shared by the query,
// ingestion and analytics services.
package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/near-duplicate-platform/pkg/metrics"
)

// unmatchedRoute labels 404 and 405 responses so scanners cannot grow the
// path label without bound.
const unmatchedRoute = "unmatched"

// Metrics records request count, latency and in-flight requests, labelled
// by method, route and status.
func Metrics(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			m.HTTPRequestsInFlight.Inc()
			defer m.HTTPRequestsInFlight.Dec()

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(sw, r)

			route := routeLabel(r.URL.Path, sw.status)
			m.HTTPRequestsTotal.WithLabelValues(r.Method, route, strconv.Itoa(sw.status)).Inc()
			m.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

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
	sw.wroteHeader = true
	return sw.ResponseWriter.Write(b)
}

// Unwrap exposes the underlying writer to http.ResponseController.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

func routeLabel(path string, status int) string {
	if status == http.StatusNotFound || status == http.StatusMethodNotAllowed {
		return unmatchedRoute
	}
	return normalizePath(path)
}

// normalizePath replaces the document ID segment with {id}.
func normalizePath(path string) string {
	const documents = "/api/v1/documents/"
	rest, ok := strings.CutPrefix(path, documents)
	if !ok || rest == "" || rest == "batch" || rest == "stats" {
		return path
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		return documents + "{id}" + rest[i:]
	}
	return documents + "{id}"
}
