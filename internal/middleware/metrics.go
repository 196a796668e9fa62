package middleware

import (
	"net/http"
	"strconv"
	"time"

	"transit-pass-api/internal/metrics"
)

// MetricsMiddleware records request counts and latency per chi route pattern.
// Unmatched requests are grouped under "unmatched" to keep label cardinality bounded.
func MetricsMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			route := routePattern(r)
			if route == "" {
				route = "unmatched"
			}
			metrics.HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(rw.statusCode)).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(route).Observe(time.Since(start).Seconds())
		})
	}
}
