package middleware

import (
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// RequestLogger logs one line per request with method, route, status and duration.
// Server errors log at error level, client errors at warn.
func RequestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := wrap(w)

			next.ServeHTTP(rw, r)

			fields := []zap.Field{
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rw.statusCode),
				zap.Duration("duration", time.Since(start)),
				zap.String("client_ip", GetClientKey(r)),
			}
			if pattern := routePattern(r); pattern != "" {
				fields = append(fields, zap.String("route", pattern))
			}
			if id := chimw.GetReqID(r.Context()); id != "" {
				fields = append(fields, zap.String("request_id", id))
			}

			switch {
			case rw.statusCode >= http.StatusInternalServerError:
				log.Error("request completed", fields...)
			case rw.statusCode >= http.StatusBadRequest:
				log.Warn("request completed", fields...)
			default:
				log.Info("request completed", fields...)
			}
		})
	}
}
