package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"transit-pass-api/internal/metrics"
)

func okHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func TestRateLimiter_AllowsBurstThenBlocks(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		assert.True(t, rl.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, rl.Allow("10.0.0.1"))

	// Keys are independent.
	assert.True(t, rl.Allow("10.0.0.2"))
}

func TestRateLimiter_EvictIdle(t *testing.T) {
	rl := NewRateLimiter(1, time.Minute)
	defer rl.Stop()

	require.True(t, rl.Allow("10.0.0.1"))
	require.False(t, rl.Allow("10.0.0.1"))

	rl.evictIdle(time.Now().Add(2 * time.Hour))

	assert.True(t, rl.Allow("10.0.0.1"), "evicted client starts with a full bucket")
	rl.Stop()
}

func TestRateLimitMiddleware(t *testing.T) {
	rl := NewRateLimiter(2, time.Minute)
	defer rl.Stop()

	h := RateLimitMiddleware(rl)(http.HandlerFunc(okHandler))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/clients", nil)
		req.RemoteAddr = "192.0.2.10:5555"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		return rr
	}

	rr := send()
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "2", rr.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", rr.Header().Get("X-RateLimit-Remaining"))

	assert.Equal(t, http.StatusOK, send().Code)

	rr = send()
	assert.Equal(t, http.StatusTooManyRequests, rr.Code)
	assert.Equal(t, "0", rr.Header().Get("X-RateLimit-Remaining"))
	assert.JSONEq(t, `{"error":"rate limit exceeded"}`, rr.Body.String())
}

func TestGetClientKey(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "192.0.2.1:1234", "192.0.2.1"},
		{"forwarded chain", map[string]string{"X-Forwarded-For": "203.0.113.7, 10.0.0.1"}, "10.0.0.1:80", "203.0.113.7"},
		{"real ip", map[string]string{"X-Real-IP": "198.51.100.4"}, "10.0.0.1:80", "198.51.100.4"},
		{"no port", nil, "pipe", "pipe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, GetClientKey(req))
		})
	}
}

func TestRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	r := chi.NewRouter()
	r.Use(RequestLogger(zap.New(core)))
	r.Get("/clients/{client_id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/clients/abc", nil))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, zap.WarnLevel, entry.Level)
	ctx := entry.ContextMap()
	assert.Equal(t, "/clients/{client_id}", ctx["route"])
	assert.EqualValues(t, http.StatusNotFound, ctx["status"])
}

func TestMetricsMiddleware(t *testing.T) {
	r := chi.NewRouter()
	r.Use(MetricsMiddleware())
	r.Get("/plans/{plan_id}", okHandler)

	counter := metrics.HTTPRequestsTotal.WithLabelValues("/plans/{plan_id}", http.MethodGet, "200")
	before := testutil.ToFloat64(counter)

	for _, id := range []string{"a", "b"} {
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/plans/"+id, nil))
		require.Equal(t, http.StatusOK, rr.Code)
	}

	assert.Equal(t, before+2, testutil.ToFloat64(counter))
}

func TestTracingMiddleware_PassesThrough(t *testing.T) {
	r := chi.NewRouter()
	r.Use(TracingMiddleware())
	r.Get("/health", okHandler)

	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "OK", rr.Body.String())
}
