package middleware

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter hands out one token bucket per client key.
type RateLimiter struct {
	mu          sync.Mutex
	clients     map[string]*clientLimiter
	limit       rate.Limit
	burst       int
	idleTTL     time.Duration
	cleanupTick *time.Ticker
	stopCleanup chan struct{}
	stopOnce    sync.Once
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a new rate limiter allowing requests per window for each
// client, with bursts up to the same amount.
func NewRateLimiter(requests int, window time.Duration) *RateLimiter {
	rl := &RateLimiter{
		clients:     make(map[string]*clientLimiter),
		limit:       rate.Limit(float64(requests) / window.Seconds()),
		burst:       requests,
		idleTTL:     time.Hour,
		cleanupTick: time.NewTicker(5 * time.Minute),
		stopCleanup: make(chan struct{}),
	}

	go rl.cleanup()

	return rl
}

// cleanup periodically drops limiters for clients that have gone quiet.
func (rl *RateLimiter) cleanup() {
	for {
		select {
		case <-rl.cleanupTick.C:
			rl.evictIdle(time.Now())
		case <-rl.stopCleanup:
			return
		}
	}
}

func (rl *RateLimiter) evictIdle(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, c := range rl.clients {
		if now.Sub(c.lastSeen) > rl.idleTTL {
			delete(rl.clients, key)
		}
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (rl *RateLimiter) Stop() {
	rl.stopOnce.Do(func() {
		rl.cleanupTick.Stop()
		close(rl.stopCleanup)
	})
}

// Burst is the number of requests a fresh client may send at once.
func (rl *RateLimiter) Burst() int {
	return rl.burst
}

func (rl *RateLimiter) get(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	c, ok := rl.clients[key]
	if !ok {
		c = &clientLimiter{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[key] = c
	}
	c.lastSeen = time.Now()
	return c.limiter
}

// Allow checks if a request from the given key should be allowed.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.get(key).Allow()
}

// Remaining reports the whole tokens left for key.
func (rl *RateLimiter) Remaining(key string) int {
	n := int(rl.get(key).Tokens())
	if n < 0 {
		return 0
	}
	return n
}

// GetClientKey extracts a client identifier from the request: the first
// X-Forwarded-For hop, then X-Real-IP, then the remote host.
func GetClientKey(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		return strings.TrimSpace(first)
	}

	if realIP := r.Header.Get("X-Real-IP"); realIP != "" {
		return realIP
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimitMiddleware creates a middleware that rate limits requests.
func RateLimitMiddleware(limiter *RateLimiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := GetClientKey(r)
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))

			if !limiter.Allow(key) {
				w.Header().Set("Content-Type", "application/json")
				w.Header().Set("X-RateLimit-Remaining", "0")
				w.WriteHeader(http.StatusTooManyRequests)
				w.Write([]byte(`{"error":"rate limit exceeded"}`))
				return
			}

			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(limiter.Remaining(key)))
			next.ServeHTTP(w, r)
		})
	}
}
