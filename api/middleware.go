package api

import (
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// RequestLogger logs one structured line per request. 5xx responses are
// logged at error level, 4xx at warn.
func RequestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			fields := []zap.Field{
				zap.Int("status", status),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("query", r.URL.RawQuery),
				zap.String("ip", clientIP(r)),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("latency", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())),
			}

			switch {
			case status >= 500:
				logger.Error("request failed", fields...)
			case status >= 400:
				logger.Warn("client error", fields...)
			default:
				logger.Info("request completed", fields...)
			}
		})
	}
}

// limiterIdleTTL is how long a client's bucket survives without requests.
const limiterIdleTTL = 10 * time.Minute

type ipEntry struct {
	lim  *rate.Limiter
	seen time.Time
}

// ipLimiter hands out one token bucket per client IP and forgets clients
// that have been idle for longer than ttl.
type ipLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*ipEntry
	r         rate.Limit
	b         int
	ttl       time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func newIPLimiter(r rate.Limit, b int) *ipLimiter {
	return &ipLimiter{
		limiters: make(map[string]*ipEntry),
		r:        r,
		b:        b,
		ttl:      limiterIdleTTL,
		now:      time.Now,
	}
}

func (l *ipLimiter) get(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) >= l.ttl {
		l.sweep(now)
	}

	e, ok := l.limiters[key]
	if !ok {
		e = &ipEntry{lim: rate.NewLimiter(l.r, l.b)}
		l.limiters[key] = e
	}
	e.seen = now
	return e.lim
}

// sweep drops idle entries. Caller holds mu.
func (l *ipLimiter) sweep(now time.Time) {
	for key, e := range l.limiters {
		if now.Sub(e.seen) >= l.ttl {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// RateLimitByIP answers 429 once a client exceeds r requests per second
// with burst b. A non-positive r disables limiting.
func RateLimitByIP(r rate.Limit, b int) func(http.Handler) http.Handler {
	if r <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	limiter := newIPLimiter(r, b)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if !limiter.get(clientIP(req)).Allow() {
				writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
					Error: "too many requests",
					Code:  "rate_limited",
				})
				return
			}
			next.ServeHTTP(w, req)
		})
	}
}

// clientIP is RemoteAddr without the port. RealIP has already replaced it
// when the request came through a proxy.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
