package server

import (
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	// limiterPruneSize is the map size above which idle entries are pruned.
	limiterPruneSize = 500
	limiterMaxIdle   = 10 * time.Minute
)

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter hands out one token bucket per client IP.
type IPRateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	limit   rate.Limit
	burst   int
	now     func() time.Time
}

// NewIPRateLimiter creates a limiter allowing rps requests per second with
// the given burst per IP.
func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		entries: make(map[string]*limiterEntry),
		limit:   rate.Limit(rps),
		burst:   burst,
		now:     time.Now,
	}
}

// Limiter returns the bucket for ip.
func (l *IPRateLimiter) Limiter(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if len(l.entries) > limiterPruneSize {
		cutoff := now.Add(-limiterMaxIdle)
		for k, e := range l.entries {
			if e.lastSeen.Before(cutoff) {
				delete(l.entries, k)
			}
		}
	}

	e, ok := l.entries[ip]
	if !ok {
		e = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[ip] = e
	}
	e.lastSeen = now
	return e.limiter
}

// Middleware rejects requests over the client's budget with 429.
func (l *IPRateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if !l.Limiter(ip).Allow() {
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
				Error:   "rate_limited",
				Message: http.StatusText(http.StatusTooManyRequests),
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}
