package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// clientEntry pairs a limiter with its last use for eviction.
type clientEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a token bucket per client IP.
type rateLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientEntry

	limit      rate.Limit
	burst      int
	trustProxy bool
	logger     *slog.Logger
}

// staleAfter is how long an idle client's bucket is kept before eviction.
const staleAfter = 10 * time.Minute

func newRateLimiter(perSecond float64, burst int, trustProxy bool, logger *slog.Logger) *rateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &rateLimiter{
		clients:    make(map[string]*clientEntry),
		limit:      rate.Limit(perSecond),
		burst:      burst,
		trustProxy: trustProxy,
		logger:     logger,
	}
}

// allow reports whether a request from ip may proceed now.
func (rl *rateLimiter) allow(ip string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, ok := rl.clients[ip]
	if !ok {
		// Evict stale buckets before growing the map. Amortized over
		// new-client requests, so no background goroutine is needed.
		for addr, e := range rl.clients {
			if now.Sub(e.lastSeen) > staleAfter {
				delete(rl.clients, addr)
			}
		}
		entry = &clientEntry{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.clients[ip] = entry
	}
	entry.lastSeen = now
	return entry.limiter.Allow()
}

func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := rl.clientIP(r)
		if !rl.allow(ip) {
			rl.logger.Warn("rate limit exceeded", "client", ip, "path", r.URL.Path)
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP resolves the client address, honoring X-Forwarded-For only
// when the deployment declares a trusted proxy in front.
func (rl *rateLimiter) clientIP(r *http.Request) string {
	if rl.trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			if first, _, ok := strings.Cut(fwd, ","); ok {
				return strings.TrimSpace(first)
			}
			return strings.TrimSpace(fwd)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
