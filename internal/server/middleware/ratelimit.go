package middleware

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterSweepInterval = 10 * time.Minute
	limiterIdleTTL       = 30 * time.Minute
)

type clientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Limiters hands out one token bucket per client address.
type Limiters struct {
	rps   rate.Limit
	burst int

	mu      sync.Mutex
	clients map[string]*clientLimiter
}

func NewLimiters(requestsPerSecond float64, burst int) *Limiters {
	return &Limiters{
		rps:     rate.Limit(requestsPerSecond),
		burst:   burst,
		clients: make(map[string]*clientLimiter),
	}
}

// Allow reports whether client may make a request now.
func (l *Limiters) Allow(client string) bool {
	return l.limiterFor(client, time.Now()).Allow()
}

func (l *Limiters) limiterFor(client string, now time.Time) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	cl, ok := l.clients[client]
	if !ok {
		cl = &clientLimiter{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.clients[client] = cl
	}
	cl.lastAccess = now
	return cl.limiter
}

// Sweep drops limiters idle since before cutoff and returns how many remain.
func (l *Limiters) Sweep(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	for client, cl := range l.clients {
		if cl.lastAccess.Before(cutoff) {
			delete(l.clients, client)
		}
	}
	return len(l.clients)
}

// Run sweeps idle limiters until ctx is done.
func (l *Limiters) Run(ctx context.Context) {
	ticker := time.NewTicker(limiterSweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			l.Sweep(time.Now().Add(-limiterIdleTTL))
		case <-ctx.Done():
			return
		}
	}
}

// RateLimitByIP rejects requests beyond the per-client budget with 429.
// It keys on r.RemoteAddr, so mount it after chi's RealIP.
func RateLimitByIP(l *Limiters) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow(clientKey(r.RemoteAddr)) {
				w.Header().Set("Content-Type", "application/problem+json")
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = w.Write([]byte(`{"title":"Too Many Requests","status":429,"detail":"rate limit exceeded"}`))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// clientKey strips the port so one client maps to one bucket.
func clientKey(remoteAddr string) string {
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		return remoteAddr
	}
	return host
}
