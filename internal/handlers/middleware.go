package handlers

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// CORSMiddleware adds CORS headers for frontend access
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ClientLimiter rate-limits requests per client address. Limiters idle long
// enough for their bucket to refill are swept, since a fresh limiter behaves
// the same as a full one.
type ClientLimiter struct {
	mu         sync.Mutex
	m          map[string]*clientEntry
	r          rate.Limit
	b          int
	idle       time.Duration
	lastSweep  time.Time
	now        func() time.Time
	trustProxy bool
}

type clientEntry struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewClientLimiter allows reqPerSec sustained requests per client with the given burst.
// A non-positive rate disables limiting.
func NewClientLimiter(reqPerSec float64, burst int) *ClientLimiter {
	if burst < 1 {
		burst = 1
	}
	cl := &ClientLimiter{
		m:   make(map[string]*clientEntry),
		r:   rate.Limit(reqPerSec),
		b:   burst,
		now: time.Now,
	}
	if reqPerSec > 0 {
		cl.idle = time.Duration(float64(burst) / reqPerSec * float64(time.Second))
	}
	if cl.idle < time.Minute {
		cl.idle = time.Minute
	}
	return cl
}

// TrustForwardedFor keys clients by the X-Forwarded-For hop appended by the
// load balancer. Only enable it when every request arrives through that proxy.
func (cl *ClientLimiter) TrustForwardedFor(trust bool) {
	cl.trustProxy = trust
}

func (cl *ClientLimiter) limiterFor(client string) *rate.Limiter {
	cl.mu.Lock()
	defer cl.mu.Unlock()

	now := cl.now()
	if now.Sub(cl.lastSweep) >= cl.idle {
		cl.sweep(now)
	}

	if e, ok := cl.m[client]; ok {
		e.lastSeen = now
		return e.lim
	}
	e := &clientEntry{lim: rate.NewLimiter(cl.r, cl.b), lastSeen: now}
	cl.m[client] = e
	return e.lim
}

// sweep drops limiters unused for longer than the refill window. Callers hold mu.
func (cl *ClientLimiter) sweep(now time.Time) {
	for client, e := range cl.m {
		if now.Sub(e.lastSeen) >= cl.idle {
			delete(cl.m, client)
		}
	}
	cl.lastSweep = now
}

func (cl *ClientLimiter) size() int {
	cl.mu.Lock()
	defer cl.mu.Unlock()
	return len(cl.m)
}

// Allow reports whether client may make a request now
func (cl *ClientLimiter) Allow(client string) bool {
	if cl == nil || cl.r <= 0 {
		return true
	}
	return cl.limiterFor(client).AllowN(cl.now(), 1)
}

// Wrap rejects requests over the limit with 429
func (cl *ClientLimiter) Wrap(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cl != nil && !cl.Allow(clientAddress(r, cl.trustProxy)) {
			w.Header().Set("Retry-After", "1")
			writeErrorCode(w, http.StatusTooManyRequests, "rate_limited", "too many requests, slow down")
			return
		}
		next(w, r)
	}
}

// clientAddress is the peer address, or with trustProxy the last
// X-Forwarded-For hop, which the load balancer appends itself.
func clientAddress(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			hops := strings.Split(fwd, ",")
			if last := strings.TrimSpace(hops[len(hops)-1]); last != "" {
				return last
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
