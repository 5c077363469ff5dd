package server

import (
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/drivesearch-go/internal/logging"
)

const (
	// defaultRateLimit is the per-client requests/second on ingest and
	// search when none is configured.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst when none is configured.
	defaultRateBurst = 20
	// idleTTL is how long an idle client keeps its bucket.
	idleTTL = 5 * time.Minute
	// sweepEvery is the minimum gap between idle sweeps.
	sweepEvery = time.Minute
)

// bucket is one client's token bucket.
type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// clientGate throttles the expensive pipeline routes per client IP. Idle
// buckets are swept lazily on the request path, so there is no background
// goroutine to stop.
type clientGate struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	lastSweep time.Time

	limit rate.Limit
	burst int
	now   func() time.Time

	// rejected is called for every throttled request; may be nil.
	rejected func(r *http.Request)
}

// newClientGate returns a gate allowing rps sustained requests and burst
// instantaneous requests per client IP.
func newClientGate(rps float64, burst int, rejected func(*http.Request)) *clientGate {
	return &clientGate{
		buckets:  make(map[string]*bucket),
		limit:    rate.Limit(rps),
		burst:    burst,
		now:      time.Now,
		rejected: rejected,
	}
}

// take spends one token for ip. When none is available it reports how long
// the client should wait; the reservation is returned to the bucket.
func (g *clientGate) take(ip string) (time.Duration, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	if now.Sub(g.lastSweep) >= sweepEvery {
		g.sweep(now)
	}

	b, ok := g.buckets[ip]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(g.limit, g.burst)}
		g.buckets[ip] = b
	}
	b.seen = now

	res := b.lim.ReserveN(now, 1)
	if !res.OK() {
		return time.Second, false
	}
	if wait := res.DelayFrom(now); wait > 0 {
		res.CancelAt(now)
		return wait, false
	}
	return 0, true
}

// sweep drops buckets idle for longer than idleTTL. Callers hold g.mu.
func (g *clientGate) sweep(now time.Time) {
	g.lastSweep = now
	for ip, b := range g.buckets {
		if now.Sub(b.seen) > idleTTL {
			delete(g.buckets, ip)
		}
	}
}

// wrap rejects throttled requests with 429, a Retry-After in whole seconds
// and the error envelope.
func (g *clientGate) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		wait, ok := g.take(ip)
		if !ok {
			retry := max(1, int(math.Ceil(wait.Seconds())))
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.Int("retry_after_s", retry),
			)
			if g.rejected != nil {
				g.rejected(r)
			}
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeError(w, http.StatusTooManyRequests, "Too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP returns the remote IP without the port. Forwarding headers are
// not trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
