package server

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/54b3r/ragcore-go/internal/logging"
)

const (
	// defaultRateLimit is the sustained requests per second allowed per
	// client on limited routes when no explicit limit is configured.
	defaultRateLimit = 10

	// defaultRateBurst is the per-client burst when none is configured.
	defaultRateBurst = 20

	// limiterIdleTTL is how long an unused client bucket is kept.
	limiterIdleTTL = 5 * time.Minute
)

// clientBucket is one client's token bucket and when it was last used.
type clientBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// rateLimiter applies a token bucket per client to the routes it wraps.
// Authenticated clients are keyed by their credential, so several callers
// behind one address do not share a bucket; everyone else is keyed by IP.
type rateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*clientBucket

	rps   rate.Limit
	burst int
	log   *slog.Logger
	now   func() time.Time
}

// newRateLimiter constructs a rateLimiter and starts the goroutine that
// drops idle buckets. The goroutine exits when the returned stop function is
// called.
func newRateLimiter(rps float64, burst int, log *slog.Logger) (*rateLimiter, func()) {
	rl := &rateLimiter{
		buckets: make(map[string]*clientBucket),
		rps:     rate.Limit(rps),
		burst:   burst,
		log:     log,
		now:     time.Now,
	}

	stopCh := make(chan struct{})
	go rl.evictLoop(stopCh)

	return rl, func() { close(stopCh) }
}

// bucket returns the limiter for key, creating it on first use.
func (rl *rateLimiter) bucket(key string) *rate.Limiter {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[key]
	if !ok {
		b = &clientBucket{limiter: rate.NewLimiter(rl.rps, rl.burst)}
		rl.buckets[key] = b
	}
	b.lastSeen = rl.now()
	return b.limiter
}

func (rl *rateLimiter) evictLoop(stopCh <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

// evict drops buckets idle for longer than limiterIdleTTL.
func (rl *rateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-limiterIdleTTL)
	for key, b := range rl.buckets {
		if b.lastSeen.Before(cutoff) {
			delete(rl.buckets, key)
		}
	}
}

// size reports the number of tracked clients.
func (rl *rateLimiter) size() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.buckets)
}

// middleware enforces the limit before delegating to next. A rejected
// request gets 429 with a Retry-After of the whole seconds until a token is
// available.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := clientKey(r)
		res := rl.bucket(key).ReserveN(rl.now(), 1)

		if delay := res.DelayFrom(rl.now()); !res.OK() || delay > 0 {
			res.Cancel()
			logging.FromContext(r.Context()).Warn("rate limit exceeded",
				slog.String("client", key),
				slog.String("path", r.URL.Path),
			)
			w.Header().Set("Retry-After", retryAfter(delay, res.OK()))
			writeJSON(w, r, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded", Code: "rate_limited"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

// retryAfter formats a Retry-After value, at least one second.
func retryAfter(delay time.Duration, ok bool) string {
	if !ok || delay == rate.InfDuration {
		return "60"
	}
	return strconv.Itoa(max(1, int(math.Ceil(delay.Seconds()))))
}

// clientKey identifies the caller for rate limiting: a hash of its
// credential when one is presented, otherwise its IP.
func clientKey(r *http.Request) string {
	if token := requestToken(r); token != "" {
		sum := sha256.Sum256([]byte(token))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	return "ip:" + clientIP(r)
}

// clientIP returns the remote IP without its port. X-Forwarded-For is not
// trusted.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
