package server

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/time/rate"

	"github.com/54b3r/raga-go/internal/logging"
)

const (
	// defaultRateLimit is the per-client request rate (requests/second) on
	// protected endpoints when Config.RateLimit is zero.
	defaultRateLimit = 10
	// defaultRateBurst is the per-client burst when Config.RateBurst is zero.
	defaultRateBurst = 20
	// defaultTrackedClients bounds how many client buckets are kept. The least
	// recently seen client is dropped first and starts over with a full bucket.
	defaultTrackedClients = 10_000
)

// rateLimiter enforces a token bucket per client IP.
type rateLimiter struct {
	buckets *lru.Cache[string, *rate.Limiter]
	rps     rate.Limit
	burst   int
	// retryAfter is the Retry-After value in whole seconds.
	retryAfter string
}

// newRateLimiter builds a limiter allowing rps sustained requests and burst
// instantaneous requests per client. capacity <= 0 selects
// defaultTrackedClients.
func newRateLimiter(rps float64, burst, capacity int) *rateLimiter {
	if capacity <= 0 {
		capacity = defaultTrackedClients
	}
	// lru.New only fails for a non-positive size.
	buckets, _ := lru.New[string, *rate.Limiter](capacity)
	wait := 1
	if rps > 0 && rps < 1 {
		wait = int(math.Ceil(1 / rps))
	}
	return &rateLimiter{
		buckets:    buckets,
		rps:        rate.Limit(rps),
		burst:      burst,
		retryAfter: strconv.Itoa(wait),
	}
}

// bucket returns the client's limiter, creating a full one on first sight.
func (rl *rateLimiter) bucket(ip string) *rate.Limiter {
	if l, ok := rl.buckets.Get(ip); ok {
		return l
	}
	l := rate.NewLimiter(rl.rps, rl.burst)
	// A concurrent first request from the same client may have won the race;
	// keep whichever bucket landed first.
	if prev, ok, _ := rl.buckets.PeekOrAdd(ip, l); ok {
		return prev
	}
	return l
}

// middleware rejects requests over the client's budget with 429, a
// Retry-After header and the standard error body.
func (rl *rateLimiter) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		if rl.bucket(ip).Allow() {
			next.ServeHTTP(w, r)
			return
		}
		logging.FromContext(r.Context()).Warn("rate limit exceeded",
			slog.String("ip", ip),
			slog.String("path", r.URL.Path),
		)
		w.Header().Set("Retry-After", rl.retryAfter)
		writeJSON(r.Context(), w, http.StatusTooManyRequests,
			errorResponse{Error: "rate limit exceeded", Kind: kindRateLimited})
	})
}

// clientIP is RemoteAddr without its port. X-Forwarded-For is not trusted.
func clientIP(r *http.Request) string {
	if i := strings.LastIndexByte(r.RemoteAddr, ':'); i >= 0 {
		return r.RemoteAddr[:i]
	}
	return r.RemoteAddr
}
