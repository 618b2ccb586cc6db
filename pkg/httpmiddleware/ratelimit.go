package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// RateLimitConfig configures the sliding-window limiter.
type RateLimitConfig struct {
	// Max requests per Window and key.
	Max    int
	Window time.Duration
	// Key identifies the client; defaults to ClientIP.
	Key func(*http.Request) string
	// Skip exempts requests from limiting, e.g. provider callbacks.
	Skip func(*http.Request) bool
}

// counter approximates a sliding window from the counts of the current and
// the previous fixed window.
type counter struct {
	start time.Time
	curr  float64
	prev  float64
}

type limiter struct {
	max    int
	window time.Duration

	mu       sync.Mutex
	counters map[string]*counter
}

func newLimiter(cfg RateLimitConfig) *limiter {
	return &limiter{max: cfg.Max, window: cfg.Window, counters: make(map[string]*counter)}
}

// take records a request for key at now. It reports whether the request is
// allowed, how many remain and when the current window ends.
func (l *limiter) take(key string, now time.Time) (ok bool, remaining int, reset time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	start := now.Truncate(l.window)
	c, found := l.counters[key]
	switch {
	case !found:
		c = &counter{start: start}
		l.counters[key] = c
	case start.Sub(c.start) >= 2*l.window:
		*c = counter{start: start}
	case start.After(c.start):
		*c = counter{start: start, prev: c.curr}
	}

	weight := 1 - float64(now.Sub(c.start))/float64(l.window)
	used := c.prev*weight + c.curr
	reset = c.start.Add(l.window)
	if used >= float64(l.max) {
		return false, 0, reset
	}
	c.curr++
	return true, max(0, int(float64(l.max)-used-1)), reset
}

// evict drops counters idle for two windows.
func (l *limiter) evict(now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, c := range l.counters {
		if now.Sub(c.start) >= 2*l.window {
			delete(l.counters, key)
		}
	}
}

// RateLimit rejects clients over the limit with 429. Idle counters are
// evicted in the background until ctx is done.
func RateLimit(ctx context.Context, cfg RateLimitConfig) Middleware {
	if cfg.Key == nil {
		cfg.Key = ClientIP
	}
	l := newLimiter(cfg)

	go func() {
		t := time.NewTicker(2 * cfg.Window)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-t.C:
				l.evict(now)
			}
		}
	}()

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Skip != nil && cfg.Skip(r) {
				next.ServeHTTP(w, r)
				return
			}

			now := time.Now()
			ok, remaining, reset := l.take(cfg.Key(r), now)

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if !ok {
				h.Set("Retry-After", strconv.Itoa(int(math.Ceil(reset.Sub(now).Seconds()))))
				writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the first X-Forwarded-For hop, X-Real-IP, or the remote
// address host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
