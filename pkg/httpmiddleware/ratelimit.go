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

// RateLimitConfig configures a RateLimiter.
type RateLimitConfig struct {
	// Max is the number of requests a key may make per Window.
	Max int
	// Window is the length of the sliding window.
	Window time.Duration
	// TrustProxy makes the default key use X-Forwarded-For and X-Real-IP.
	// Leave it off unless a proxy overwrites those headers.
	TrustProxy bool
	// KeyFunc overrides how requests are grouped.
	KeyFunc func(*http.Request) string
}

// bucket counts requests in the current fixed window and remembers the
// previous one. The sliding estimate weights the previous count by how much
// of it still overlaps the window ending now.
type bucket struct {
	start time.Time
	curr  int
	prev  int
}

// RateLimiter limits requests per key with a sliding window estimate.
type RateLimiter struct {
	cfg RateLimitConfig
	now func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// NewRateLimiter creates a RateLimiter. Max below 1 disables limiting.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.KeyFunc == nil {
		trust := cfg.TrustProxy
		cfg.KeyFunc = func(r *http.Request) string { return ClientIP(r, trust) }
	}
	return &RateLimiter{
		cfg:     cfg,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
}

// Allow records a request for key and reports whether it is within the
// limit, along with the remaining budget and when the current window ends.
func (l *RateLimiter) Allow(key string) (allowed bool, remaining int, reset time.Time) {
	now := l.now()
	windowStart := now.Truncate(l.cfg.Window)

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	switch {
	case !ok:
		b = &bucket{start: windowStart}
		l.buckets[key] = b
	case windowStart.Sub(b.start) == l.cfg.Window:
		b.start, b.prev, b.curr = windowStart, b.curr, 0
	case windowStart.After(b.start):
		b.start, b.prev, b.curr = windowStart, 0, 0
	}
	reset = b.start.Add(l.cfg.Window)

	overlap := 1 - float64(now.Sub(b.start))/float64(l.cfg.Window)
	used := int(math.Floor(float64(b.prev)*overlap)) + b.curr
	if used >= l.cfg.Max {
		return false, 0, reset
	}
	b.curr++
	return true, l.cfg.Max - used - 1, reset
}

// Run evicts idle keys every window until ctx is done.
func (l *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(l.cfg.Window)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.evict()
		}
	}
}

func (l *RateLimiter) evict() {
	cutoff := l.now().Truncate(l.cfg.Window).Add(-l.cfg.Window)
	l.mu.Lock()
	defer l.mu.Unlock()
	for key, b := range l.buckets {
		if b.start.Before(cutoff) {
			delete(l.buckets, key)
		}
	}
}

// Middleware rejects requests over the limit with 429 and a JSON body.
func (l *RateLimiter) Middleware() Middleware {
	return func(next http.Handler) http.Handler {
		if l.cfg.Max < 1 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, remaining, reset := l.Allow(l.cfg.KeyFunc(r))

			h := w.Header()
			h.Set("X-RateLimit-Limit", strconv.Itoa(l.cfg.Max))
			h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
			h.Set("X-RateLimit-Reset", strconv.FormatInt(reset.Unix(), 10))
			if allowed {
				next.ServeHTTP(w, r)
				return
			}

			retry := max(reset.Sub(l.now()), 0)
			h.Set("Retry-After", strconv.Itoa(int(math.Ceil(retry.Seconds()))))
			h.Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message":"Too many requests"}`))
		})
	}
}

// ClientIP returns the remote host of r. With trustProxy it prefers the first
// X-Forwarded-For entry, then X-Real-IP.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
		if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
			return xri
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
