package httpmiddleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func newTestLimiter(cfg RateLimitConfig, now *time.Time) *RateLimiter {
	l := NewRateLimiter(cfg)
	l.now = func() time.Time { return *now }
	return l
}

func request(remoteAddr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/coupons/apply", nil)
	req.RemoteAddr = remoteAddr
	return req
}

func TestRateLimiter_OverLimit(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newTestLimiter(RateLimitConfig{Max: 2, Window: time.Minute}, &now).Middleware()(okHandler())

	for i := range 2 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:9999"))
		require.Equal(t, http.StatusOK, w.Code, "request %d", i+1)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}

	w := httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.1:1111"))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "0", w.Header().Get("X-RateLimit-Remaining"))
	assert.Equal(t, "60", w.Header().Get("Retry-After"))

	var body map[string]string
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	assert.Equal(t, "Too many requests", body["message"])

	// A different client has its own budget.
	w = httptest.NewRecorder()
	h.ServeHTTP(w, request("10.0.0.2:9999"))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(RateLimitConfig{Max: 10, Window: time.Minute}, &now)

	for range 10 {
		ok, _, _ := l.Allow("k")
		require.True(t, ok)
	}
	ok, _, _ := l.Allow("k")
	require.False(t, ok)

	// A quarter into the next window, 75% of the previous 10 still count.
	now = now.Add(75 * time.Second)
	allowed := 0
	for range 10 {
		if ok, _, _ := l.Allow("k"); ok {
			allowed++
		}
	}
	assert.Equal(t, 3, allowed)

	// Two windows later everything has expired.
	now = now.Add(2 * time.Minute)
	ok, remaining, _ := l.Allow("k")
	assert.True(t, ok)
	assert.Equal(t, 9, remaining)
}

func TestRateLimiter_Evict(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := newTestLimiter(RateLimitConfig{Max: 1, Window: time.Minute}, &now)
	l.Allow("stale")

	now = now.Add(3 * time.Minute)
	l.Allow("fresh")
	l.evict()

	l.mu.Lock()
	defer l.mu.Unlock()
	assert.NotContains(t, l.buckets, "stale")
	assert.Contains(t, l.buckets, "fresh")
}

func TestRateLimiter_Disabled(t *testing.T) {
	h := NewRateLimiter(RateLimitConfig{Max: 0}).Middleware()(okHandler())
	for range 5 {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, request("10.0.0.1:1"))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRateLimiter_RunStopsOnCancel(t *testing.T) {
	l := NewRateLimiter(RateLimitConfig{Max: 1, Window: time.Millisecond})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		l.Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestClientIP(t *testing.T) {
	req := request("192.168.1.1:4444")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	req.Header.Set("X-Real-IP", "198.51.100.2")

	assert.Equal(t, "192.168.1.1", ClientIP(req, false))
	assert.Equal(t, "203.0.113.7", ClientIP(req, true))

	req.Header.Del("X-Forwarded-For")
	assert.Equal(t, "198.51.100.2", ClientIP(req, true))

	bare := request("not-a-hostport")
	assert.Equal(t, "not-a-hostport", ClientIP(bare, true))
}
