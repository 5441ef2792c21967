package ratelimit

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kodejudge/kodejudge/internal/config"
)

// scriptedLimiter returns canned decisions keyed by window size.
type scriptedLimiter struct {
	decisions  map[int]*Decision
	err        error
	calls      int
	identities []string
	windows    []int
}

func (l *scriptedLimiter) Allow(ctx context.Context, identity string, limit, window int) (*Decision, error) {
	l.calls++
	l.identities = append(l.identities, identity)
	l.windows = append(l.windows, window)
	if l.err != nil {
		return nil, l.err
	}
	if d, ok := l.decisions[window]; ok {
		return d, nil
	}
	return &Decision{Allowed: true, Limit: limit, Remaining: limit - 1, Reset: 1000}, nil
}

func limitedConfig() *config.RateLimitConfig {
	return &config.RateLimitConfig{Enabled: true, PerMinute: 20, PerHour: 100, Strategy: "fixed-window"}
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddleware_AllowedSetsHeaders(t *testing.T) {
	limiter := &scriptedLimiter{decisions: map[int]*Decision{
		60: {Allowed: true, Limit: 20, Remaining: 15, Reset: 1700000060},
	}}
	handler := Middleware(limiter, limitedConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "20" {
		t.Errorf("Expected X-RateLimit-Limit 20, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Remaining"); got != "15" {
		t.Errorf("Expected X-RateLimit-Remaining 15, got %q", got)
	}
	if got := rec.Header().Get("X-RateLimit-Reset"); got != "1700000060" {
		t.Errorf("Expected X-RateLimit-Reset 1700000060, got %q", got)
	}
}

func TestMiddleware_Denied(t *testing.T) {
	limiter := &scriptedLimiter{decisions: map[int]*Decision{
		60: {Allowed: false, Limit: 20, Remaining: 0, Reset: 1700000060, RetryAfter: 42},
	}}
	handler := Middleware(limiter, limitedConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("Retry-After"); got != "42" {
		t.Errorf("Expected Retry-After 42, got %q", got)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("Failed to decode body: %v", err)
	}
	if body["error"] != "Rate limit exceeded" {
		t.Errorf("Expected rate limit error, got %v", body["error"])
	}
	if body["message"] != "Too many requests. Please try again in 42 seconds." {
		t.Errorf("Unexpected message: %v", body["message"])
	}
	if body["retry_after"] != float64(42) {
		t.Errorf("Expected retry_after 42, got %v", body["retry_after"])
	}
}

func TestMiddleware_HourlyLimitDenies(t *testing.T) {
	limiter := &scriptedLimiter{decisions: map[int]*Decision{
		60:   {Allowed: true, Limit: 20, Remaining: 10, Reset: 1700000060},
		3600: {Allowed: false, Limit: 100, Remaining: 0, Reset: 1700003600, RetryAfter: 900},
	}}
	handler := Middleware(limiter, limitedConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("Expected status 429, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-RateLimit-Limit"); got != "100" {
		t.Errorf("Expected hourly limit in headers, got %q", got)
	}
}

func TestMiddleware_HourlyCheckSkippedWhenUnset(t *testing.T) {
	limiter := &scriptedLimiter{}
	cfg := limitedConfig()
	cfg.PerHour = 0
	handler := Middleware(limiter, cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if limiter.calls != 1 {
		t.Errorf("Expected only the minute check, got %d calls", limiter.calls)
	}
	if len(limiter.windows) != 1 || limiter.windows[0] != 60 {
		t.Errorf("Expected a 60s window check, got %v", limiter.windows)
	}
}

func TestMiddleware_FailsOpen(t *testing.T) {
	limiter := &scriptedLimiter{err: errors.New("redis down")}
	handler := Middleware(limiter, limitedConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected limiter failure to admit the request, got %d", rec.Code)
	}
}

func TestMiddleware_Disabled(t *testing.T) {
	limiter := &scriptedLimiter{}
	cfg := limitedConfig()
	cfg.Enabled = false
	handler := Middleware(limiter, cfg)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "10.0.0.1:52311"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", rec.Code)
	}
	if limiter.calls != 0 {
		t.Errorf("Expected no limiter calls when disabled, got %d", limiter.calls)
	}
}

func TestMiddleware_ExemptPaths(t *testing.T) {
	paths := []string{"/", "/docs", "/docs/oauth2", "/redoc", "/openapi.json", "/health", "/health/ping"}

	for _, path := range paths {
		t.Run(path, func(t *testing.T) {
			limiter := &scriptedLimiter{decisions: map[int]*Decision{
				60: {Allowed: false, Limit: 20, RetryAfter: 10},
			}}
			handler := Middleware(limiter, limitedConfig())(okHandler())

			req := httptest.NewRequest(http.MethodGet, path, nil)
			req.RemoteAddr = "10.0.0.1:52311"
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != http.StatusOK {
				t.Errorf("Expected %s exempt from limiting, got %d", path, rec.Code)
			}
			if limiter.calls != 0 {
				t.Errorf("Expected no limiter calls for %s, got %d", path, limiter.calls)
			}
		})
	}
}

func TestClientIdentity(t *testing.T) {
	tests := []struct {
		name       string
		remoteAddr string
		forwarded  string
		userID     string
		want       string
	}{
		{"peer address", "10.0.0.1:52311", "", "", "ip:10.0.0.1"},
		{"forwarded wins", "10.0.0.1:52311", "203.0.113.9", "", "ip:203.0.113.9"},
		{"first forwarded hop", "10.0.0.1:52311", "203.0.113.9, 10.0.0.2", "", "ip:203.0.113.9"},
		{"user wins over all", "10.0.0.1:52311", "203.0.113.9", "42", "user:42"},
		{"address without port", "10.0.0.1", "", "", "ip:10.0.0.1"},
		{"missing address", "", "", "", "ip:unknown"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}
			if tt.userID != "" {
				req = req.WithContext(WithUserID(req.Context(), tt.userID))
			}

			if got := clientIdentity(req); got != tt.want {
				t.Errorf("Expected identity %q, got %q", tt.want, got)
			}
		})
	}
}

func TestMiddleware_IdentityPassedToLimiter(t *testing.T) {
	limiter := &scriptedLimiter{}
	handler := Middleware(limiter, limitedConfig())(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/submissions/", nil)
	req.RemoteAddr = "192.168.1.7:4242"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(limiter.identities) == 0 || limiter.identities[0] != "ip:192.168.1.7" {
		t.Errorf("Expected identity ip:192.168.1.7, got %v", limiter.identities)
	}
}
