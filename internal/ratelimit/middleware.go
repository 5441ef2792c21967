package ratelimit

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/kodejudge/kodejudge/internal/config"
)

// exemptPrefixes lists path prefixes never rate limited, so probes and
// documentation stay reachable under load.
var exemptPrefixes = []string{"/docs", "/redoc", "/openapi.json", "/health"}

type userIDKey struct{}

// WithUserID tags a request context with an authenticated user, which
// then takes precedence over the client address as limit identity.
func WithUserID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, userIDKey{}, id)
}

// UserID returns the user identity from the context, if one was set.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey{}).(string)
	return id
}

// Middleware returns an HTTP middleware enforcing the configured
// per-minute and per-hour limits. Limiter failures admit the request:
// a broken limiter must not take the API down.
func Middleware(limiter Limiter, cfg *config.RateLimitConfig) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.Enabled || exemptPath(r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			identity := clientIdentity(r)

			minute, err := limiter.Allow(r.Context(), identity, cfg.PerMinute, 60)
			if err != nil {
				log.Printf("Rate limiting error: %v", err)
				next.ServeHTTP(w, r)
				return
			}
			if !minute.Allowed {
				log.Printf("Rate limit exceeded for %s", identity)
				writeLimited(w, minute)
				return
			}

			if cfg.PerHour > 0 {
				hour, err := limiter.Allow(r.Context(), identity, cfg.PerHour, 3600)
				if err != nil {
					log.Printf("Rate limiting error: %v", err)
				} else if !hour.Allowed {
					log.Printf("Rate limit exceeded for %s", identity)
					writeLimited(w, hour)
					return
				}
			}

			setHeaders(w, minute)
			next.ServeHTTP(w, r)
		})
	}
}

// clientIdentity picks the rate limit identity: authenticated user,
// then forwarded client address, then the direct peer.
func clientIdentity(r *http.Request) string {
	if user := UserID(r.Context()); user != "" {
		return "user:" + user
	}

	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		return "ip:" + strings.TrimSpace(strings.Split(fwd, ",")[0])
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil || host == "" {
		if r.RemoteAddr != "" {
			return "ip:" + r.RemoteAddr
		}
		return "ip:unknown"
	}
	return "ip:" + host
}

func exemptPath(path string) bool {
	if path == "/" || path == "" {
		return true
	}
	for _, prefix := range exemptPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func setHeaders(w http.ResponseWriter, d *Decision) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.Reset, 10))
}

func writeLimited(w http.ResponseWriter, d *Decision) {
	setHeaders(w, d)
	w.Header().Set("Retry-After", strconv.FormatInt(d.RetryAfter, 10))
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusTooManyRequests)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error":       "Rate limit exceeded",
		"message":     fmt.Sprintf("Too many requests. Please try again in %d seconds.", d.RetryAfter),
		"limit":       d.Limit,
		"remaining":   d.Remaining,
		"reset":       d.Reset,
		"retry_after": d.RetryAfter,
	})
}
