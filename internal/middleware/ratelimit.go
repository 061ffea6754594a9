package middleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// RateLimiter is a fixed-window limiter keyed by client address.
type RateLimiter struct {
	requests map[string]*clientLimit
	mu       sync.Mutex
	limit    int
	window   time.Duration
	now      func() time.Time
	logger   zerolog.Logger
}

type clientLimit struct {
	count     int
	resetTime time.Time
}

func NewRateLimiter(limit int, window time.Duration, logger zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		requests: make(map[string]*clientLimit),
		limit:    limit,
		window:   window,
		now:      time.Now,
		logger:   logger.With().Str("component", "ratelimit").Logger(),
	}
}

// Run evicts expired windows until ctx is done.
func (rl *RateLimiter) Run(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.evict()
		}
	}
}

func (rl *RateLimiter) evict() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()
	for ip, cl := range rl.requests {
		if now.After(cl.resetTime) {
			delete(rl.requests, ip)
		}
	}
}

// Allow reports whether ip may proceed, and if not, how long until its
// window resets.
func (rl *RateLimiter) Allow(ip string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	cl, exists := rl.requests[ip]

	if !exists || now.After(cl.resetTime) {
		rl.requests[ip] = &clientLimit{
			count:     1,
			resetTime: now.Add(rl.window),
		}
		return true, 0
	}

	if cl.count >= rl.limit {
		return false, cl.resetTime.Sub(now)
	}

	cl.count++
	return true, 0
}

func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := getClientIP(r)

		allowed, retryIn := rl.Allow(ip)
		if !allowed {
			rl.logger.Warn().Str("ip", ip).Str("path", r.URL.Path).Msg("Rate limit exceeded")
			secs := int(retryIn.Round(time.Second) / time.Second)
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			json.NewEncoder(w).Encode(map[string]string{"error": "too many requests"})
			return
		}

		next.ServeHTTP(w, r)
	})
}

func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
