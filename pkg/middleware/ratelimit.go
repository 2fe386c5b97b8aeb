package middleware

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/platinummonkey/casedesk/pkg/httputil"
	"github.com/platinummonkey/casedesk/pkg/observability"
)

// RateLimitConfig defines rate limiting configuration
type RateLimitConfig struct {
	// RequestsPerMinute is the sustained rate per client
	RequestsPerMinute int
	// BurstSize allows temporary bursts above the rate
	BurstSize int
	// IdleTTL drops a client's bucket after this long without requests
	IdleTTL time.Duration
	// TrustedProxyHops selects the X-Forwarded-For entry used as the key;
	// zero keys on the peer address
	TrustedProxyHops int
}

// DefaultLoginRateLimitConfig limits credential exchanges per client IP
func DefaultLoginRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
		BurstSize:         5,
		IdleTTL:           10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LoginRateLimiter keeps one token bucket per client IP
type LoginRateLimiter struct {
	config  RateLimitConfig
	mu      sync.Mutex
	clients map[string]*clientLimiter
	now     func() time.Time
}

// NewLoginRateLimiter creates a limiter
func NewLoginRateLimiter(config RateLimitConfig) *LoginRateLimiter {
	if config.RequestsPerMinute <= 0 {
		config.RequestsPerMinute = DefaultLoginRateLimitConfig().RequestsPerMinute
	}
	if config.BurstSize <= 0 {
		config.BurstSize = 1
	}
	if config.IdleTTL <= 0 {
		config.IdleTTL = DefaultLoginRateLimitConfig().IdleTTL
	}
	return &LoginRateLimiter{
		config:  config,
		clients: make(map[string]*clientLimiter),
		now:     time.Now,
	}
}

// Allow consumes one token for key
func (l *LoginRateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	c, ok := l.clients[key]
	if !ok {
		perSecond := rate.Limit(float64(l.config.RequestsPerMinute) / 60)
		c = &clientLimiter{limiter: rate.NewLimiter(perSecond, l.config.BurstSize)}
		l.clients[key] = c
	}
	c.lastSeen = now
	l.mu.Unlock()

	return c.limiter.AllowN(now, 1)
}

// Cleanup removes buckets idle for longer than IdleTTL
func (l *LoginRateLimiter) Cleanup() int {
	cutoff := l.now().Add(-l.config.IdleTTL)

	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// StartCleanup starts a background goroutine to cleanup idle buckets
func (l *LoginRateLimiter) StartCleanup(ctx context.Context) {
	ticker := time.NewTicker(l.config.IdleTTL)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.Cleanup()
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Handler rejects over-limit clients with 429
func (l *LoginRateLimiter) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httputil.TrustedClientIP(r, l.config.TrustedProxyHops)
		if !l.Allow(ip) {
			observability.FromContext(r.Context()).WithField("client_ip", ip).Warn("Login rate limit exceeded")
			retryAfter := int((time.Minute / time.Duration(l.config.RequestsPerMinute)).Seconds())
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfter))
			httputil.WriteTooManyRequests(w, "too many login attempts")
			return
		}
		next.ServeHTTP(w, r)
	})
}
