package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"github.com/civicconnect/civic-backend/api/responses"
	pkgerrors "github.com/civicconnect/civic-backend/pkg/errors"
	"github.com/civicconnect/civic-backend/pkg/logger"
)

const defaultLimiterIdleTTL = 10 * time.Minute

// ClientRateLimiterConfig sizes the per-client token buckets.
type ClientRateLimiterConfig struct {
	Rate    rate.Limit
	Burst   int
	IdleTTL time.Duration
}

// ClientRateLimiter keeps one token bucket per client. Buckets that sit idle
// for IdleTTL are evicted.
type ClientRateLimiter struct {
	cfg     ClientRateLimiterConfig
	buckets *cache.Cache
	mu      sync.Mutex
}

func NewClientRateLimiter(cfg ClientRateLimiterConfig) *ClientRateLimiter {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = defaultLimiterIdleTTL
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &ClientRateLimiter{
		cfg:     cfg,
		buckets: cache.New(cfg.IdleTTL, 2*cfg.IdleTTL),
	}
}

func (l *ClientRateLimiter) limiterFor(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	if v, ok := l.buckets.Get(key); ok {
		// refresh expiry on use
		l.buckets.SetDefault(key, v)
		return v.(*rate.Limiter)
	}
	limiter := rate.NewLimiter(l.cfg.Rate, l.cfg.Burst)
	l.buckets.SetDefault(key, limiter)
	return limiter
}

// Allow spends one token from the bucket for key.
func (l *ClientRateLimiter) Allow(key string) bool {
	return l.limiterFor(key).Allow()
}

// RateLimit throttles requests per authenticated user, falling back to the
// client IP for anonymous traffic. A nil limiter disables throttling.
func RateLimit(limiter *ClientRateLimiter, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if limiter == nil || limiter.cfg.Rate <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := "ip:" + clientIP(r)
			if userID := UserIDFromContext(r.Context()); userID != "" {
				key = "user:" + userID
			}
			if !limiter.Allow(key) {
				ctx := r.Context()
				if logg != nil {
					logg.Warn(logg.WithField(ctx, "limiter_key", key), "api.rate_limit.blocked")
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds(limiter.cfg.Rate)))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "rate limit exceeded"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func retryAfterSeconds(limit rate.Limit) int {
	if limit <= 0 {
		return 1
	}
	secs := int(1 / float64(limit))
	if secs < 1 {
		return 1
	}
	return secs
}
