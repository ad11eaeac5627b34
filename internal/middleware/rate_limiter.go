package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	apperrors "github.com/jwalitptl/fitness-api/pkg/errors"
	"github.com/jwalitptl/fitness-api/pkg/metrics"
)

const (
	HeaderRateLimitLimit  = "X-RateLimit-Limit"
	HeaderRateLimitPolicy = "X-RateLimit-Policy"
)

// ThrottlePolicy allows Limit requests per client every TTL.
type ThrottlePolicy struct {
	Name  string
	Limit int
	TTL   time.Duration
}

// RateLimiter hands each client IP its own token bucket refilled at
// Limit/TTL with a burst of Limit. Idle buckets expire after two TTLs.
type RateLimiter struct {
	policy   ThrottlePolicy
	every    rate.Limit
	limiters *gocache.Cache
	metrics  *metrics.Metrics
}

func NewRateLimiter(policy ThrottlePolicy, m *metrics.Metrics) *RateLimiter {
	if policy.Limit < 1 {
		policy.Limit = 1
	}
	if policy.TTL <= 0 {
		policy.TTL = time.Minute
	}
	return &RateLimiter{
		policy:   policy,
		every:    rate.Limit(float64(policy.Limit) / policy.TTL.Seconds()),
		limiters: gocache.New(2*policy.TTL, 2*policy.TTL),
		metrics:  m,
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.limiters.Get(key); ok {
		// Touch so an active client keeps its bucket.
		rl.limiters.SetDefault(key, l)
		return l.(*rate.Limiter)
	}

	l := rate.NewLimiter(rl.every, rl.policy.Limit)
	// Add fails if another request created the bucket first.
	if err := rl.limiters.Add(key, l, gocache.DefaultExpiration); err != nil {
		if existing, ok := rl.limiters.Get(key); ok {
			return existing.(*rate.Limiter)
		}
	}
	return l
}

// Allow reports whether key still has budget under the policy.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

func (rl *RateLimiter) RateLimit() gin.HandlerFunc {
	limit := strconv.Itoa(rl.policy.Limit)

	return func(c *gin.Context) {
		c.Header(HeaderRateLimitLimit, limit)
		c.Header(HeaderRateLimitPolicy, rl.policy.Name)

		if !rl.Allow(c.ClientIP()) {
			if rl.metrics != nil {
				rl.metrics.ThrottledRequests.WithLabelValues(rl.policy.Name).Inc()
			}
			c.Error(apperrors.TooManyRequests(rl.policy.Name))
			c.Abort()
			return
		}
		c.Next()
	}
}
