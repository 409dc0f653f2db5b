package middleware

import (
	"context"
	"net/http"
	"sync"

	"github.com/coursebay/coursebay/backend/go-services/pkg/logger"
	"github.com/coursebay/coursebay/backend/go-services/pkg/metrics"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Limiter decides whether one more request for key is allowed.
type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
	// Name labels the limiter in metrics.
	Name() string
}

// MemoryLimiter is a per-key token bucket kept in process memory.
type MemoryLimiter struct {
	rps     float64
	burst   int
	buckets sync.Map // map[string]*rate.Limiter
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	return &MemoryLimiter{rps: rps, burst: burst}
}

func (m *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	v, _ := m.buckets.LoadOrStore(key, rate.NewLimiter(rate.Limit(m.rps), m.burst))
	return v.(*rate.Limiter).Allow(), nil
}

func (m *MemoryLimiter) Name() string { return "memory" }

// RateLimit enforces lim per caller. Authenticated callers are keyed by their
// subject, everyone else by client IP.
func RateLimit(lim Limiter) gin.HandlerFunc {
	return func(c *gin.Context) {
		ok, err := lim.Allow(c.Request.Context(), rateKey(c))
		if err != nil {
			logger.Warnf("rate limit check failed (%s): %v", lim.Name(), err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "Rate limit check failed"})
			return
		}
		if !ok {
			c.Header("Retry-After", "1")
			metrics.RateLimitRejected.WithLabelValues(lim.Name()).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "Rate limit exceeded"})
			return
		}
		metrics.RateLimitAllowed.WithLabelValues(lim.Name()).Inc()
		c.Next()
	}
}

func rateKey(c *gin.Context) string {
	if sub, ok := claimsOf(c)["sub"].(string); ok && sub != "" {
		return "sub:" + sub
	}
	ip := c.ClientIP()
	if ip == "" {
		ip = "unknown"
	}
	return "ip:" + ip
}
