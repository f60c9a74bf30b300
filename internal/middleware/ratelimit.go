package middleware

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/time/rate"

	"github.com/pharmguard-mcp-server/internal/domain"
)

const (
	maxTrackedClients = 10000
	clientIdleTTL     = 10 * time.Minute
)

// RateLimiter hands out a token bucket per client IP. Idle clients are
// evicted after clientIdleTTL.
type RateLimiter struct {
	limit   rate.Limit
	burst   int
	clients *expirable.LRU[string, *rate.Limiter]
}

// NewRateLimiter allows perSecond requests per client with the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		clients: expirable.NewLRU[string, *rate.Limiter](maxTrackedClients, nil, clientIdleTTL),
	}
}

func (rl *RateLimiter) limiter(key string) *rate.Limiter {
	if l, ok := rl.clients.Get(key); ok {
		return l
	}
	l := rate.NewLimiter(rl.limit, rl.burst)
	rl.clients.Add(key, l)
	return l
}

// Allow reports whether a request from key may proceed now.
func (rl *RateLimiter) Allow(key string) bool {
	return rl.limiter(key).Allow()
}

// Middleware rejects requests over the limit with 429.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}
		if !rl.Allow(c.ClientIP()) {
			c.Header("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(rl.limit)))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, domain.NewAPIError(
				domain.ErrRateLimit,
				"Too many requests",
				"",
				c.GetString(CorrelationIDKey),
			))
			return
		}
		c.Next()
	}
}

func retryAfterSeconds(limit rate.Limit) int {
	if limit >= 1 {
		return 1
	}
	return int(1/float64(limit) + 0.5)
}
