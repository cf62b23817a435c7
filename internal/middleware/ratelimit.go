package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/response"
)

// RateLimiter is a fixed-window limiter backed by Redis counters, shared by
// every server instance.
type RateLimiter struct {
	rdb   *redis.Client
	scope string
	limit int
	now   func() time.Time
	log   zerolog.Logger
}

// NewRateLimiter allows limit requests per minute per subject on scope.
func NewRateLimiter(rdb *redis.Client, scope string, limit int, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:   rdb,
		scope: scope,
		limit: limit,
		now:   time.Now,
		log:   log.With().Str("component", "rate_limiter").Str("scope", scope).Logger(),
	}
}

// Middleware rate-limits by authenticated user, or by client IP when anonymous.
// Redis errors fail open.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if rl.limit <= 0 {
			c.Next()
			return
		}

		subject := "ip:" + c.ClientIP()
		if who, ok := GetIdentity(c); ok {
			subject = "user:" + strconv.Itoa(who.UserID)
		}

		ctx := c.Request.Context()
		key := config.CacheKey.RateLimitKey(rl.scope, subject, rl.now())

		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, time.Minute)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.log.Warn().Err(err).Msg("Rate limit check failed, allowing request")
			c.Next()
			return
		}

		count := incr.Val()
		remaining := int64(rl.limit) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(rl.limit))
		c.Header("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

		if count > int64(rl.limit) {
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}
		c.Next()
	}
}
