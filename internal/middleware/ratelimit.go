package middleware

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"inventory-service/internal/syncer"
	"inventory-service/pkg/logger"
	"inventory-service/prometheus"
)

// RateLimitMiddleware throttles requests per (user, client IP) over the
// limiter's sliding window. Limited requests are rejected before they touch
// persistence.
func RateLimitMiddleware(limiter *syncer.RateLimiter) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID, _ := GetUserIDFromContext(c)
			key := fmt.Sprintf("%d:%s", userID, c.RealIP())

			if !limiter.Allow(key) {
				retryAfter := limiter.RetryAfter(key)
				logger.FromContext(c).Warn("sync request rate limited",
					zap.String("key", key),
					zap.Duration("retry_after", retryAfter))
				prometheus.SyncRateLimitedCounter.Inc()

				c.Response().Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"code":    syncer.CodeRateLimited,
					"message": "too many sync requests, retry later",
				})
			}

			return next(c)
		}
	}
}
