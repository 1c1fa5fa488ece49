package middleware

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aluiziolira/go-scrape-asin/models"
)

// RateLimit admits a request only if every limit in limits has room for the
// client IP under scope. Store failures are logged and the request is let
// through.
func RateLimit(store Store, scope string, limits []Limit, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := scope + ":" + c.ClientIP()

		for _, limit := range limits {
			ok, retryAfter, err := store.Allow(c.Request.Context(), key, limit)
			if err != nil {
				logger.Warn("rate limit store unavailable",
					slog.String("scope", scope),
					slog.String("limit", limit.String()),
					slog.Any("error", err),
				)
				continue
			}
			if !ok {
				seconds := retrySeconds(retryAfter)
				c.Header("Retry-After", strconv.Itoa(seconds))
				resp := models.ErrorResponse(models.CodeRateLimitExceeded, "Rate limit exceeded. Please try again later.")
				resp.RetryAfter = &seconds
				c.AbortWithStatusJSON(http.StatusTooManyRequests, resp)
				return
			}
		}

		c.Next()
	}
}

func retrySeconds(d time.Duration) int {
	return max(1, int(math.Ceil(d.Seconds())))
}
