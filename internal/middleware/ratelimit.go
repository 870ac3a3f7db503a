package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"

	apperrors "github.com/assiworks/opening-registration/pkg/errors"
	"github.com/assiworks/opening-registration/pkg/response"
)

// RateLimit limits requests per (clientIP, route) within a fixed window.
// The counters live in process memory, so limits apply per instance.
func RateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	if maxRequests <= 0 || window <= 0 {
		return func(c *gin.Context) { c.Next() }
	}
	counters := gocache.New(window, 2*window)

	return func(c *gin.Context) {
		key := c.ClientIP() + "|" + c.FullPath()
		_ = counters.Add(key, 0, window)
		count, err := counters.IncrementInt(key, 1)
		if err != nil {
			counters.Set(key, 1, window)
			count = 1
		}
		remaining := maxRequests - count
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(maxRequests))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		if count > maxRequests {
			response.Error(c, apperrors.ErrRateLimited)
			c.Abort()
			return
		}
		c.Next()
	}
}
