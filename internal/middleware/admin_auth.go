package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	gocache "github.com/patrickmn/go-cache"
	"go.uber.org/zap"

	"github.com/assiworks/opening-registration/internal/metrics"
	apperrors "github.com/assiworks/opening-registration/pkg/errors"
	"github.com/assiworks/opening-registration/pkg/response"
	"github.com/assiworks/opening-registration/pkg/utils"
)

// AdminTokenHeader carries the shared admin secret.
const AdminTokenHeader = "x-admin-token"

// AdminAuthConfig configures AdminAuth. When TokenHash is set it takes
// precedence over Token.
type AdminAuthConfig struct {
	Token     string
	TokenHash string
	// MaxFailures failed attempts per client IP within FailureWindow lock the
	// client out until the window expires. Zero disables the limit.
	MaxFailures   int
	FailureWindow time.Duration
}

// AdminAuth rejects requests without a valid x-admin-token header.
func AdminAuth(cfg AdminAuthConfig, logger *zap.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	window := cfg.FailureWindow
	if window <= 0 {
		window = 5 * time.Minute
	}
	failures := gocache.New(window, 2*window)

	check := func(presented string) bool {
		if cfg.TokenHash != "" {
			return presented != "" && utils.CheckSecretHash(presented, cfg.TokenHash)
		}
		return utils.SecretsEqual(presented, cfg.Token)
	}

	return func(c *gin.Context) {
		key := c.ClientIP()
		if cfg.MaxFailures > 0 {
			if n, ok := failures.Get(key); ok && n.(int) >= cfg.MaxFailures {
				response.Error(c, apperrors.ErrRateLimited)
				c.Abort()
				return
			}
		}

		presented := strings.TrimSpace(c.GetHeader(AdminTokenHeader))
		if !check(presented) {
			metrics.AdminAuthFailures.Inc()
			if cfg.MaxFailures > 0 {
				// Add only starts the window on the first failure.
				_ = failures.Add(key, 0, window)
				if _, err := failures.IncrementInt(key, 1); err != nil {
					failures.Set(key, 1, window)
				}
			}
			logger.Warn("admin auth failed", zap.String("client_ip", key), zap.Bool("token_present", presented != ""))
			response.Fail(c, http.StatusUnauthorized, "invalid admin token")
			c.Abort()
			return
		}
		c.Next()
	}
}
