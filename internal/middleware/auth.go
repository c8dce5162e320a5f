package middleware

import (
	"crypto/subtle"

	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderGatewayKey = "X-Gateway-Key"

// AuthMiddleware requires X-Gateway-Key when auth.gateway_key is configured.
func AuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.GatewayKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader(HeaderGatewayKey)
		if apiKey == "" {
			_ = c.Error(apperrors.New(apperrors.ErrAuthFailed, "missing gateway key", nil))
			c.Abort()
			return
		}
		if !constantTimeEqual(apiKey, cfg.Auth.GatewayKey) {
			_ = c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid gateway key", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

func constantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
