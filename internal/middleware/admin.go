package middleware

import (
	"github.com/GoPolymarket/polysession/internal/config"
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const HeaderAdminKey = "X-Admin-Key"

// AdminMiddleware guards operator endpoints. Without auth.admin_key they are closed.
func AdminMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg == nil || cfg.Auth.AdminKey == "" {
			_ = c.Error(apperrors.New(apperrors.ErrForbidden, "admin key not configured", nil))
			c.Abort()
			return
		}
		if !constantTimeEqual(c.GetHeader(HeaderAdminKey), cfg.Auth.AdminKey) {
			_ = c.Error(apperrors.New(apperrors.ErrAuthFailed, "invalid admin key", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}
