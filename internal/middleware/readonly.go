package middleware

import (
	"net/http"

	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

// Non-GET routes that stay open in read-only mode.
var readOnlyAllowed = map[string]bool{
	http.MethodDelete + " /api/session":         true,
	http.MethodPost + " /api/polymarket/prices": true,
}

// ReadOnlyMiddleware rejects mutating requests so an operator can stop
// trading and relaying without a redeploy.
func ReadOnlyMiddleware(enabled bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !enabled {
			c.Next()
			return
		}

		if readOnlyAllowed[c.Request.Method+" "+c.FullPath()] {
			c.Next()
			return
		}

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			c.Next()
		default:
			_ = c.Error(apperrors.New(apperrors.ErrReadOnly, "read-only mode enabled", nil))
			c.Abort()
		}
	}
}
