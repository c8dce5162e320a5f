package middleware

import (
	"errors"

	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/gin-gonic/gin"
)

// ErrorHandler renders the last handler error as {"error": message, "code": type}.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		err := c.Errors.Last().Err
		var appErr *apperrors.AppError

		if !errors.As(err, &appErr) {
			appErr = apperrors.New(apperrors.ErrInternal, err.Error(), err)
		}

		logFields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"code", appErr.Type,
			"client_ip", c.ClientIP(),
		}

		if appErr.HTTPStatus >= 500 {
			logger.LogError(c.Request.Context(), appErr, "request failed", logFields...)
		} else {
			logger.FromContext(c.Request.Context()).Warn(appErr.Message, logFields...)
		}

		if c.Writer.Written() {
			return
		}
		c.JSON(appErr.HTTPStatus, gin.H{
			"error": appErr.PublicMessage(),
			"code":  appErr.Type,
		})
	}
}
