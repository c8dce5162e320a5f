package handler

import (
	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/gin-gonic/gin"
)

const msgWalletMissing = "wallet private key is not configured"

// abort records err for ErrorHandler and stops the chain.
func abort(c *gin.Context, err error) {
	_ = c.Error(apperrors.Wrap(err))
	c.Abort()
}

func notConfigured(c *gin.Context) {
	abort(c, apperrors.NewConfiguration(msgWalletMissing))
}

func badRequest(c *gin.Context, msg string) {
	abort(c, apperrors.NewInvalidRequest(msg))
}
