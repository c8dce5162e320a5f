package handler

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/GoPolymarket/polysession/internal/pkg/apperrors"
	"github.com/GoPolymarket/polysession/internal/service"
	"github.com/gin-gonic/gin"
)

const maxAuditLimit = 1000

type AuditHandler struct {
	svc     *service.AuditService
	address string
}

// NewAuditHandler lists records for address, the wallet this process acts for.
func NewAuditHandler(svc *service.AuditService, address string) *AuditHandler {
	return &AuditHandler{svc: svc, address: address}
}

func (h *AuditHandler) List(c *gin.Context) {
	if h.svc == nil {
		abort(c, apperrors.New(apperrors.ErrNotFound, "audit log disabled", nil))
		return
	}

	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxAuditLimit {
		limit = maxAuditLimit
	}
	var fromPtr *time.Time
	var toPtr *time.Time
	if raw := c.Query("from"); raw != "" {
		if t, err := parseTime(raw); err == nil {
			fromPtr = &t
		} else {
			badRequest(c, err.Error())
			return
		}
	}
	if raw := c.Query("to"); raw != "" {
		if t, err := parseTime(raw); err == nil {
			toPtr = &t
		} else {
			badRequest(c, err.Error())
			return
		}
	}

	address := h.address
	if raw := c.Query("address"); raw != "" {
		address = raw
	}
	records, err := h.svc.List(c.Request.Context(), address, limit, fromPtr, toPtr)
	if err != nil {
		abort(c, apperrors.New(apperrors.ErrInternal, "Failed to list audit logs", err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": records})
}

func parseTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if unix, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("invalid time format")
}
