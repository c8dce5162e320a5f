package handler

import (
	"net/http"

	"github.com/GoPolymarket/polysession/internal/middleware"
	"github.com/gin-gonic/gin"
)

type SessionHandler struct {
	machine SessionMachine
}

func NewSessionHandler(machine SessionMachine) *SessionHandler {
	return &SessionHandler{machine: machine}
}

func (h *SessionHandler) Initialize(c *gin.Context) {
	if h.machine == nil {
		notConfigured(c)
		return
	}
	middleware.AddAuditContext(c, "action", "session_initialize")
	status, err := h.machine.Initialize(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	middleware.AddAuditContext(c, "step", status.Step)
	c.JSON(http.StatusOK, status)
}

func (h *SessionHandler) Status(c *gin.Context) {
	if h.machine == nil {
		notConfigured(c)
		return
	}
	status, err := h.machine.Status(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

func (h *SessionHandler) End(c *gin.Context) {
	if h.machine == nil {
		notConfigured(c)
		return
	}
	if err := h.machine.End(c.Request.Context()); err != nil {
		abort(c, err)
		return
	}
	middleware.AddAuditContext(c, "action", "session_end")
	status, err := h.machine.Status(c.Request.Context())
	if err != nil {
		abort(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}
