package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"strings"
	"time"

	"github.com/GoPolymarket/polysession/internal/model"
	"github.com/GoPolymarket/polysession/internal/pkg/logger"
	"github.com/GoPolymarket/polysession/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	ContextAuditLog  = "audit_log"
	ContextRequestID = "request_id"
	HeaderRequestID  = "X-Request-ID"
)

type bodyLogWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w bodyLogWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// RequestContext assigns a request id and a request-scoped logger. It must run
// before anything that logs.
func RequestContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		reqID := c.GetHeader(HeaderRequestID)
		if reqID == "" {
			reqID = uuid.New().String()
		}
		c.Header(HeaderRequestID, reqID)
		c.Set(ContextRequestID, reqID)

		l := logger.With("request_id", reqID)
		c.Request = c.Request.WithContext(logger.NewContext(c.Request.Context(), l))
		c.Next()
	}
}

// AuditMiddleware records every request with redacted bodies. address is the
// wallet the process acts for.
func AuditMiddleware(auditSvc *service.AuditService, address string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if auditSvc == nil {
			c.Next()
			return
		}
		start := time.Now()

		var reqBodyBytes []byte
		if c.Request.Body != nil {
			reqBodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(reqBodyBytes))
		}

		entry := &model.AuditLog{
			ID:        c.GetString(ContextRequestID),
			Address:   address,
			Method:    c.Request.Method,
			Path:      c.Request.URL.Path,
			IP:        c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
			CreatedAt: start.UTC(),
			Context:   make(map[string]interface{}),
		}
		if entry.ID == "" {
			entry.ID = uuid.New().String()
		}
		c.Set(ContextAuditLog, entry)

		blw := &bodyLogWriter{body: bytes.NewBufferString(""), ResponseWriter: c.Writer}
		c.Writer = blw

		c.Next()

		entry.RequestBody = redactAuditBody(c.Request.URL.Path, reqBodyBytes)
		entry.StatusCode = c.Writer.Status()
		entry.ResponseBody = redactAuditBody(c.Request.URL.Path, blw.body.Bytes())
		entry.LatencyMs = time.Since(start).Milliseconds()

		auditSvc.Log(entry)
	}
}

// AddAuditContext attaches a business detail (order id, transaction id) to the
// request's audit entry.
func AddAuditContext(c *gin.Context, key string, value interface{}) {
	if val, exists := c.Get(ContextAuditLog); exists {
		if entry, ok := val.(*model.AuditLog); ok {
			entry.Context[key] = value
		}
	}
}

func redactAuditBody(path string, body []byte) string {
	if len(body) == 0 {
		return ""
	}
	if !isSensitivePath(path) {
		return string(body)
	}
	redacted, ok := redactJSON(body)
	if !ok {
		return "[redacted]"
	}
	return string(redacted)
}

func isSensitivePath(path string) bool {
	switch {
	case strings.HasPrefix(path, "/api/orders"):
		return true
	case strings.HasPrefix(path, "/api/wallet"):
		return true
	case strings.HasPrefix(path, "/api/session"):
		return true
	default:
		return false
	}
}

func redactJSON(body []byte) ([]byte, bool) {
	var data interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return nil, false
	}
	redactValue(&data)
	out, err := json.Marshal(data)
	if err != nil {
		return nil, false
	}
	return out, true
}

func redactValue(v *interface{}) {
	switch raw := (*v).(type) {
	case map[string]interface{}:
		for key, val := range raw {
			if isSensitiveKey(key) {
				raw[key] = "***"
				continue
			}
			vv := val
			redactValue(&vv)
			raw[key] = vv
		}
	case []interface{}:
		for i, val := range raw {
			vv := val
			redactValue(&vv)
			raw[i] = vv
		}
	}
}

func isSensitiveKey(key string) bool {
	switch strings.ToLower(strings.TrimSpace(key)) {
	case "key",
		"secret",
		"passphrase",
		"apikey",
		"apisecret",
		"apipassphrase",
		"privatekey",
		"private_key",
		"signature":
		return true
	default:
		return false
	}
}
