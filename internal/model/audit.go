package model

import (
	"time"
)

// AuditLog is one recorded API request.
type AuditLog struct {
	ID        string `json:"id"`
	Address   string `json:"address"` // wallet the request acted for
	Method    string `json:"method"`
	Path      string `json:"path"`
	IP        string `json:"ip"`
	UserAgent string `json:"user_agent"`

	// Bodies are stored after secret redaction.
	RequestBody  string `json:"request_body"`
	StatusCode   int    `json:"status_code"`
	ResponseBody string `json:"response_body"`
	LatencyMs    int64  `json:"latency_ms"`

	// Handler-supplied context such as order ids and relay transaction ids.
	Context map[string]interface{} `json:"context"`

	CreatedAt time.Time `json:"created_at"`
}
