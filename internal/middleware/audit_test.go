package middleware

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedactAuditBodyOrders(t *testing.T) {
	body := []byte(`{"tokenId":"1","size":5,"apiCredentials":{"key":"k","secret":"s","passphrase":"p"},"signature":"0xdead"}`)
	out := redactAuditBody("/api/orders", body)

	var data map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(out), &data))
	assert.Equal(t, "1", data["tokenId"])
	assert.Equal(t, "***", data["signature"])

	creds, ok := data["apiCredentials"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "***", creds["key"])
	assert.Equal(t, "***", creds["secret"])
	assert.Equal(t, "***", creds["passphrase"])
}

func TestRedactAuditBodyNestedArrays(t *testing.T) {
	body := []byte(`{"session":{"apiCredentials":{"secret":"s"}},"list":[{"apiSecret":"x","id":1}]}`)
	out := redactAuditBody("/api/session", body)
	assert.NotContains(t, out, `"s"`)
	assert.NotContains(t, out, `"x"`)
	assert.Contains(t, out, `"id":1`)
}

func TestRedactAuditBodyNonSensitivePath(t *testing.T) {
	body := []byte(`{"ok":true}`)
	assert.Equal(t, string(body), redactAuditBody("/health", body))
}

func TestRedactAuditBodyInvalidJSON(t *testing.T) {
	assert.Equal(t, "[redacted]", redactAuditBody("/api/orders", []byte("not-json")))
	assert.Equal(t, "", redactAuditBody("/api/orders", nil))
}
