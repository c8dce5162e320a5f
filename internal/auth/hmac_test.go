package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = base64.URLEncoding.EncodeToString([]byte("super-secret-key-material-123456"))

func TestSignatureMatchesHMAC(t *testing.T) {
	got, err := Signature(testSecret, 1700000000, "post", "/order", `{"a":1}`)
	require.NoError(t, err)

	h := hmac.New(sha256.New, []byte("super-secret-key-material-123456"))
	h.Write([]byte(`1700000000POST/order{"a":1}`))
	want := base64.URLEncoding.EncodeToString(h.Sum(nil))

	assert.Equal(t, want, got)
}

func TestSignatureAcceptsStdAlphabet(t *testing.T) {
	std := base64.StdEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe, 0x01, 0x02, 0x03})
	url := base64.URLEncoding.EncodeToString([]byte{0xfb, 0xff, 0xfe, 0x01, 0x02, 0x03})

	a, err := Signature(std, 1, "GET", "/x", "")
	require.NoError(t, err)
	b, err := Signature(url, 1, "GET", "/x", "")
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestSignatureRejectsGarbage(t *testing.T) {
	_, err := Signature("***", 1, "GET", "/", "")
	assert.Error(t, err)
}

func TestL2Headers(t *testing.T) {
	Clock = func() time.Time { return time.Unix(1700000000, 0) }
	t.Cleanup(func() { Clock = time.Now })

	creds := Credentials{Key: "k", Secret: testSecret, Passphrase: "p"}
	h, err := L2Headers("0xabc", creds, "GET", "/data/orders", "")
	require.NoError(t, err)

	assert.Equal(t, "0xabc", h[HeaderAddress])
	assert.Equal(t, "k", h[HeaderAPIKey])
	assert.Equal(t, "p", h[HeaderPassphrase])
	assert.Equal(t, "1700000000", h[HeaderTimestamp])
	assert.NotEmpty(t, h[HeaderSignature])
}

func TestBuilderHeadersSkippedWithoutCreds(t *testing.T) {
	h, err := BuilderHeaders(Credentials{}, "POST", "/submit", "{}")
	require.NoError(t, err)
	assert.Empty(t, h)

	h, err = BuilderHeaders(Credentials{Key: "b", Secret: testSecret, Passphrase: "bp"}, "POST", "/submit", "{}")
	require.NoError(t, err)
	assert.Equal(t, "b", h[HeaderBuilderAPIKey])
	assert.Equal(t, "bp", h[HeaderBuilderPassphrase])
	assert.NotEmpty(t, h[HeaderBuilderSignature])
}
