// Package auth builds the HMAC headers used by the exchange (L2 API keys) and
// by the relayer (builder attribution keys).
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const (
	HeaderAddress    = "POLY_ADDRESS"
	HeaderSignature  = "POLY_SIGNATURE"
	HeaderTimestamp  = "POLY_TIMESTAMP"
	HeaderNonce      = "POLY_NONCE"
	HeaderAPIKey     = "POLY_API_KEY"
	HeaderPassphrase = "POLY_PASSPHRASE"

	HeaderBuilderAPIKey     = "POLY_BUILDER_API_KEY"
	HeaderBuilderTimestamp  = "POLY_BUILDER_TIMESTAMP"
	HeaderBuilderPassphrase = "POLY_BUILDER_PASSPHRASE"
	HeaderBuilderSignature  = "POLY_BUILDER_SIGNATURE"
)

// Credentials is the key/secret/passphrase triple issued by the exchange.
type Credentials struct {
	Key        string `json:"key"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

func (c Credentials) Complete() bool {
	return c.Key != "" && c.Secret != "" && c.Passphrase != ""
}

// Clock is swapped in tests.
var Clock = time.Now

// Signature computes base64url(HMAC-SHA256(base64url-decode(secret), timestamp+method+path+body)).
func Signature(secret string, timestamp int64, method, path, body string) (string, error) {
	key, err := decodeSecret(secret)
	if err != nil {
		return "", fmt.Errorf("failed to decode secret: %w", err)
	}
	message := strconv.FormatInt(timestamp, 10) + strings.ToUpper(method) + path + body

	h := hmac.New(sha256.New, key)
	h.Write([]byte(message))
	return base64.URLEncoding.EncodeToString(h.Sum(nil)), nil
}

// Secrets are issued url-safe but some clients store them with the standard alphabet.
func decodeSecret(secret string) ([]byte, error) {
	normalized := strings.NewReplacer("+", "-", "/", "_").Replace(strings.TrimSpace(secret))
	if key, err := base64.URLEncoding.DecodeString(normalized); err == nil {
		return key, nil
	}
	return base64.RawURLEncoding.DecodeString(strings.TrimRight(normalized, "="))
}

// L2Headers authenticates a request with the caller's API credentials.
func L2Headers(address string, creds Credentials, method, path, body string) (map[string]string, error) {
	ts := Clock().Unix()
	sig, err := Signature(creds.Secret, ts, method, path, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderAddress:    address,
		HeaderSignature:  sig,
		HeaderTimestamp:  strconv.FormatInt(ts, 10),
		HeaderAPIKey:     creds.Key,
		HeaderPassphrase: creds.Passphrase,
	}, nil
}

// BuilderHeaders attributes a request to the configured builder account.
func BuilderHeaders(creds Credentials, method, path, body string) (map[string]string, error) {
	if !creds.Complete() {
		return map[string]string{}, nil
	}
	ts := Clock().Unix()
	sig, err := Signature(creds.Secret, ts, method, path, body)
	if err != nil {
		return nil, err
	}
	return map[string]string{
		HeaderBuilderAPIKey:     creds.Key,
		HeaderBuilderTimestamp:  strconv.FormatInt(ts, 10),
		HeaderBuilderPassphrase: creds.Passphrase,
		HeaderBuilderSignature:  sig,
	}, nil
}
