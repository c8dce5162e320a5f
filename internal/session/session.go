// Package session runs the trading-session setup for the configured wallet:
// exchange credentials, then token approvals, then a persisted session record.
package session

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/GoPolymarket/polysession/internal/auth"
)

type Step string

const (
	StepIdle        Step = "idle"
	StepCredentials Step = "credentials"
	StepApprovals   Step = "approvals"
	StepComplete    Step = "complete"
)

// Session is the persisted record for one signing address. It is always
// replaced as a whole.
type Session struct {
	EOAAddress        string            `json:"eoaAddress"`
	ProxyAddress      string            `json:"proxyAddress"`
	IsProxyDeployed   bool              `json:"isProxyDeployed"`
	HasAPICredentials bool              `json:"hasApiCredentials"`
	HasApprovals      bool              `json:"hasApprovals"`
	APICredentials    *auth.Credentials `json:"apiCredentials,omitempty"`
	LastChecked       time.Time         `json:"lastChecked"`
}

// IsComplete is true only when every capability needed to trade is present.
func (s *Session) IsComplete() bool {
	return s != nil && s.IsProxyDeployed && s.HasAPICredentials && s.HasApprovals
}

// Expired reports whether the record is older than maxAge. Zero never expires.
func (s *Session) Expired(maxAge time.Duration, now time.Time) bool {
	if s == nil || maxAge <= 0 {
		return false
	}
	return now.Sub(s.LastChecked) > maxAge
}

var ErrNotFound = errors.New("session not found")

// Store persists sessions keyed by signing address. Clear of a missing key is
// not an error.
type Store interface {
	Save(ctx context.Context, address string, s *Session) error
	Load(ctx context.Context, address string) (*Session, error)
	Clear(ctx context.Context, address string) error
}

// Key normalizes an address for use as a store key.
func Key(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
