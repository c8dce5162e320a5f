package apperrors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusMapping(t *testing.T) {
	cases := map[ErrorType]int{
		ErrConfiguration:      http.StatusInternalServerError,
		ErrInvalidRequest:     http.StatusBadRequest,
		ErrInvalidMarketPrice: http.StatusBadRequest,
		ErrUpstream:           http.StatusInternalServerError,
		ErrRelayFailure:       http.StatusInternalServerError,
		ErrConflict:           http.StatusConflict,
		ErrRateLimited:        http.StatusTooManyRequests,
		ErrInternal:           http.StatusInternalServerError,
	}
	for typ, status := range cases {
		assert.Equal(t, status, New(typ, "x", nil).HTTPStatus, string(typ))
	}
}

func TestWrapKeepsAppError(t *testing.T) {
	orig := NewInvalidRequest("Missing order ID")
	wrapped := fmt.Errorf("cancel: %w", orig)

	got := Wrap(wrapped)
	assert.Same(t, orig, got)
	assert.True(t, IsType(wrapped, ErrInvalidRequest))
	assert.False(t, IsType(wrapped, ErrUpstream))
}

func TestWrapPlainError(t *testing.T) {
	got := Wrap(errors.New("boom"))
	assert.Equal(t, ErrInternal, got.Type)
	assert.Equal(t, http.StatusInternalServerError, got.HTTPStatus)
	assert.Nil(t, Wrap(nil))
}

func TestConfigurationMessageIsGeneric(t *testing.T) {
	err := NewConfiguration("wallet.private_key is empty")
	assert.Equal(t, "Wallet not configured", err.PublicMessage())
	assert.Contains(t, err.Error(), "private_key")
}

func TestUnwrapCause(t *testing.T) {
	cause := errors.New("connection refused")
	err := NewUpstream("relayer unavailable", cause)
	assert.ErrorIs(t, err, cause)
}
