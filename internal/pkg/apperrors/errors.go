package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrConfiguration      ErrorType = "CONFIGURATION_ERROR"
	ErrInvalidRequest     ErrorType = "INVALID_REQUEST"
	ErrInvalidMarketPrice ErrorType = "INVALID_MARKET_PRICE"
	ErrRiskRejected       ErrorType = "RISK_REJECTED"
	ErrUpstream           ErrorType = "UPSTREAM_ERROR"
	ErrRelayFailure       ErrorType = "RELAY_FAILURE"
	ErrConflict           ErrorType = "CONFLICT"
	ErrNotFound           ErrorType = "NOT_FOUND"
	ErrRateLimited        ErrorType = "RATE_LIMITED"
	ErrAuthFailed         ErrorType = "AUTH_FAILED"
	ErrForbidden          ErrorType = "FORBIDDEN"
	ErrReadOnly           ErrorType = "READ_ONLY"
	ErrInternal           ErrorType = "INTERNAL_ERROR"
)

// Generic message shown for configuration failures; details stay in the logs.
const configurationMessage = "Wallet not configured"

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"error"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// PublicMessage is the text rendered to API callers.
func (e *AppError) PublicMessage() string {
	if e.Type == ErrConfiguration {
		return configurationMessage
	}
	return e.Message
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
	}
}

func NewConfiguration(msg string) *AppError {
	return New(ErrConfiguration, msg, nil)
}

func NewInvalidRequest(msg string) *AppError {
	return New(ErrInvalidRequest, msg, nil)
}

func NewInvalidMarketPrice(msg string) *AppError {
	return New(ErrInvalidMarketPrice, msg, nil)
}

func NewUpstream(msg string, cause error) *AppError {
	return New(ErrUpstream, msg, cause)
}

func NewRelayFailure(msg string, cause error) *AppError {
	return New(ErrRelayFailure, msg, cause)
}

func NewConflict(msg string) *AppError {
	return New(ErrConflict, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// IsType reports whether err carries an AppError of the given type.
func IsType(err error, t ErrorType) bool {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type == t
	}
	return false
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidRequest, ErrInvalidMarketPrice, ErrRiskRejected:
		return http.StatusBadRequest
	case ErrAuthFailed:
		return http.StatusUnauthorized
	case ErrForbidden, ErrReadOnly:
		return http.StatusForbidden
	case ErrNotFound:
		return http.StatusNotFound
	case ErrConflict:
		return http.StatusConflict
	case ErrRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}
