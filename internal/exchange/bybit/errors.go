package bybit

import (
	"errors"
	"fmt"
)

// APIError carries the Bybit retCode and message for a failed call.
type APIError struct {
	Code      int
	Message   string
	Operation string
}

func (e *APIError) Error() string {
	if e.Operation != "" {
		return fmt.Sprintf("bybit %s: %s (code %d)", e.Operation, e.Message, e.Code)
	}
	return fmt.Sprintf("bybit: %s (code %d)", e.Message, e.Code)
}

// Error codes the bot reacts to, from the V5 API documentation.
const (
	ErrCodeInvalidAPIKey       = 10003
	ErrCodeInvalidSignature    = 10004
	ErrCodeInvalidTimestamp    = 10005
	ErrCodeRateLimitExceeded   = 10006
	ErrCodeOrderNotFound       = 110001
	ErrCodeInvalidOrderType    = 110004
	ErrCodeInsufficientBalance = 110007
	ErrCodeInvalidQuantity     = 110020
	ErrCodeInvalidPrice        = 110021
	ErrCodeMarketClosed        = 110043
)

func newAPIError(operation string, code int, message string) *APIError {
	return &APIError{Code: code, Message: message, Operation: operation}
}

// IsRetryable reports whether a failed call is worth retrying. Rate limits
// and server-side 5xx codes are transient; everything else is not.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case ErrCodeRateLimitExceeded, 500, 502, 503, 504:
		return true
	}
	return false
}

// IsAuthError reports whether the error indicates bad credentials. These are
// fatal: no amount of retrying fixes a wrong key.
func IsAuthError(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Code {
	case ErrCodeInvalidAPIKey, ErrCodeInvalidSignature, ErrCodeInvalidTimestamp:
		return true
	}
	return false
}

// IsInsufficientBalance reports whether the order was rejected for margin.
func IsInsufficientBalance(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeInsufficientBalance
}

// IsOrderNotFound reports whether the queried order does not exist.
func IsOrderNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Code == ErrCodeOrderNotFound
}
