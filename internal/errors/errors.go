package errors

import (
	"errors"
	"fmt"
)

// Category classifies every error the bot can surface. The category decides
// how the orchestrator reacts: configuration errors refuse startup, exchange
// errors skip the iteration, risk rejections are recorded and never retried.
type Category string

const (
	CategoryConfiguration Category = "CONFIG"
	CategoryExchange      Category = "EXCHANGE"
	CategoryRisk          Category = "RISK"
	CategoryValidation    Category = "VALIDATION"
	CategoryState         Category = "STATE"
	CategoryEngine        Category = "ENGINE"
)

// BotError carries the category plus the component and operation that failed.
type BotError struct {
	Category   Category
	Component  string
	Operation  string
	Message    string
	Underlying error
	Retryable  bool
}

func (e *BotError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("[%s:%s] %s: %s: %v", e.Category, e.Component, e.Operation, e.Message, e.Underlying)
	}
	return fmt.Sprintf("[%s:%s] %s: %s", e.Category, e.Component, e.Operation, e.Message)
}

func (e *BotError) Unwrap() error {
	return e.Underlying
}

// IsFatal reports whether the error must stop the process. Only configuration
// errors are fatal; everything else is handled inside the loop.
func (e *BotError) IsFatal() bool {
	return e.Category == CategoryConfiguration
}

// IsRetryable reports whether the failed operation may be retried next cycle.
func (e *BotError) IsRetryable() bool {
	return e.Retryable
}

// NewConfigError builds a fatal configuration error. The process refuses to
// start when one of these is returned during setup.
func NewConfigError(component, message string) *BotError {
	return &BotError{
		Category:  CategoryConfiguration,
		Component: component,
		Operation: "validate",
		Message:   message,
	}
}

// NewExchangeError wraps a transient exchange failure. The orchestrator logs
// it, skips the iteration and tries again next cycle.
func NewExchangeError(component, operation string, err error) *BotError {
	return &BotError{
		Category:   CategoryExchange,
		Component:  component,
		Operation:  operation,
		Message:    "exchange call failed",
		Underlying: err,
		Retryable:  true,
	}
}

// NewValidationError marks malformed input (bad signal, bad order params).
// Never retried.
func NewValidationError(component, operation, message string) *BotError {
	return &BotError{
		Category:  CategoryValidation,
		Component: component,
		Operation: operation,
		Message:   message,
	}
}

// NewStateError wraps a persistence failure.
func NewStateError(operation string, err error) *BotError {
	return &BotError{
		Category:   CategoryState,
		Component:  "state",
		Operation:  operation,
		Message:    "persistence call failed",
		Underlying: err,
		Retryable:  true,
	}
}

// NewEngineError wraps a failure inside one engine's analysis. It is recorded
// against that engine and never affects its siblings.
func NewEngineError(engineID string, err error) *BotError {
	return &BotError{
		Category:   CategoryEngine,
		Component:  engineID,
		Operation:  "analyze",
		Message:    "engine analysis failed",
		Underlying: err,
	}
}

// CategoryOf extracts the category from any error, defaulting to EXCHANGE for
// unknown errors coming back from collaborator calls.
func CategoryOf(err error) Category {
	var be *BotError
	if errors.As(err, &be) {
		return be.Category
	}
	return CategoryExchange
}

// IsRetryable reports whether an arbitrary error may be retried. Unknown
// errors default to retryable so a transient collaborator hiccup never
// escalates into a stop.
func IsRetryable(err error) bool {
	var be *BotError
	if errors.As(err, &be) {
		return be.Retryable
	}
	return true
}
