package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// Transaction errors
	ErrTransactionNotFound    = errors.New("transaction not found")
	ErrDuplicateReference     = errors.New("duplicate transaction reference")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrInvalidAmount          = errors.New("invalid amount")

	// Provider errors
	ErrProviderNotFound        = errors.New("payment provider not found")
	ErrProviderUnavailable     = errors.New("payment provider unavailable")
	ErrProviderRejected        = errors.New("payment rejected by provider")
	ErrProviderInvalidResponse = errors.New("invalid provider response")
	ErrProviderTimeout         = errors.New("provider request timeout")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")
	ErrLockNotHeld           = errors.New("lock not held")

	// Auth errors
	ErrUnauthorized = errors.New("unauthorized")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// ErrorCode is an entry of the error catalog exposed to API clients.
type ErrorCode struct {
	Code       string
	Message    string
	HTTPStatus int
}

var (
	GenericError            = ErrorCode{"30000", "Unable to process the request, please try again later", http.StatusInternalServerError}
	InvalidTxnReference     = ErrorCode{"30001", "Invalid transaction reference", http.StatusBadRequest}
	InvalidTxnStatus        = ErrorCode{"30002", "Transaction is not in a state that allows this operation", http.StatusConflict}
	TxnLocked               = ErrorCode{"30003", "Transaction is being processed by another request", http.StatusConflict}
	ProviderError           = ErrorCode{"30004", "Payment provider failed to create the payment", http.StatusBadGateway}
	ProviderInvalidResponse = ErrorCode{"30005", "Payment provider returned an invalid response", http.StatusBadGateway}
)

// ProcessingError is returned by the orchestration layer. It carries the
// catalog code, message and the HTTP classification of the failure.
type ProcessingError struct {
	HTTPStatus   int
	ErrorCode    string
	ErrorMessage string
	Err          error
}

func (e *ProcessingError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.ErrorCode, e.ErrorMessage, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.ErrorCode, e.ErrorMessage)
}

func (e *ProcessingError) Unwrap() error {
	return e.Err
}

// NewProcessingError builds a ProcessingError from a catalog entry.
func NewProcessingError(code ErrorCode, err error) *ProcessingError {
	return &ProcessingError{
		HTTPStatus:   code.HTTPStatus,
		ErrorCode:    code.Code,
		ErrorMessage: code.Message,
		Err:          err,
	}
}

// DomainError wraps errors with additional context
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ValidationError represents a validation error
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{
		Field:   field,
		Message: message,
	}
}
