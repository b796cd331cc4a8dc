package services

import (
	"errors"
	"fmt"
)

// ErrorType represents the type/category of error
type ErrorType string

const (
	ErrorTypeNotFound           ErrorType = "not_found"
	ErrorTypeValidation         ErrorType = "validation"
	ErrorTypeUnauthorized       ErrorType = "unauthorized"
	ErrorTypeInternal           ErrorType = "internal"
	ErrorTypeBackendUnavailable ErrorType = "backend_unavailable"
	ErrorTypeInvalidEmbedding   ErrorType = "invalid_embedding"
	ErrorTypeDimensionMismatch  ErrorType = "dimension_mismatch"
)

// DomainError represents a structured error with additional context
type DomainError struct {
	Type    ErrorType
	Message string
	Err     error
	Details map[string]interface{}
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap implements errors.Unwrap
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches any DomainError of the same type, so errors.Is(err, ErrBackendUnavailable)
// holds for every wrapped backend failure.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Type == t.Type
}

// WithDetail adds a detail to the error
func (e *DomainError) WithDetail(key string, value interface{}) *DomainError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// NewDomainError creates a new domain error
func NewDomainError(errType ErrorType, message string, err error) *DomainError {
	return &DomainError{
		Type:    errType,
		Message: message,
		Err:     err,
		Details: make(map[string]interface{}),
	}
}

var (
	ErrDocumentNotFound = NewDomainError(ErrorTypeNotFound, "document not found", nil)
	ErrChunkNotFound    = NewDomainError(ErrorTypeNotFound, "chunk not found", nil)

	ErrInvalidInput     = NewDomainError(ErrorTypeValidation, "invalid input", nil)
	ErrEmptyQuery       = NewDomainError(ErrorTypeValidation, "query cannot be empty", nil)
	ErrInvalidFieldKind = NewDomainError(ErrorTypeValidation, "invalid field kind", nil)
	ErrUnsupportedInput = NewDomainError(ErrorTypeValidation, "unsupported document content", nil)

	ErrUnauthorized = NewDomainError(ErrorTypeUnauthorized, "unauthorized", nil)

	ErrInternal      = NewDomainError(ErrorTypeInternal, "internal server error", nil)
	ErrDatabaseError = NewDomainError(ErrorTypeInternal, "database error", nil)

	// Network or authentication failure reaching an embedding/completion backend
	ErrBackendUnavailable = NewDomainError(ErrorTypeBackendUnavailable, "embedding backend unavailable", nil)

	// A stored or computed vector failed validity checks
	ErrInvalidEmbedding = NewDomainError(ErrorTypeInvalidEmbedding, "invalid embedding", nil)

	// Two vectors being compared differ in length
	ErrDimensionMismatch = NewDomainError(ErrorTypeDimensionMismatch, "embedding dimension mismatch", nil)
)

func hasType(err error, t ErrorType) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type == t
	}
	return false
}

// IsNotFoundError checks if an error is a not found error
func IsNotFoundError(err error) bool {
	return hasType(err, ErrorTypeNotFound)
}

// IsValidationError checks if an error is a validation error
func IsValidationError(err error) bool {
	return hasType(err, ErrorTypeValidation)
}

// IsUnauthorizedError checks if an error is an unauthorized error
func IsUnauthorizedError(err error) bool {
	return hasType(err, ErrorTypeUnauthorized)
}

// IsInternalError checks if an error is an internal error
func IsInternalError(err error) bool {
	return hasType(err, ErrorTypeInternal)
}

// IsBackendUnavailableError checks if an error means no backend could be reached
func IsBackendUnavailableError(err error) bool {
	return hasType(err, ErrorTypeBackendUnavailable)
}

// IsInvalidEmbeddingError checks if an error is an invalid embedding error
func IsInvalidEmbeddingError(err error) bool {
	return hasType(err, ErrorTypeInvalidEmbedding)
}

// IsDimensionMismatchError checks if an error is a dimension mismatch
func IsDimensionMismatchError(err error) bool {
	return hasType(err, ErrorTypeDimensionMismatch)
}

// GetErrorType returns the ErrorType of a domain error, or empty string if not a domain error
func GetErrorType(err error) ErrorType {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Type
	}
	return ""
}

// GetErrorDetails returns the details map of a domain error, or nil if not a domain error
func GetErrorDetails(err error) map[string]interface{} {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Details
	}
	return nil
}

// WrapError wraps an error with additional context
func WrapError(errType ErrorType, message string, err error) error {
	return NewDomainError(errType, message, err)
}

// WrapInternal wraps an error as an internal error
func WrapInternal(message string, err error) error {
	return NewDomainError(ErrorTypeInternal, message, err)
}

// WrapBackendUnavailable wraps a transport or auth failure of a backend
func WrapBackendUnavailable(message string, err error) error {
	return NewDomainError(ErrorTypeBackendUnavailable, message, err)
}

// WrapValidation wraps an error as a validation error
func WrapValidation(message string, err error) error {
	return NewDomainError(ErrorTypeValidation, message, err)
}
