package services

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDomainError(t *testing.T) {
	baseErr := errors.New("base error")
	domainErr := NewDomainError(ErrorTypeNotFound, "resource not found", baseErr)

	assert.Equal(t, ErrorTypeNotFound, domainErr.Type)
	assert.Equal(t, "resource not found", domainErr.Message)
	assert.Equal(t, baseErr, domainErr.Err)
	assert.NotNil(t, domainErr.Details)
}

func TestDomainError_Error(t *testing.T) {
	tests := []struct {
		name    string
		err     *DomainError
		wantMsg string
	}{
		{
			name: "error with wrapped error",
			err: &DomainError{
				Type:    ErrorTypeNotFound,
				Message: "chunk not found",
				Err:     errors.New("db error"),
			},
			wantMsg: "not_found: chunk not found (db error)",
		},
		{
			name: "error without wrapped error",
			err: &DomainError{
				Type:    ErrorTypeBackendUnavailable,
				Message: "embedding backend unavailable",
			},
			wantMsg: "backend_unavailable: embedding backend unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantMsg, tt.err.Error())
		})
	}
}

func TestDomainError_Unwrap(t *testing.T) {
	baseErr := errors.New("connection refused")
	domainErr := WrapBackendUnavailable("embed failed", baseErr)

	assert.Equal(t, baseErr, errors.Unwrap(domainErr))
}

func TestDomainError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{
			name:   "same error type",
			err:    WrapBackendUnavailable("openai: timeout", errors.New("deadline")),
			target: ErrBackendUnavailable,
			want:   true,
		},
		{
			name:   "different error type",
			err:    NewDomainError(ErrorTypeValidation, "validation", nil),
			target: ErrBackendUnavailable,
			want:   false,
		},
		{
			name:   "not a domain error",
			err:    NewDomainError(ErrorTypeNotFound, "not found", nil),
			target: errors.New("regular error"),
			want:   false,
		},
		{
			name:   "wrapped with fmt",
			err:    fmt.Errorf("field notes: %w", ErrInvalidEmbedding),
			target: ErrInvalidEmbedding,
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestDomainError_WithDetail(t *testing.T) {
	err := NewDomainError(ErrorTypeDimensionMismatch, "dimension mismatch", nil)

	err.WithDetail("query", 768).WithDetail("candidate", 1536)

	assert.Equal(t, 768, err.Details["query"])
	assert.Equal(t, 1536, err.Details["candidate"])
}

func TestErrorTypeCheckers(t *testing.T) {
	tests := []struct {
		name  string
		check func(error) bool
		yes   error
		no    error
	}{
		{"not found", IsNotFoundError, fmt.Errorf("wrapped: %w", ErrDocumentNotFound), ErrInvalidInput},
		{"validation", IsValidationError, ErrEmptyQuery, ErrChunkNotFound},
		{"unauthorized", IsUnauthorizedError, ErrUnauthorized, ErrInternal},
		{"internal", IsInternalError, WrapInternal("scan", errors.New("x")), ErrEmptyQuery},
		{"backend unavailable", IsBackendUnavailableError, ErrBackendUnavailable, ErrInvalidEmbedding},
		{"invalid embedding", IsInvalidEmbeddingError, ErrInvalidEmbedding, ErrDimensionMismatch},
		{"dimension mismatch", IsDimensionMismatchError, ErrDimensionMismatch, ErrBackendUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.yes))
			assert.False(t, tt.check(tt.no))
			assert.False(t, tt.check(errors.New("regular")))
			assert.False(t, tt.check(nil))
		})
	}
}

func TestGetErrorType(t *testing.T) {
	assert.Equal(t, ErrorTypeBackendUnavailable, GetErrorType(fmt.Errorf("x: %w", ErrBackendUnavailable)))
	assert.Equal(t, ErrorType(""), GetErrorType(errors.New("plain")))
}

func TestGetErrorDetails(t *testing.T) {
	err := NewDomainError(ErrorTypeValidation, "bad field", nil).WithDetail("field", "notes")
	assert.Equal(t, "notes", GetErrorDetails(err)["field"])
	assert.Nil(t, GetErrorDetails(errors.New("plain")))
}
