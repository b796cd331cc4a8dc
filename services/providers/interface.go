package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Backend is the capability every embedding/completion backend implements
type Backend interface {
	// Kind identifies the backend variant
	Kind() BackendKind

	// Embed returns the embedding vector of text computed with model
	Embed(ctx context.Context, model, text string) ([]float32, error)

	// Complete performs a chat completion
	Complete(ctx context.Context, req *CompletionRequest) (*Completion, error)
}

// BackendKind enumerates the supported backends
type BackendKind int

const (
	BackendPseudo BackendKind = iota
	BackendOpenAI
	BackendOllama
)

var backendNames = map[BackendKind]string{
	BackendPseudo: "pseudo",
	BackendOpenAI: "openai",
	BackendOllama: "ollama",
}

// String returns the configuration name of the kind
func (k BackendKind) String() string {
	if name, ok := backendNames[k]; ok {
		return name
	}
	return fmt.Sprintf("backend(%d)", int(k))
}

// ParseBackendKind converts a configuration value into a BackendKind
func ParseBackendKind(s string) (BackendKind, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for kind, n := range backendNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, fmt.Errorf("unknown backend kind %q", s)
}

// TaskType selects which model of a backend serves a call
type TaskType int

const (
	TaskEmbedding TaskType = iota
	TaskCompletion
)

func (t TaskType) String() string {
	switch t {
	case TaskEmbedding:
		return "embedding"
	case TaskCompletion:
		return "completion"
	}
	return "unknown"
}

// ModelMap resolves the model to use for a (backend, task) pair
type ModelMap map[BackendKind]map[TaskType]string

// Model returns the configured model or an empty string
func (m ModelMap) Model(kind BackendKind, task TaskType) string {
	if tasks, ok := m[kind]; ok {
		return tasks[task]
	}
	return ""
}

// Set registers a model, ignoring empty names
func (m ModelMap) Set(kind BackendKind, task TaskType, model string) {
	if model == "" {
		return
	}
	if m[kind] == nil {
		m[kind] = make(map[TaskType]string)
	}
	m[kind][task] = model
}

// Message is a single chat message
type Message struct {
	// Role can be "system", "user", or "assistant"
	Role string `json:"role"`

	Content string `json:"content"`
}

// CompletionRequest is a backend-neutral chat completion request
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// Completion is the result of a chat completion
type Completion struct {
	Model            string        `json:"model"`
	Backend          string        `json:"backend"`
	Content          string        `json:"content"`
	FinishReason     string        `json:"finish_reason,omitempty"`
	PromptTokens     int           `json:"prompt_tokens,omitempty"`
	CompletionTokens int           `json:"completion_tokens,omitempty"`
	Latency          time.Duration `json:"latency"`
}

// ErrorKind classifies provider failures
type ErrorKind int

const (
	// KindUnavailable covers network failures, timeouts, auth rejections, throttling and 5xx
	KindUnavailable ErrorKind = iota
	// KindInvalidRequest covers 4xx answers other than auth/throttling
	KindInvalidRequest
	// KindInvalidResponse covers undecodable bodies and empty or non-finite vectors
	KindInvalidResponse
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnavailable:
		return "unavailable"
	case KindInvalidRequest:
		return "invalid_request"
	case KindInvalidResponse:
		return "invalid_response"
	}
	return "unknown"
}

// ProviderError represents an error from a backend
type ProviderError struct {
	// Backend that generated the error
	Backend string

	Kind ErrorKind

	// Code is the backend specific error code
	Code string

	Message string

	// StatusCode is the HTTP status code (if applicable)
	StatusCode int

	// Retryable indicates if the request can be retried
	Retryable bool

	// Cause is the underlying error
	Cause error
}

// Error implements the error interface
func (e *ProviderError) Error() string {
	msg := e.Backend + ": " + e.Message
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg
}

// Unwrap implements error unwrapping
func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// NewProviderError creates a new provider error
func NewProviderError(backend string, kind ErrorKind, code, message string, statusCode int, retryable bool, cause error) *ProviderError {
	return &ProviderError{
		Backend:    backend,
		Kind:       kind,
		Code:       code,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
		Cause:      cause,
	}
}

// KindForStatus maps an HTTP status code to an ErrorKind
func KindForStatus(status int) ErrorKind {
	switch {
	case status == 401, status == 403, status == 408, status == 429, status >= 500:
		return KindUnavailable
	case status >= 400:
		return KindInvalidRequest
	}
	return KindInvalidResponse
}

// IsRetryable checks if an error is retryable
func IsRetryable(err error) bool {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Retryable
	}
	return false
}

// ErrorKindOf returns the kind of a provider error. Errors that are not
// ProviderErrors are context or transport failures and count as unavailable.
func ErrorKindOf(err error) ErrorKind {
	var provErr *ProviderError
	if errors.As(err, &provErr) {
		return provErr.Kind
	}
	return KindUnavailable
}
