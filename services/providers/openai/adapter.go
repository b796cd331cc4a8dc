package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"time"

	"github.com/upb/rag-retrieval/services/providers"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	backendName    = "openai"
)

// Config holds the OpenAI connection settings
type Config struct {
	APIKey     string
	BaseURL    string
	OrgID      string
	Timeout    time.Duration
	MaxRetries int
	RetryDelay time.Duration
}

// Adapter implements providers.Backend for the OpenAI HTTP API
type Adapter struct {
	config     Config
	httpClient *http.Client
}

var _ providers.Backend = (*Adapter)(nil)

// NewAdapter creates a new OpenAI adapter
func NewAdapter(config Config) *Adapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}
	if config.Timeout == 0 {
		config.Timeout = 30 * time.Second
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}

	return &Adapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Kind returns the backend kind
func (a *Adapter) Kind() providers.BackendKind {
	return providers.BackendOpenAI
}

// Embed calls the /embeddings endpoint for a single input
func (a *Adapter) Embed(ctx context.Context, model, text string) ([]float32, error) {
	body, err := a.post(ctx, "/embeddings", embeddingRequest{Model: model, Input: []string{text}})
	if err != nil {
		return nil, err
	}

	var resp embeddingResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "UNMARSHAL_ERROR", "failed to unmarshal embedding response", http.StatusOK, false, err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "EMPTY_EMBEDDING", "no embedding returned", http.StatusOK, false, nil)
	}

	vector := make([]float32, len(resp.Data[0].Embedding))
	for i, v := range resp.Data[0].Embedding {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "NON_FINITE", fmt.Sprintf("non-finite value at position %d", i), http.StatusOK, false, nil)
		}
		vector[i] = float32(v)
	}
	return vector, nil
}

// Complete calls the /chat/completions endpoint
func (a *Adapter) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.Completion, error) {
	startTime := time.Now()

	chatReq := chatRequest{
		Model:    req.Model,
		Messages: make([]chatMessage, len(req.Messages)),
	}
	for i, msg := range req.Messages {
		chatReq.Messages[i] = chatMessage{Role: msg.Role, Content: msg.Content}
	}
	if req.MaxTokens > 0 {
		chatReq.MaxTokens = &req.MaxTokens
	}
	if req.Temperature > 0 {
		chatReq.Temperature = &req.Temperature
	}

	body, err := a.post(ctx, "/chat/completions", chatReq)
	if err != nil {
		return nil, err
	}

	var resp chatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "UNMARSHAL_ERROR", "failed to unmarshal completion response", http.StatusOK, false, err)
	}
	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "NO_CHOICES", "completion returned no choices", http.StatusOK, false, nil)
	}

	return &providers.Completion{
		Model:            resp.Model,
		Backend:          backendName,
		Content:          resp.Choices[0].Message.Content,
		FinishReason:     resp.Choices[0].FinishReason,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		Latency:          time.Since(startTime),
	}, nil
}

// post sends payload to path, retrying retryable failures with a linear delay
func (a *Adapter) post(ctx context.Context, path string, payload interface{}) ([]byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidRequest, "MARSHAL_ERROR", "failed to marshal request", 0, false, err)
	}

	var lastErr error
	for attempt := 0; attempt <= a.config.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, providers.NewProviderError(backendName, providers.KindUnavailable, "CONTEXT_DONE", "request cancelled", 0, false, ctx.Err())
			case <-time.After(a.config.RetryDelay * time.Duration(attempt)):
			}
		}

		body, err := a.do(ctx, path, reqBody)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !providers.IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (a *Adapter) do(ctx context.Context, path string, reqBody []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidRequest, "REQUEST_ERROR", "failed to create request", 0, false, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	if a.config.OrgID != "" {
		httpReq.Header.Set("OpenAI-Organization", a.config.OrgID)
	}

	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		// a cancelled caller is not worth retrying
		retryable := !errors.Is(err, context.Canceled) && ctx.Err() == nil
		return nil, providers.NewProviderError(backendName, providers.KindUnavailable, "HTTP_ERROR", "HTTP request failed", 0, retryable, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindUnavailable, "READ_ERROR", "failed to read response", httpResp.StatusCode, true, err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, handleErrorResponse(httpResp.StatusCode, respBody)
	}
	return respBody, nil
}

// handleErrorResponse converts an OpenAI error body into a ProviderError
func handleErrorResponse(statusCode int, body []byte) error {
	kind := providers.KindForStatus(statusCode)
	retryable := statusCode >= 500 || statusCode == http.StatusTooManyRequests

	var errResp errorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Error.Message == "" {
		return providers.NewProviderError(backendName, kind, "UNKNOWN_ERROR", fmt.Sprintf("status %d: %s", statusCode, string(body)), statusCode, retryable, nil)
	}

	code := errResp.Error.Code
	if code == "" {
		code = errResp.Error.Type
	}
	return providers.NewProviderError(backendName, kind, code, errResp.Error.Message, statusCode, retryable, errors.New(errResp.Error.Message))
}

type embeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float64 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   *int          `json:"max_tokens,omitempty"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Model   string `json:"model"`
	Choices []struct {
		Index        int         `json:"index"`
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type errorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}
