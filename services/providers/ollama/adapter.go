// Package ollama adapts a local Ollama server through langchaingo.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"

	"github.com/upb/rag-retrieval/services/providers"
)

const backendName = "ollama"

// client is the subset of *ollama.LLM the adapter uses
type client interface {
	CreateEmbedding(ctx context.Context, inputTexts []string) ([][]float32, error)
	GenerateContent(ctx context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error)
}

type clientFactory func(serverURL, model string) (client, error)

func newLangchainClient(serverURL, model string) (client, error) {
	return ollama.New(
		ollama.WithServerURL(serverURL),
		ollama.WithModel(model),
	)
}

// Adapter implements providers.Backend on top of langchaingo's Ollama client.
// langchaingo binds the model at construction, so one client is kept per model.
type Adapter struct {
	serverURL string
	factory   clientFactory

	mu      sync.Mutex
	clients map[string]client
}

var _ providers.Backend = (*Adapter)(nil)

// NewAdapter creates an adapter for the Ollama server at serverURL
func NewAdapter(serverURL string) *Adapter {
	return &Adapter{
		serverURL: serverURL,
		factory:   newLangchainClient,
		clients:   make(map[string]client),
	}
}

// Kind returns the backend kind
func (a *Adapter) Kind() providers.BackendKind {
	return providers.BackendOllama
}

func (a *Adapter) clientFor(model string) (client, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if c, ok := a.clients[model]; ok {
		return c, nil
	}
	c, err := a.factory(a.serverURL, model)
	if err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidRequest, "CLIENT_ERROR", "failed to create ollama client", 0, false, err)
	}
	a.clients[model] = c
	return c, nil
}

// Embed returns the embedding of text
func (a *Adapter) Embed(ctx context.Context, model, text string) ([]float32, error) {
	c, err := a.clientFor(model)
	if err != nil {
		return nil, err
	}

	vectors, err := c.CreateEmbedding(ctx, []string{text})
	if err != nil {
		return nil, classify(ctx, "embedding request failed", err)
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "EMPTY_EMBEDDING", "no embedding returned", 0, false, nil)
	}
	for i, v := range vectors[0] {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "NON_FINITE", fmt.Sprintf("non-finite value at position %d", i), 0, false, nil)
		}
	}
	return vectors[0], nil
}

// Complete generates a chat completion
func (a *Adapter) Complete(ctx context.Context, req *providers.CompletionRequest) (*providers.Completion, error) {
	startTime := time.Now()

	c, err := a.clientFor(req.Model)
	if err != nil {
		return nil, err
	}

	messages := make([]llms.MessageContent, 0, len(req.Messages))
	for _, msg := range req.Messages {
		messages = append(messages, llms.TextParts(messageType(msg.Role), msg.Content))
	}

	var opts []llms.CallOption
	if req.MaxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(req.MaxTokens))
	}
	if req.Temperature > 0 {
		opts = append(opts, llms.WithTemperature(req.Temperature))
	}

	resp, err := c.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return nil, classify(ctx, "completion request failed", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(backendName, providers.KindInvalidResponse, "NO_CHOICES", "completion returned no choices", 0, false, nil)
	}

	choice := resp.Choices[0]
	completion := &providers.Completion{
		Model:        req.Model,
		Backend:      backendName,
		Content:      choice.Content,
		FinishReason: choice.StopReason,
		Latency:      time.Since(startTime),
	}
	if n, ok := choice.GenerationInfo["PromptTokens"].(int); ok {
		completion.PromptTokens = n
	}
	if n, ok := choice.GenerationInfo["CompletionTokens"].(int); ok {
		completion.CompletionTokens = n
	}
	return completion, nil
}

func messageType(role string) llms.ChatMessageType {
	switch role {
	case "system":
		return llms.ChatMessageTypeSystem
	case "assistant":
		return llms.ChatMessageTypeAI
	default:
		return llms.ChatMessageTypeHuman
	}
}

// classify maps langchaingo errors onto provider error kinds. The client does
// not export its status errors, so a missing model is recognised by message.
func classify(ctx context.Context, message string, err error) error {
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
		return providers.NewProviderError(backendName, providers.KindUnavailable, "TIMEOUT", message, 0, false, err)
	}
	lower := strings.ToLower(err.Error())
	if strings.Contains(lower, "not found") && strings.Contains(lower, "model") {
		return providers.NewProviderError(backendName, providers.KindInvalidRequest, "MODEL_NOT_FOUND", message, 404, false, err)
	}
	return providers.NewProviderError(backendName, providers.KindUnavailable, "HTTP_ERROR", message, 0, true, err)
}
