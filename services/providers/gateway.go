package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/rag-retrieval/services"
)

const rateLimitBackoff = 2 * time.Second

// EmbedResult is a vector together with where it came from
type EmbedResult struct {
	Vector  []float32
	Model   string
	Backend BackendKind
	// Pseudo marks hash-derived vectors that carry no semantic similarity
	Pseudo bool
}

// GatewayConfig configures the gateway
type GatewayConfig struct {
	Default     BackendKind
	Models      ModelMap
	CallTimeout time.Duration
	RateLimit   RateLimitConfig
}

// Gateway is the single entry point for embedding and completion calls.
// It resolves the configured backend and model, applies the per-call timeout
// and throttling, and translates backend failures into domain errors.
type Gateway struct {
	registry *Registry
	config   GatewayConfig
	limiter  *RateLimiter
	logger   *zap.Logger
}

// NewGateway creates a gateway over the registered backends. The default
// backend must be registered.
func NewGateway(registry *Registry, config GatewayConfig, logger *zap.Logger) (*Gateway, error) {
	if _, err := registry.Get(config.Default); err != nil {
		return nil, fmt.Errorf("default backend %s: %w", config.Default, err)
	}
	if config.Models == nil {
		config.Models = ModelMap{}
	}
	if config.CallTimeout <= 0 {
		config.CallTimeout = 30 * time.Second
	}

	return &Gateway{
		registry: registry,
		config:   config,
		limiter:  NewRateLimiter(config.RateLimit),
		logger:   logger,
	}, nil
}

// DefaultBackend returns the configured backend kind
func (g *Gateway) DefaultBackend() BackendKind {
	return g.config.Default
}

// Model returns the model used for task on the default backend
func (g *Gateway) Model(task TaskType) string {
	return g.config.Models.Model(g.config.Default, task)
}

// Embed returns the embedding of text for the given task
func (g *Gateway) Embed(ctx context.Context, text string, task TaskType) (*EmbedResult, error) {
	backend, err := g.registry.Get(g.config.Default)
	if err != nil {
		return nil, services.WrapBackendUnavailable("no embedding backend registered", err)
	}
	model := g.Model(task)

	if g.config.Default == BackendPseudo {
		vector, err := backend.Embed(ctx, model, text)
		if err != nil {
			return nil, g.translate(err)
		}
		g.logger.Warn("using pseudo embedding; similarity scores are not semantic",
			zap.String("task", task.String()),
			zap.Int("dimension", len(vector)),
		)
		return &EmbedResult{Vector: vector, Model: model, Backend: BackendPseudo, Pseudo: true}, nil
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, services.WrapBackendUnavailable("rate limiter wait cancelled", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
	defer cancel()

	start := time.Now()
	vector, err := backend.Embed(callCtx, model, text)
	if err != nil {
		g.observeFailure(err)
		g.logger.Warn("embedding call failed",
			zap.String("backend", g.config.Default.String()),
			zap.String("model", model),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, g.translate(err)
	}

	g.logger.Debug("embedding generated",
		zap.String("backend", g.config.Default.String()),
		zap.String("model", model),
		zap.Int("dimension", len(vector)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &EmbedResult{Vector: vector, Model: model, Backend: g.config.Default}, nil
}

// Complete runs a chat completion for the given task
func (g *Gateway) Complete(ctx context.Context, messages []Message, maxTokens int, temperature float64, task TaskType) (*Completion, error) {
	backend, err := g.registry.Get(g.config.Default)
	if err != nil {
		return nil, services.WrapBackendUnavailable("no completion backend registered", err)
	}
	if len(messages) == 0 {
		return nil, services.WrapValidation("completion needs at least one message", nil)
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return nil, services.WrapBackendUnavailable("rate limiter wait cancelled", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, g.config.CallTimeout)
	defer cancel()

	model := g.Model(task)
	resp, err := backend.Complete(callCtx, &CompletionRequest{
		Model:       model,
		Messages:    messages,
		MaxTokens:   maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		g.observeFailure(err)
		g.logger.Warn("completion call failed",
			zap.String("backend", g.config.Default.String()),
			zap.String("model", model),
			zap.Error(err),
		)
		return nil, g.translate(err)
	}
	return resp, nil
}

func (g *Gateway) observeFailure(err error) {
	var provErr *ProviderError
	if errors.As(err, &provErr) && provErr.StatusCode == 429 {
		g.limiter.RecordRateLimitError(rateLimitBackoff)
	}
}

// translate maps backend errors onto the domain error taxonomy
func (g *Gateway) translate(err error) error {
	switch ErrorKindOf(err) {
	case KindInvalidRequest:
		return services.WrapValidation("backend rejected request", err)
	case KindInvalidResponse:
		return services.WrapError(services.ErrorTypeInvalidEmbedding, "backend returned an invalid result", err)
	default:
		return services.WrapBackendUnavailable(fmt.Sprintf("%s backend unavailable", g.config.Default), err)
	}
}
