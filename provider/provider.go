package provider

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mohammad-safakhou/choir/config"
	"github.com/mohammad-safakhou/choir/internal/dispatch"
	"github.com/mohammad-safakhou/choir/internal/telemetry"
	"github.com/mohammad-safakhou/choir/models"
	anthropic_provider "github.com/mohammad-safakhou/choir/provider/anthropic"
	openai_provider "github.com/mohammad-safakhou/choir/provider/openai"
)

// Client represents different LLM providers
type Client string

const (
	OpenAI    Client = "openai"
	Anthropic Client = "anthropic"
)

// ErrUnsupportedType is returned for an unknown llm.type.
var ErrUnsupportedType = errors.New("unsupported LLM provider")

// Provider is the interface that all LLM implementations must satisfy.
// Complete performs exactly one round-trip; it never retries.
type Provider interface {
	Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error)
}

// NewProvider creates a new LLM client based on the provided configuration
func NewProvider(cfg config.LLMConfig) (Provider, error) {
	switch Client(cfg.Type) {
	case OpenAI:
		return openai_provider.NewOpenAIClient(openai_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	case Anthropic:
		return anthropic_provider.NewAnthropicClient(anthropic_provider.Options{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			MaxTokens:   cfg.MaxTokens,
			Timeout:     cfg.Timeout,
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedType, cfg.Type)
	}
}

// Gated routes every call through the dispatch gate, holding one permit for
// the duration of the round-trip.
type Gated struct {
	next    Provider
	gate    *dispatch.Gate
	metrics *telemetry.Metrics
}

// WithGate wraps p so that at most gate.Capacity() calls are in flight.
func WithGate(p Provider, gate *dispatch.Gate, metrics *telemetry.Metrics) *Gated {
	return &Gated{next: p, gate: gate, metrics: metrics}
}

func (g *Gated) Complete(ctx context.Context, req models.CompletionRequest) (models.CompletionResponse, error) {
	var resp models.CompletionResponse
	err := g.gate.Do(ctx, func(ctx context.Context) error {
		started := time.Now()
		var err error
		resp, err = g.next.Complete(ctx, req)
		g.metrics.ObserveProvider(req.Stage, started, err)
		return err
	})
	return resp, err
}
