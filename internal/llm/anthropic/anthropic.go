// Package anthropic adapts Anthropic's Messages API to ports.LLMPort
// (spec §9, "Polymorphism"), for LLM_PROVIDER_KEY-authenticated
// deployments (spec §6.4).
package anthropic

import (
	"context"
	"errors"
	"io"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/ports"
	"github.com/SaintWyss/ragcore/internal/resilience"
)

// Provider is a ports.LLMPort backed by the Anthropic Messages API.
type Provider struct {
	client    anthropicsdk.Client
	model     anthropicsdk.Model
	maxTokens int64
	breaker   *resilience.Breaker
}

// Config selects the model and default generation ceiling.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int64
}

// New constructs a Provider.
func New(cfg Config) *Provider {
	model := anthropicsdk.Model(cfg.Model)
	if cfg.Model == "" {
		model = anthropicsdk.ModelClaude3_5SonnetLatest
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Provider{
		client:    anthropicsdk.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: maxTokens,
		breaker:   resilience.NewBreaker("anthropic-llm"),
	}
}

// Generate implements ports.LLMPort's buffered path (spec §4.7, "Buffered generation").
func (p *Provider) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResult, error) {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.Messages.New(ctx, anthropicsdk.MessageNewParams{
			Model:     p.model,
			MaxTokens: maxTokens,
			System:    []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}},
			Messages: []anthropicsdk.MessageParam{
				anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.UserPrompt)),
			},
		})
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeUpstreamUnavailable) {
			return ports.GenerateResult{}, err
		}
		return ports.GenerateResult{}, classify(err)
	}
	message := result.(*anthropicsdk.Message)

	var text string
	for _, block := range message.Content {
		if tb := block.AsAny(); tb != nil {
			if t, ok := tb.(anthropicsdk.TextBlock); ok {
				text += t.Text
			}
		}
	}
	return ports.GenerateResult{Text: text, FinishReason: string(message.StopReason)}, nil
}

// GenerateStream implements ports.LLMPort's streaming path (spec §4.7,
// "Streaming generation").
func (p *Provider) GenerateStream(ctx context.Context, req ports.GenerateRequest) (ports.TokenStream, error) {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	stream := p.client.Messages.NewStreaming(streamCtx, anthropicsdk.MessageNewParams{
		Model:     p.model,
		MaxTokens: maxTokens,
		System:    []anthropicsdk.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(anthropicsdk.NewTextBlock(req.UserPrompt)),
		},
	})
	return &tokenStream{stream: stream, cancel: cancel}, nil
}

type streamEventSource interface {
	Next() bool
	Current() anthropicsdk.MessageStreamEventUnion
	Err() error
	Close() error
}

type tokenStream struct {
	stream streamEventSource
	cancel context.CancelFunc
}

func (s *tokenStream) Recv(ctx context.Context) (string, error) {
	for s.stream.Next() {
		event := s.stream.Current()
		if delta, ok := event.AsAny().(anthropicsdk.ContentBlockDeltaEvent); ok {
			if textDelta, ok := delta.Delta.AsAny().(anthropicsdk.TextDelta); ok && textDelta.Text != "" {
				return textDelta.Text, nil
			}
			continue
		}
	}
	if err := s.stream.Err(); err != nil {
		return "", classify(err)
	}
	return "", io.EOF
}

func (s *tokenStream) Close() error {
	s.cancel()
	return s.stream.Close()
}

// classify maps an SDK error into the dependency error taxonomy (spec
// §7) so the resilience package's retry classification and the
// retriever/generator's fallback paths can act on it.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 429 || apiErr.StatusCode >= 500:
			return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "Anthropic Messages API unavailable")
		case apiErr.StatusCode >= 400:
			return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "Anthropic request rejected")
		}
	}
	return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTimeout, "Anthropic request timed out")
}
