// Package bedrock adapts Anthropic-on-Bedrock InvokeModel calls to
// ports.LLMPort (spec §9, "Polymorphism"), for deployments that route
// generation through AWS Bedrock rather than a direct vendor API.
package bedrock

import (
	"context"
	"encoding/json"
	"io"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/ports"
	"github.com/SaintWyss/ragcore/internal/resilience"
)

const anthropicVersion = "bedrock-2023-05-31"

// invokeClient is the subset of *bedrockruntime.Client the Provider
// needs, so tests can substitute a stub.
type invokeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
	InvokeModelWithResponseStream(ctx context.Context, params *bedrockruntime.InvokeModelWithResponseStreamInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelWithResponseStreamOutput, error)
}

// Provider is a ports.LLMPort backed by a Claude model served through
// Bedrock's InvokeModel API.
type Provider struct {
	client    invokeClient
	modelID   string
	maxTokens int
	breaker   *resilience.Breaker
}

// New constructs a Provider. client is typically *bedrockruntime.Client
// built from an aws-sdk-go-v2/config.LoadDefaultConfig result.
func New(client *bedrockruntime.Client, modelID string, maxTokens int) *Provider {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Provider{client: client, modelID: modelID, maxTokens: maxTokens, breaker: resilience.NewBreaker("bedrock-llm")}
}

// NewForTest builds a Provider against any invokeClient implementation,
// for substituting a stub in place of a real Bedrock client.
func NewForTest(client invokeClient, modelID string, maxTokens int) *Provider {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Provider{client: client, modelID: modelID, maxTokens: maxTokens, breaker: resilience.NewBreaker("bedrock-llm")}
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type invokeRequest struct {
	AnthropicVersion string    `json:"anthropic_version"`
	MaxTokens        int       `json:"max_tokens"`
	System           string    `json:"system,omitempty"`
	Messages         []message `json:"messages"`
}

type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type invokeResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
}

func (p *Provider) requestBody(req ports.GenerateRequest) ([]byte, error) {
	maxTokens := p.maxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}
	return json.Marshal(invokeRequest{
		AnthropicVersion: anthropicVersion,
		MaxTokens:        maxTokens,
		System:           req.SystemPrompt,
		Messages:         []message{{Role: "user", Content: req.UserPrompt}},
	})
}

// Generate implements ports.LLMPort's buffered path.
func (p *Provider) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResult, error) {
	body, err := p.requestBody(req)
	if err != nil {
		return ports.GenerateResult{}, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode Bedrock request")
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     &p.modelID,
			ContentType: strPtr("application/json"),
			Body:        body,
		})
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeUpstreamUnavailable) {
			return ports.GenerateResult{}, err
		}
		return ports.GenerateResult{}, classify(err)
	}
	out := result.(*bedrockruntime.InvokeModelOutput)

	var parsed invokeResponse
	if err := json.Unmarshal(out.Body, &parsed); err != nil {
		return ports.GenerateResult{}, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "failed to decode Bedrock response")
	}

	var text string
	for _, block := range parsed.Content {
		if block.Type == "text" {
			text += block.Text
		}
	}
	return ports.GenerateResult{Text: text, FinishReason: parsed.StopReason}, nil
}

type streamChunkDelta struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type streamChunk struct {
	Type  string           `json:"type"`
	Delta streamChunkDelta `json:"delta"`
}

// GenerateStream implements ports.LLMPort's streaming path using
// Bedrock's chunked response-stream event payloads.
func (p *Provider) GenerateStream(ctx context.Context, req ports.GenerateRequest) (ports.TokenStream, error) {
	body, err := p.requestBody(req)
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode Bedrock request")
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
			ModelId:     &p.modelID,
			ContentType: strPtr("application/json"),
			Body:        body,
		})
	})
	if err != nil {
		if apperrors.IsType(err, apperrors.ErrorTypeUpstreamUnavailable) {
			return nil, err
		}
		return nil, classify(err)
	}
	out := result.(*bedrockruntime.InvokeModelWithResponseStreamOutput)
	return &tokenStream{stream: out.GetStream()}, nil
}

type eventStream interface {
	Events() <-chan types.ResponseStream
	Close() error
	Err() error
}

type tokenStream struct {
	stream eventStream
}

func (s *tokenStream) Recv(ctx context.Context) (string, error) {
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case event, ok := <-s.stream.Events():
			if !ok {
				if err := s.stream.Err(); err != nil {
					return "", classify(err)
				}
				return "", io.EOF
			}
			chunkEvent, ok := event.(*types.ResponseStreamMemberChunk)
			if !ok {
				continue
			}
			var chunk streamChunk
			if err := json.Unmarshal(chunkEvent.Value.Bytes, &chunk); err != nil {
				return "", apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "failed to decode Bedrock stream chunk")
			}
			if chunk.Type == "content_block_delta" && chunk.Delta.Text != "" {
				return chunk.Delta.Text, nil
			}
		}
	}
}

func (s *tokenStream) Close() error {
	return s.stream.Close()
}

func classify(err error) error {
	var throttled *types.ThrottlingException
	var unavailable *types.ServiceUnavailableException
	if asType(err, &throttled) || asType(err, &unavailable) {
		return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "Bedrock runtime unavailable")
	}
	var validation *types.ValidationException
	if asType(err, &validation) {
		return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "Bedrock request rejected")
	}
	return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamTimeout, "Bedrock request timed out")
}

func asType[T error](err error, target *T) bool {
	for err != nil {
		if t, ok := err.(T); ok {
			*target = t
			return true
		}
		unwrapper, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = unwrapper.Unwrap()
	}
	return false
}

func strPtr(s string) *string { return &s }
