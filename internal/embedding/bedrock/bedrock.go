// Package bedrock adapts Amazon Titan Embeddings (served through
// Bedrock's InvokeModel API) to ports.EmbeddingPort (spec §9,
// "Polymorphism").
package bedrock

import (
	"context"
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/resilience"
)

// invokeClient is the subset of *bedrockruntime.Client the Provider
// needs, so tests can substitute a stub.
type invokeClient interface {
	InvokeModel(ctx context.Context, params *bedrockruntime.InvokeModelInput, optFns ...func(*bedrockruntime.Options)) (*bedrockruntime.InvokeModelOutput, error)
}

// Provider is a ports.EmbeddingPort backed by a Titan embedding model
// served through Bedrock. Titan's InvokeModel API embeds one string per
// call, so EmbedBatch issues one request per input.
type Provider struct {
	client  invokeClient
	modelID string
	breaker *resilience.Breaker
}

// New constructs a Provider. client is typically *bedrockruntime.Client
// built from an aws-sdk-go-v2/config.LoadDefaultConfig result.
func New(client *bedrockruntime.Client, modelID string) *Provider {
	return &Provider{client: client, modelID: modelID, breaker: resilience.NewBreaker("bedrock-embedding")}
}

// NewForTest builds a Provider against any invokeClient implementation,
// for substituting a stub in place of a real Bedrock client.
func NewForTest(client invokeClient, modelID string) *Provider {
	return &Provider{client: client, modelID: modelID, breaker: resilience.NewBreaker("bedrock-embedding")}
}

type embedRequest struct {
	InputText string `json:"inputText"`
}

type embedResponse struct {
	Embedding []float32 `json:"embedding"`
}

// EmbedBatch implements ports.EmbeddingPort.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := p.embedOne(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (p *Provider) embedOne(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embedRequest{InputText: text})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode Bedrock embedding request")
	}

	result, err := p.breaker.Execute(func() (interface{}, error) {
		return p.client.InvokeModel(ctx, &bedrockruntime.InvokeModelInput{
			ModelId:     &p.modelID,
			ContentType: strPtr("application/json"),
			Body:        body,
		})
	})
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "Bedrock embedding call failed")
	}
	resp := result.(*bedrockruntime.InvokeModelOutput)

	var parsed embedResponse
	if err := json.Unmarshal(resp.Body, &parsed); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamError, "failed to decode Bedrock embedding response")
	}
	return parsed.Embedding, nil
}

func strPtr(s string) *string { return &s }
