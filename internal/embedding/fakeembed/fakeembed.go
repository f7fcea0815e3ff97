// Package fakeembed provides a deterministic embedding stub selected by
// FAKE_EMBEDDINGS (spec §6.4), for tests and local development without a
// real embedding vendor.
package fakeembed

import (
	"context"
	"hash/fnv"

	"github.com/SaintWyss/ragcore/internal/domain"
)

// Provider deterministically derives a unit-ish vector from each input
// string's hash, so identical text always embeds to the same vector and
// different text embeds differently, without calling out to a real
// provider.
type Provider struct{}

// New constructs a fake embedding Provider.
func New() *Provider { return &Provider{} }

// EmbedBatch implements ports.EmbeddingPort.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = deterministicVector(text)
	}
	return out, nil
}

func deterministicVector(text string) []float32 {
	vec := make([]float32, domain.EmbeddingDim)
	h := fnv.New64a()
	h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)%1000) / 1000.0
	}
	return vec
}
