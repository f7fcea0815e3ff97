// Package fakellm provides a deterministic language-model stub selected
// by FAKE_LLM (spec §6.4), for tests and local development without a
// real LLM vendor.
package fakellm

import (
	"context"
	"io"
	"strings"

	"github.com/SaintWyss/ragcore/internal/ports"
)

// Provider answers every request by echoing a fixed-shape response
// derived from the prompt, so tests can assert on its content without
// any network dependency.
type Provider struct{}

// New constructs a fake LLM Provider.
func New() *Provider { return &Provider{} }

// Generate implements ports.LLMPort.
func (p *Provider) Generate(ctx context.Context, req ports.GenerateRequest) (ports.GenerateResult, error) {
	return ports.GenerateResult{Text: respond(req), FinishReason: "stop"}, nil
}

// GenerateStream implements ports.LLMPort, splitting the same response
// Generate would produce into whitespace-delimited token events.
func (p *Provider) GenerateStream(ctx context.Context, req ports.GenerateRequest) (ports.TokenStream, error) {
	words := strings.Fields(respond(req))
	return &tokenStream{words: words}, nil
}

func respond(req ports.GenerateRequest) string {
	if !strings.Contains(req.UserPrompt, "Context:") {
		return "I don't have enough context to answer that."
	}
	return "Based on the provided context, here is the answer to your question."
}

type tokenStream struct {
	words  []string
	i      int
	closed bool
}

func (s *tokenStream) Recv(ctx context.Context) (string, error) {
	if s.closed {
		return "", io.EOF
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	if s.i >= len(s.words) {
		return "", io.EOF
	}
	token := s.words[s.i] + " "
	s.i++
	return token, nil
}

func (s *tokenStream) Close() error {
	s.closed = true
	return nil
}
