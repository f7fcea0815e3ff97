package answer

import (
	"context"
	"errors"
	"io"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/obslog"
	"github.com/SaintWyss/ragcore/internal/ports"
)

// EventKind discriminates the typed sum of streaming events (spec §9,
// "Streaming"): Sources | Token | Done | Error.
type EventKind string

const (
	EventSources EventKind = "sources"
	EventToken   EventKind = "token"
	EventDone    EventKind = "done"
	EventError   EventKind = "error"
)

// Event is a single emitted event in an ask/stream response. Exactly
// one of Citations, Token, or ErrorCode is populated, matching Kind.
type Event struct {
	Kind            EventKind
	Citations       []Citation
	Token           string
	ErrorCode       string
	TemplateVersion string
}

// AskStream runs the streaming generation path (spec §4.7, "Streaming
// generation") as a single-producer/single-consumer cooperative stream:
// it emits `sources` before any `token`, then zero or more `token`
// events, then exactly one terminal `done` or `error` event, on the
// returned channel. The channel is always closed after the terminal
// event. Cancelling ctx aborts the upstream LLM call, releases
// resources, and stops emission with no further events (spec §8, P7).
func (g *Generator) AskStream(ctx context.Context, req Request) (<-chan Event, error) {
	if err := g.authz.AuthorizeRead(ctx, req.Requester, req.WorkspaceID); err != nil {
		return nil, err
	}

	events := make(chan Event, 1)

	if inj := DetectInjection(req.Query); inj.Suspicious {
		if g.counters != nil {
			g.counters.IncPolicyRefusal()
		}
		g.auditBestEffort(ctx, "answer.policy_refusal", req.Requester.ID, req.WorkspaceID, map[string]interface{}{"reason": inj.Reason})
		go func() {
			defer close(events)
			events <- Event{Kind: EventError, ErrorCode: apperrors.ErrorTypePolicyRefusal.Code()}
		}()
		return events, nil
	}

	built, err := g.retrieveAndBuildContext(ctx, req)
	if err != nil {
		return nil, err
	}

	if len(built.context.Included) == 0 {
		if g.counters != nil {
			g.counters.IncAnswerWithoutSources()
		}
		go func() {
			defer close(events)
			events <- Event{Kind: EventSources, Citations: nil, TemplateVersion: g.template.Version}
			events <- Event{Kind: EventToken, Token: g.noContextAnswer}
			events <- Event{Kind: EventDone}
		}()
		return events, nil
	}

	systemPrompt, userPrompt := g.template.Assemble(built.context.Text, req.Query)
	streamCtx, cancel := context.WithTimeout(ctx, g.streamTimeout)

	tokenStream, err := g.llm.GenerateStream(streamCtx, ports.GenerateRequest{SystemPrompt: systemPrompt, UserPrompt: userPrompt})
	if err != nil {
		cancel()
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "language model stream failed to start")
	}

	citations := citationsFrom(built.context.Included)
	go g.pumpStream(streamCtx, cancel, tokenStream, citations, events)
	return events, nil
}

func (g *Generator) pumpStream(ctx context.Context, cancel context.CancelFunc, tokenStream ports.TokenStream, citations []Citation, events chan<- Event) {
	defer cancel()
	defer close(events)
	defer tokenStream.Close()

	if !g.emit(ctx, events, Event{Kind: EventSources, Citations: citations, TemplateVersion: g.template.Version}) {
		return
	}

	emitted := 0
	for {
		if emitted >= g.maxStreamEvents {
			g.emit(ctx, events, Event{Kind: EventError, ErrorCode: "timeout"})
			return
		}

		token, err := tokenStream.Recv(ctx)
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			g.emitIfNotCanceled(events, Event{Kind: EventError, ErrorCode: "timeout"})
			return
		}
		if errors.Is(err, io.EOF) {
			g.emit(ctx, events, Event{Kind: EventDone})
			return
		}
		if err != nil {
			g.logger.Warn("token stream error", obslog.AIFields("generate_stream", "").Error(err).Zap()...)
			g.emitIfNotCanceled(events, Event{Kind: EventError, ErrorCode: apperrors.ErrorTypeUpstreamError.Code()})
			return
		}

		if !g.emit(ctx, events, Event{Kind: EventToken, Token: token}) {
			return
		}
		emitted++
	}
}

// emit sends an event respecting consumer cancellation (spec §5,
// suspension point (d)). It returns false if the context was cancelled
// before the send completed, signalling the pump loop to stop.
func (g *Generator) emit(ctx context.Context, events chan<- Event, event Event) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}

// emitIfNotCanceled best-effort sends a terminal event; if the consumer
// already disconnected, the event is dropped rather than leaked on a
// blocked send.
func (g *Generator) emitIfNotCanceled(events chan<- Event, event Event) {
	select {
	case events <- event:
	default:
	}
}

