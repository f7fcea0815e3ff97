// Package audit implements the append-only Audit Event sink (spec §3):
// one row per mutating operation on users, workspaces, ACL entries,
// documents, and each document state transition.
package audit

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/SaintWyss/ragcore/internal/domain"
	"github.com/SaintWyss/ragcore/internal/obslog"
)

// Store persists a single audit event, typically an INSERT into the
// append-only audit_events table.
type Store interface {
	Insert(ctx context.Context, event domain.AuditEvent) error
}

// BufferedSink batches audit writes so a mutating request is never held
// up by the audit table: Record enqueues and returns immediately, and a
// background loop drains the buffer in the background. A full buffer
// drops the incoming event rather than blocking the caller, since
// an audit trail gap is preferable to stalling user-facing writes.
type BufferedSink struct {
	store  Store
	logger *zap.Logger

	mu      sync.Mutex
	pending chan domain.AuditEvent
	done    chan struct{}
	wg      sync.WaitGroup
}

// NewBufferedSink constructs a BufferedSink with the given channel
// capacity and starts its drain loop. Close must be called to stop the
// loop and flush any last events synchronously.
func NewBufferedSink(store Store, capacity int, logger *zap.Logger) *BufferedSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	if capacity <= 0 {
		capacity = 256
	}
	s := &BufferedSink{
		store:   store,
		logger:  logger,
		pending: make(chan domain.AuditEvent, capacity),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.drain()
	return s
}

// Record enqueues an audit event without blocking. If the buffer is
// full, the event is dropped and logged at warning level rather than
// applying backpressure to the caller's transaction.
func (s *BufferedSink) Record(ctx context.Context, event domain.AuditEvent) error {
	select {
	case s.pending <- event:
		return nil
	default:
		s.logger.Warn("audit buffer full, dropping event", obslog.NewFields().Component("audit").Operation(event.Action).Custom("target_id", event.TargetID).Zap()...)
		return nil
	}
}

func (s *BufferedSink) drain() {
	defer s.wg.Done()
	ctx := context.Background()
	for {
		select {
		case event := <-s.pending:
			s.persist(ctx, event)
		case <-s.done:
			s.drainRemaining(ctx)
			return
		}
	}
}

func (s *BufferedSink) drainRemaining(ctx context.Context) {
	for {
		select {
		case event := <-s.pending:
			s.persist(ctx, event)
		default:
			return
		}
	}
}

func (s *BufferedSink) persist(ctx context.Context, event domain.AuditEvent) {
	if err := s.store.Insert(ctx, event); err != nil {
		s.logger.Error("failed to persist audit event", obslog.NewFields().Component("audit").Operation(event.Action).Error(err).Zap()...)
	}
}

// Close stops the drain loop after flushing any buffered events.
func (s *BufferedSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	s.wg.Wait()
	return nil
}
