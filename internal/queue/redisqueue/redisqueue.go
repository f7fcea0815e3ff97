// Package redisqueue adapts a Redis list to ports.QueuePort (spec §6.3):
// the API is the sole producer (plus reprocess), the worker is the sole
// consumer, and no ordering between documents is required.
package redisqueue

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/SaintWyss/ragcore/internal/apperrors"
	"github.com/SaintWyss/ragcore/internal/ports"
)

const defaultQueueKey = "ragcore:ingest:jobs"

// Queue is a ports.QueuePort backed by a Redis list. Dequeue uses a
// blocking right-pop (BRPOP) so it can wait up to a caller-supplied
// timeout without busy-polling; a popped job is not kept in a
// processing list.
type Queue struct {
	client redis.Cmdable
	key    string
}

// New constructs a Queue against client, an existing *redis.Client (or
// *redis.ClusterClient) connection.
func New(client redis.Cmdable, queueKey string) *Queue {
	if queueKey == "" {
		queueKey = defaultQueueKey
	}
	return &Queue{client: client, key: queueKey}
}

// Enqueue implements ports.QueuePort.
func (q *Queue) Enqueue(ctx context.Context, job ports.Job) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to encode job payload")
	}
	if err := q.client.LPush(ctx, q.key, payload).Err(); err != nil {
		return apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to enqueue ingestion job")
	}
	return nil
}

// Dequeue implements ports.QueuePort, blocking up to timeout for a job
// to become available. It returns (nil, nil) on timeout, matching the
// "no job currently available" case distinctly from an error.
func (q *Queue) Dequeue(ctx context.Context, timeout time.Duration) (*ports.Job, error) {
	result, err := q.client.BRPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeUpstreamUnavailable, "failed to dequeue ingestion job")
	}

	// BRPop returns [key, value]; the payload is the second element.
	var job ports.Job
	if err := json.Unmarshal([]byte(result[1]), &job); err != nil {
		return nil, apperrors.Wrap(err, apperrors.ErrorTypeInternal, "failed to decode job payload")
	}
	return &job, nil
}
