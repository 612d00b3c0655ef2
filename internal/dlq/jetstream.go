// Package dlq parks transaction events the pipeline could not persist on a
// dedicated JetStream stream so they can be inspected and replayed.
package dlq

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/metrics"
	"github.com/telhawk-systems/fraudhawk/internal/stream"
)

// FailedEvent wraps a transaction payload that exhausted its persistence
// retries, with enough context to diagnose and replay it.
type FailedEvent struct {
	Timestamp   time.Time       `json:"timestamp"`
	Payload     json.RawMessage `json:"payload"`
	Error       string          `json:"error"`
	Reason      string          `json:"reason"`
	Attempts    int             `json:"attempts"`
	LastAttempt time.Time       `json:"last_attempt"`
}

// Queue writes failed events to NATS JetStream for centralized dead
// lettering. Safe for use across multiple detector instances. A nil *Queue
// is a no-op, so callers never need to branch on whether the DLQ is enabled.
type Queue struct {
	client  *stream.Client
	stream  jetstream.Stream
	logger  *logging.Logger
	written uint64
}

// NewQueue creates a DLQ backed by NATS JetStream.
func NewQueue(ctx context.Context, client *stream.Client, logger *logging.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("jetstream client is nil")
	}
	if logger == nil {
		logger = logging.Default()
	}

	s, err := client.CreateOrUpdateStream(ctx, stream.DetectorDLQStream)
	if err != nil {
		return nil, fmt.Errorf("create dlq stream: %w", err)
	}

	logger.Info("dlq stream ready", "stream", stream.DetectorDLQStream.Name)

	return &Queue{
		client: client,
		stream: s,
		logger: logger,
	}, nil
}

// Write records a failed event on the DLQ stream. attempts is the number of
// persistence attempts that were exhausted before giving up.
func (q *Queue) Write(ctx context.Context, payload []byte, cause error, reason string, attempts int) error {
	if q == nil {
		return nil
	}

	now := time.Now().UTC()
	failed := FailedEvent{
		Timestamp:   now,
		Payload:     json.RawMessage(payload),
		Error:       cause.Error(),
		Reason:      reason,
		Attempts:    attempts,
		LastAttempt: now,
	}

	data, marshalErr := json.Marshal(failed)
	if marshalErr != nil {
		q.logger.Error("failed to marshal dlq entry", logging.Error(marshalErr))
		return marshalErr
	}

	// Subject format: detector.dlq.<reason>
	subject := fmt.Sprintf("detector.dlq.%s", reason)

	if _, pubErr := q.client.PublishSync(ctx, subject, data); pubErr != nil {
		q.logger.Error("failed to publish dlq entry", logging.Error(pubErr))
		return pubErr
	}

	atomic.AddUint64(&q.written, 1)
	metrics.DeadLetterEvents.Inc()
	q.logger.Warn("event dead-lettered", "reason", reason, logging.Error(cause))

	return nil
}

// Stats returns DLQ metrics from JetStream.
func (q *Queue) Stats(ctx context.Context) map[string]interface{} {
	if q == nil {
		return map[string]interface{}{
			"enabled": false,
			"backend": "jetstream",
		}
	}

	info, err := q.stream.Info(ctx)
	if err != nil {
		q.logger.Error("failed to get dlq stream info", logging.Error(err))
		return map[string]interface{}{
			"enabled":       true,
			"backend":       "jetstream",
			"written_local": atomic.LoadUint64(&q.written),
			"error":         err.Error(),
		}
	}

	return map[string]interface{}{
		"enabled":        true,
		"backend":        "jetstream",
		"written_local":  atomic.LoadUint64(&q.written),
		"total_messages": info.State.Msgs,
		"total_bytes":    info.State.Bytes,
		"first_seq":      info.State.FirstSeq,
		"last_seq":       info.State.LastSeq,
		"consumer_count": info.State.Consumers,
	}
}

// List returns up to limit failed events from the DLQ stream.
func (q *Queue) List(ctx context.Context, limit int) ([]FailedEvent, error) {
	if q == nil {
		return nil, fmt.Errorf("dlq not enabled")
	}

	if limit <= 0 {
		limit = 100
	}

	consumer, err := q.stream.CreateOrUpdateConsumer(ctx, jetstream.ConsumerConfig{
		FilterSubject: "detector.dlq.>",
		AckPolicy:     jetstream.AckNonePolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    1,
	})
	if err != nil {
		return nil, fmt.Errorf("create list consumer: %w", err)
	}

	msgs, err := consumer.Fetch(limit, jetstream.FetchMaxWait(2*time.Second))
	if err != nil {
		return nil, fmt.Errorf("fetch messages: %w", err)
	}

	var events []FailedEvent
	for msg := range msgs.Messages() {
		var failed FailedEvent
		if err := json.Unmarshal(msg.Data(), &failed); err != nil {
			q.logger.Error("failed to parse dlq message", logging.Error(err))
			continue
		}
		events = append(events, failed)
	}

	if msgs.Error() != nil {
		q.logger.Warn("dlq fetch completed with error", logging.Error(msgs.Error()))
	}

	return events, nil
}

// Purge removes all events from the DLQ stream.
func (q *Queue) Purge(ctx context.Context) error {
	if q == nil {
		return fmt.Errorf("dlq not enabled")
	}

	if err := q.stream.Purge(ctx); err != nil {
		return fmt.Errorf("purge dlq stream: %w", err)
	}

	q.logger.Info("dlq purged")
	return nil
}

// Written returns the number of events this instance has dead-lettered.
func (q *Queue) Written() uint64 {
	if q == nil {
		return 0
	}
	return atomic.LoadUint64(&q.written)
}
