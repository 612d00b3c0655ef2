package dlq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilQueueIsNoOp(t *testing.T) {
	var q *Queue
	ctx := context.Background()

	assert.NoError(t, q.Write(ctx, []byte(`{}`), errors.New("boom"), "persist_failed", 3))
	assert.EqualValues(t, 0, q.Written())

	stats := q.Stats(ctx)
	assert.Equal(t, false, stats["enabled"])
	assert.Equal(t, "jetstream", stats["backend"])

	_, err := q.List(ctx, 10)
	assert.Error(t, err)
	assert.Error(t, q.Purge(ctx))
}

func TestNewQueueNilClient(t *testing.T) {
	_, err := NewQueue(context.Background(), nil, nil)
	require.Error(t, err)
}

func TestFailedEventRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	failed := FailedEvent{
		Timestamp:   now,
		Payload:     json.RawMessage(`{"transaction_id":"tx-1","amount":9500}`),
		Error:       "connection refused",
		Reason:      "persist_failed",
		Attempts:    3,
		LastAttempt: now,
	}

	data, err := json.Marshal(failed)
	require.NoError(t, err)

	var decoded FailedEvent
	require.NoError(t, json.Unmarshal(data, &decoded))

	assert.Equal(t, failed.Reason, decoded.Reason)
	assert.Equal(t, failed.Attempts, decoded.Attempts)
	assert.JSONEq(t, string(failed.Payload), string(decoded.Payload))
	assert.True(t, decoded.Timestamp.Equal(now))
}
