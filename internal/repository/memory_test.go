package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fraudhawk/internal/models"
)

func scored(txID, accountID string, amount float64) *models.ScoredTransaction {
	return &models.ScoredTransaction{
		TransactionEvent: models.TransactionEvent{
			TransactionID:    txID,
			AccountID:        accountID,
			Amount:           amount,
			MerchantCategory: "Food",
			Location:         "Helsinki",
			Timestamp:        time.Date(2026, 5, 2, 9, 30, 0, 0, time.UTC),
		},
		AnomalyScore: 0.1,
	}
}

func TestMemoryUpsertIsIdempotent(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	tx := scored("TX-1", "ACC-1", 100)
	require.NoError(t, repo.UpsertTransaction(ctx, tx))
	require.NoError(t, repo.UpsertTransaction(ctx, tx))

	assert.Equal(t, 1, repo.Len(), "redelivery must upsert, not duplicate")
}

func TestMemoryUpsertUpdatesScoreButKeepsStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	first := scored("TX-1", "ACC-1", 100)
	first.AnomalyScore = 0.95
	first.IsAnomaly = true
	first.Status = models.StatusNew
	require.NoError(t, repo.UpsertTransaction(ctx, first))

	require.NoError(t, repo.UpdateStatus(ctx, "TX-1", models.StatusInvestigated))

	// Redelivered event carries the pipeline's default status.
	redelivered := scored("TX-1", "ACC-1", 100)
	redelivered.AnomalyScore = 0.97
	redelivered.Status = models.StatusNew
	require.NoError(t, repo.UpsertTransaction(ctx, redelivered))

	got, err := repo.GetTransaction(ctx, "TX-1")
	require.NoError(t, err)
	assert.InDelta(t, 0.97, got.AnomalyScore, 1e-9)
	assert.Equal(t, models.StatusInvestigated, got.Status,
		"redelivery must not undo an analyst status change")
}

func TestMemoryAccountAggregates(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertTransaction(ctx, scored("TX-1", "ACC-1", 100)))
	require.NoError(t, repo.UpsertTransaction(ctx, scored("TX-2", "ACC-1", 200)))
	require.NoError(t, repo.UpsertTransaction(ctx, scored("TX-3", "ACC-2", 999)))

	agg, err := repo.AccountAggregates(ctx, "ACC-1", "TX-99")
	require.NoError(t, err)
	assert.Equal(t, int64(2), agg.TransactionCount)
	assert.InDelta(t, 150, agg.AverageAmount, 1e-9)
}

func TestMemoryAccountAggregatesExcludesInFlight(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	require.NoError(t, repo.UpsertTransaction(ctx, scored("TX-1", "ACC-1", 100)))
	require.NoError(t, repo.UpsertTransaction(ctx, scored("TX-2", "ACC-1", 500)))

	// A redelivered TX-2 must not count itself in its own aggregates.
	agg, err := repo.AccountAggregates(ctx, "ACC-1", "TX-2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), agg.TransactionCount)
	assert.InDelta(t, 100, agg.AverageAmount, 1e-9)
}

func TestMemoryAccountAggregatesEmptyHistory(t *testing.T) {
	repo := NewMemoryRepository()

	agg, err := repo.AccountAggregates(context.Background(), "ACC-VOID", "TX-1")
	require.NoError(t, err)
	assert.Zero(t, agg.TransactionCount)
	assert.Zero(t, agg.AverageAmount)
}

func TestMemoryUpdateStatus(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()

	tx := scored("TX-1", "ACC-1", 100)
	tx.Status = models.StatusNew
	require.NoError(t, repo.UpsertTransaction(ctx, tx))

	require.NoError(t, repo.UpdateStatus(ctx, "TX-1", models.StatusInvestigated))
	require.NoError(t, repo.UpdateStatus(ctx, "TX-1", models.StatusFraud))

	// FRAUD is terminal.
	err := repo.UpdateStatus(ctx, "TX-1", models.StatusNew)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	err = repo.UpdateStatus(ctx, "TX-1", models.StatusDismissed)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryUpdateStatusUnknownTransaction(t *testing.T) {
	repo := NewMemoryRepository()

	err := repo.UpdateStatus(context.Background(), "TX-MISSING", models.StatusInvestigated)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryUpdateStatusRejectsUnknownValue(t *testing.T) {
	repo := NewMemoryRepository()
	ctx := context.Background()
	require.NoError(t, repo.UpsertTransaction(ctx, scored("TX-1", "ACC-1", 100)))

	err := repo.UpdateStatus(ctx, "TX-1", models.Status("REOPENED"))
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestMemoryGetTransactionNotFound(t *testing.T) {
	repo := NewMemoryRepository()

	_, err := repo.GetTransaction(context.Background(), "TX-MISSING")
	assert.ErrorIs(t, err, ErrNotFound)
}
