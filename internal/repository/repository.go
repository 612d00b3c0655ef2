// Package repository provides persistence for scored transactions and the
// read-through account aggregates the scoring engine depends on.
package repository

import (
	"context"
	"errors"

	"github.com/telhawk-systems/fraudhawk/internal/models"
)

var (
	// ErrNotFound is returned when a transaction does not exist.
	ErrNotFound = errors.New("transaction not found")

	// ErrInvalidTransition is returned when a status update would move the
	// analyst workflow backwards.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Repository defines storage operations for the scoring pipeline.
type Repository interface {
	// AccountAggregates computes rolling statistics over all persisted
	// transactions for the account, excluding excludeTxID so a redelivered
	// event never counts itself. The read is never cached: it must reflect
	// the immediately preceding transaction for the same account.
	AccountAggregates(ctx context.Context, accountID, excludeTxID string) (models.AccountAggregate, error)

	// UpsertTransaction persists a scored record keyed by transaction_id.
	// Redelivery updates the existing row instead of duplicating it.
	UpsertTransaction(ctx context.Context, tx *models.ScoredTransaction) error

	// GetTransaction fetches a scored record by transaction_id.
	GetTransaction(ctx context.Context, transactionID string) (*models.ScoredTransaction, error)

	// UpdateStatus applies an analyst status change, enforcing forward-only
	// transitions.
	UpdateStatus(ctx context.Context, transactionID string, next models.Status) error

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the underlying connections.
	Close()
}
