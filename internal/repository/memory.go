package repository

import (
	"context"
	"fmt"
	"sync"

	"github.com/telhawk-systems/fraudhawk/internal/models"
)

// MemoryRepository is an in-memory Repository used in tests and local
// development. It enforces the same invariants as the PostgreSQL
// implementation.
type MemoryRepository struct {
	mu           sync.RWMutex
	transactions map[string]*models.ScoredTransaction
}

// NewMemoryRepository creates an empty in-memory repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		transactions: make(map[string]*models.ScoredTransaction),
	}
}

// AccountAggregates computes count and average over stored transactions for
// the account, excluding excludeTxID.
func (r *MemoryRepository) AccountAggregates(ctx context.Context, accountID, excludeTxID string) (models.AccountAggregate, error) {
	if err := ctx.Err(); err != nil {
		return models.AccountAggregate{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var count int64
	var sum float64
	for id, tx := range r.transactions {
		if tx.AccountID != accountID || id == excludeTxID {
			continue
		}
		count++
		sum += tx.Amount
	}

	agg := models.AccountAggregate{TransactionCount: count}
	if count > 0 {
		agg.AverageAmount = sum / float64(count)
	}
	return agg, nil
}

// UpsertTransaction stores a copy of the record keyed by transaction_id.
// Like the PostgreSQL implementation, a conflicting write preserves the
// existing status.
func (r *MemoryRepository) UpsertTransaction(ctx context.Context, tx *models.ScoredTransaction) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if tx == nil || tx.TransactionID == "" {
		return fmt.Errorf("transaction_id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	cp := *tx
	if existing, ok := r.transactions[tx.TransactionID]; ok {
		cp.Status = existing.Status
	}
	r.transactions[tx.TransactionID] = &cp
	return nil
}

// GetTransaction retrieves a stored record by transaction_id.
func (r *MemoryRepository) GetTransaction(ctx context.Context, transactionID string) (*models.ScoredTransaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	tx, ok := r.transactions[transactionID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *tx
	return &cp, nil
}

// UpdateStatus applies an analyst status change, enforcing forward-only
// transitions.
func (r *MemoryRepository) UpdateStatus(ctx context.Context, transactionID string, next models.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !next.Valid() || next == models.StatusNone {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	tx, ok := r.transactions[transactionID]
	if !ok {
		return ErrNotFound
	}
	if !tx.Status.CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, tx.Status, next)
	}
	tx.Status = next
	return nil
}

// Ping always succeeds.
func (r *MemoryRepository) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Close is a no-op.
func (r *MemoryRepository) Close() {}

// Len returns the number of stored transactions.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.transactions)
}
