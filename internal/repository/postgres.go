package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telhawk-systems/fraudhawk/internal/models"
)

// PostgresRepository implements Repository using PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
}

// NewPostgresRepository creates a new PostgreSQL repository.
func NewPostgresRepository(ctx context.Context, connString string) (*PostgresRepository, error) {
	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Connection pool configuration
	config.MaxConns = 25
	config.MinConns = 5
	config.MaxConnLifetime = 5 * time.Minute
	config.MaxConnIdleTime = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{pool: pool}, nil
}

// AccountAggregates computes count and average amount over the account's
// persisted history, excluding the in-flight transaction.
func (r *PostgresRepository) AccountAggregates(ctx context.Context, accountID, excludeTxID string) (models.AccountAggregate, error) {
	query := `
		SELECT COUNT(*), COALESCE(AVG(amount), 0)
		FROM transactions
		WHERE account_id = $1 AND transaction_id <> $2
	`

	var agg models.AccountAggregate
	err := r.pool.QueryRow(ctx, query, accountID, excludeTxID).Scan(&agg.TransactionCount, &agg.AverageAmount)
	if err != nil {
		return models.AccountAggregate{}, fmt.Errorf("failed to query account aggregates: %w", err)
	}

	return agg, nil
}

// UpsertTransaction inserts or updates a scored record keyed by transaction_id.
// On conflict the status column is left untouched: redelivery must not undo
// an analyst's workflow change.
func (r *PostgresRepository) UpsertTransaction(ctx context.Context, tx *models.ScoredTransaction) error {
	query := `
		INSERT INTO transactions (
			transaction_id, account_id, ts, amount, merchant_category, location,
			is_fraud, anomaly_score, alert_reason, is_anomaly, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (transaction_id) DO UPDATE SET
			account_id        = EXCLUDED.account_id,
			ts                = EXCLUDED.ts,
			amount            = EXCLUDED.amount,
			merchant_category = EXCLUDED.merchant_category,
			location          = EXCLUDED.location,
			is_fraud          = EXCLUDED.is_fraud,
			anomaly_score     = EXCLUDED.anomaly_score,
			alert_reason      = EXCLUDED.alert_reason,
			is_anomaly        = EXCLUDED.is_anomaly
	`

	_, err := r.pool.Exec(ctx, query,
		tx.TransactionID, tx.AccountID, tx.Timestamp, tx.Amount,
		tx.MerchantCategory, tx.Location, tx.IsFraud,
		tx.AnomalyScore, tx.AlertReason, tx.IsAnomaly, string(tx.Status),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert transaction: %w", err)
	}

	return nil
}

// GetTransaction retrieves a scored record by transaction_id.
func (r *PostgresRepository) GetTransaction(ctx context.Context, transactionID string) (*models.ScoredTransaction, error) {
	query := `
		SELECT transaction_id, account_id, ts, amount, merchant_category, location,
		       is_fraud, anomaly_score, alert_reason, is_anomaly, status
		FROM transactions
		WHERE transaction_id = $1
	`

	tx := &models.ScoredTransaction{}
	var status string
	err := r.pool.QueryRow(ctx, query, transactionID).Scan(
		&tx.TransactionID, &tx.AccountID, &tx.Timestamp, &tx.Amount,
		&tx.MerchantCategory, &tx.Location, &tx.IsFraud,
		&tx.AnomalyScore, &tx.AlertReason, &tx.IsAnomaly, &status,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	tx.Status = models.Status(status)

	return tx, nil
}

// UpdateStatus applies an analyst status change inside a transaction so the
// forward-only check and the write are atomic.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, transactionID string, next models.Status) error {
	if !next.Valid() || next == models.StatusNone {
		return fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, next)
	}

	dbTx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer dbTx.Rollback(ctx)

	var current string
	err = dbTx.QueryRow(ctx,
		`SELECT status FROM transactions WHERE transaction_id = $1 FOR UPDATE`,
		transactionID,
	).Scan(&current)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to read current status: %w", err)
	}

	if !models.Status(current).CanTransitionTo(next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, next)
	}

	if _, err := dbTx.Exec(ctx,
		`UPDATE transactions SET status = $1 WHERE transaction_id = $2`,
		string(next), transactionID,
	); err != nil {
		return fmt.Errorf("failed to update status: %w", err)
	}

	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	return nil
}

// Ping verifies database connectivity.
func (r *PostgresRepository) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

// Close releases the connection pool.
func (r *PostgresRepository) Close() {
	r.pool.Close()
}
