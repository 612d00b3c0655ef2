// Package validator rejects malformed transactions before they reach scoring.
package validator

import (
	"fmt"

	"github.com/telhawk-systems/fraudhawk/internal/models"
)

// ValidationError describes why a transaction was rejected.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid transaction: field %s: %s", e.Field, e.Reason)
}

// Validate performs structural validation on a transaction event.
// It returns a *ValidationError for rejected events.
func Validate(tx *models.TransactionEvent) error {
	if tx == nil {
		return &ValidationError{Field: "event", Reason: "missing"}
	}
	if tx.TransactionID == "" {
		return &ValidationError{Field: "transaction_id", Reason: "missing"}
	}
	if tx.AccountID == "" {
		return &ValidationError{Field: "account_id", Reason: "missing"}
	}
	if tx.MerchantCategory == "" {
		return &ValidationError{Field: "merchant_category", Reason: "missing"}
	}
	if tx.Location == "" {
		return &ValidationError{Field: "location", Reason: "missing"}
	}
	if tx.Timestamp.IsZero() {
		return &ValidationError{Field: "timestamp", Reason: "missing"}
	}
	if tx.Amount <= 0 {
		return &ValidationError{
			Field:  "amount",
			Reason: fmt.Sprintf("must be positive, got %v", tx.Amount),
		}
	}
	return nil
}
