package models

import "time"

// TransactionEvent is a raw transaction as produced upstream on the stream.
// Consumed read-only; IsFraud is a ground-truth label carried through from
// the producer and persisted verbatim.
type TransactionEvent struct {
	TransactionID    string    `json:"transaction_id"`
	AccountID        string    `json:"account_id"`
	Amount           float64   `json:"amount"`
	MerchantCategory string    `json:"merchant_category"`
	Location         string    `json:"location"`
	Timestamp        time.Time `json:"timestamp"`
	IsFraud          int       `json:"is_fraud"`
}

// Status is the analyst workflow state of a scored transaction.
type Status string

const (
	StatusNone         Status = ""
	StatusNew          Status = "NEW"
	StatusInvestigated Status = "INVESTIGATED"
	StatusFraud        Status = "FRAUD"
	StatusDismissed    Status = "DISMISSED"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusNone, StatusNew, StatusInvestigated, StatusFraud, StatusDismissed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the workflow permits moving from s to next.
// Transitions only move forward: NEW -> INVESTIGATED -> {FRAUD, DISMISSED}.
// FRAUD and DISMISSED are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusNew:
		return next == StatusInvestigated || next == StatusFraud || next == StatusDismissed
	case StatusInvestigated:
		return next == StatusFraud || next == StatusDismissed
	default:
		return false
	}
}

// ScoredTransaction is the pipeline output persisted per transaction_id.
type ScoredTransaction struct {
	TransactionEvent

	AnomalyScore float64 `json:"anomaly_score"`
	AlertReason  string  `json:"alert_reason,omitempty"`
	IsAnomaly    bool    `json:"is_anomaly"`
	Status       Status  `json:"status,omitempty"`
}

// AccountAggregate holds rolling statistics for an account, derived on demand
// from persisted history. It is never stored.
type AccountAggregate struct {
	TransactionCount int64   `json:"transaction_count"`
	AverageAmount    float64 `json:"average_amount"`
}
