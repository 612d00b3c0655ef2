package logging

import "log/slog"

// Common field names for consistent logging across the pipeline.
const (
	FieldService       = "service"
	FieldTransactionID = "transaction_id"
	FieldAccountID     = "account_id"
	FieldAmount        = "amount"
	FieldScore         = "score"
	FieldReason        = "reason"
	FieldSeverity      = "severity"
	FieldChannel       = "channel"
	FieldOutcome       = "outcome"
	FieldError         = "error"
	FieldAttempt       = "attempt"
)

// Service returns a slog attribute for the service name.
func Service(name string) slog.Attr {
	return slog.String(FieldService, name)
}

// TransactionID returns a slog attribute for the transaction ID.
func TransactionID(id string) slog.Attr {
	return slog.String(FieldTransactionID, id)
}

// AccountID returns a slog attribute for the account ID.
func AccountID(id string) slog.Attr {
	return slog.String(FieldAccountID, id)
}

// Amount returns a slog attribute for the transaction amount.
func Amount(v float64) slog.Attr {
	return slog.Float64(FieldAmount, v)
}

// Score returns a slog attribute for the anomaly score.
func Score(v float64) slog.Attr {
	return slog.Float64(FieldScore, v)
}

// Severity returns a slog attribute for the alert severity.
func Severity(s string) slog.Attr {
	return slog.String(FieldSeverity, s)
}

// Channel returns a slog attribute for the notification channel.
func Channel(name string) slog.Attr {
	return slog.String(FieldChannel, name)
}

// Outcome returns a slog attribute for the processing outcome.
func Outcome(o string) slog.Attr {
	return slog.String(FieldOutcome, o)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.String(FieldError, "")
	}
	return slog.String(FieldError, err.Error())
}
