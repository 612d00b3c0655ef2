package notification

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/metrics"
	"github.com/telhawk-systems/fraudhawk/internal/models"
	"github.com/telhawk-systems/fraudhawk/internal/severity"
	"github.com/telhawk-systems/fraudhawk/pkg/retry"
)

// Dispatcher fans an anomalous transaction out to every configured channel
// concurrently. Each channel gets its own retry budget; one channel failing
// never blocks or fails the others, and delivery failures never propagate
// back into the processing pipeline.
type Dispatcher struct {
	channels    []Channel
	policy      retry.Policy
	thresholds  severity.Thresholds
	minSeverity severity.Severity
	logger      *logging.Logger
}

// NewDispatcher creates a dispatcher over the given channels. Transactions
// classified below minSeverity are silently dropped.
func NewDispatcher(channels []Channel, policy retry.Policy, thresholds severity.Thresholds, minSeverity severity.Severity, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.Default()
	}
	return &Dispatcher{
		channels:    channels,
		policy:      policy,
		thresholds:  thresholds,
		minSeverity: minSeverity,
		logger:      logger,
	}
}

// Channels returns the number of configured channels.
func (d *Dispatcher) Channels() int {
	return len(d.channels)
}

// Dispatch classifies the transaction, applies the severity gate, and sends
// the alert to all channels in parallel. It blocks until every channel has
// succeeded or exhausted its retries, then returns the per-channel outcome.
// A nil map means the alert was below the gate or no channels are configured.
func (d *Dispatcher) Dispatch(ctx context.Context, tx *models.ScoredTransaction) map[string]bool {
	sev := severity.Classify(d.thresholds, tx.AnomalyScore, tx.Amount)
	if !sev.AtLeast(d.minSeverity) {
		d.logger.Debug("alert below notification gate",
			logging.TransactionID(tx.TransactionID),
			logging.Severity(sev.String()))
		return nil
	}
	if len(d.channels) == 0 {
		return nil
	}

	alert := &Alert{
		ID:          uuid.New().String(),
		Transaction: tx,
		Severity:    sev,
	}

	results := make(map[string]bool, len(d.channels))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, ch := range d.channels {
		wg.Add(1)
		go func(ch Channel) {
			defer wg.Done()

			err := retry.Do(ctx, d.policy, func() error {
				return ch.Send(ctx, alert)
			})
			if err != nil {
				metrics.Notifications.WithLabelValues(ch.Type(), "failure").Inc()
				d.logger.Error("notification delivery failed",
					logging.Channel(ch.Type()),
					logging.TransactionID(tx.TransactionID),
					logging.Severity(sev.String()),
					logging.Error(err))
			} else {
				metrics.Notifications.WithLabelValues(ch.Type(), "success").Inc()
			}

			mu.Lock()
			results[ch.Type()] = err == nil
			mu.Unlock()
		}(ch)
	}
	wg.Wait()

	d.logger.Info("alert dispatched",
		logging.TransactionID(tx.TransactionID),
		logging.Severity(sev.String()),
		logging.Score(tx.AnomalyScore),
		"alert_id", alert.ID,
		"channels", len(results))

	return results
}
