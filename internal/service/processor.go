// Package service implements the per-event scoring pipeline: validate,
// aggregate lookup, score, persist, invalidate cache, notify.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/telhawk-systems/fraudhawk/internal/cache"
	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/metrics"
	"github.com/telhawk-systems/fraudhawk/internal/models"
	"github.com/telhawk-systems/fraudhawk/internal/repository"
	"github.com/telhawk-systems/fraudhawk/internal/scoring"
	"github.com/telhawk-systems/fraudhawk/internal/validator"
	"github.com/telhawk-systems/fraudhawk/pkg/retry"
)

// Dead-letter reasons.
const (
	ReasonMalformedEvent   = "malformed_event"
	ReasonInvalidEvent     = "invalid_event"
	ReasonAggregatesFailed = "aggregates_failed"
	ReasonPersistFailed    = "persist_failed"
)

// Notifier dispatches an alert for an anomalous transaction and reports the
// per-channel outcome.
type Notifier interface {
	Dispatch(ctx context.Context, tx *models.ScoredTransaction) map[string]bool
}

// DeadLetter parks an event that could not be handled.
type DeadLetter interface {
	Write(ctx context.Context, payload []byte, cause error, reason string, attempts int) error
}

// Processor owns the hot path for a single transaction event. Persistence is
// the commit point: an event is either persisted or dead-lettered before the
// caller acknowledges it. Notification runs asynchronously and its failures
// never reach the caller.
type Processor struct {
	repo        repository.Repository
	engine      *scoring.Engine
	invalidator *cache.Invalidator
	notifier    Notifier
	deadLetter  DeadLetter
	policy      retry.Policy
	logger      *logging.Logger

	// wg tracks in-flight notification goroutines for shutdown.
	wg sync.WaitGroup
}

// NewProcessor wires the pipeline stages together. invalidator, notifier and
// deadLetter may be nil; the corresponding stage is skipped.
func NewProcessor(repo repository.Repository, engine *scoring.Engine, invalidator *cache.Invalidator, notifier Notifier, deadLetter DeadLetter, policy retry.Policy, logger *logging.Logger) *Processor {
	if logger == nil {
		logger = logging.Default()
	}
	return &Processor{
		repo:        repo,
		engine:      engine,
		invalidator: invalidator,
		notifier:    notifier,
		deadLetter:  deadLetter,
		policy:      policy,
		logger:      logger,
	}
}

// Process handles one raw event payload end to end and returns the scored
// record once it has been persisted. A nil record with a nil error means the
// event was terminally handled some other way (dead-lettered); the caller
// should acknowledge. A non-nil error means the event is still unhandled and
// must stay on the stream for redelivery.
func (p *Processor) Process(ctx context.Context, payload []byte) (*models.ScoredTransaction, error) {
	start := time.Now()

	var event models.TransactionEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		metrics.ProcessingErrors.Inc()
		return nil, p.park(ctx, payload, err, ReasonMalformedEvent, 1)
	}

	if err := validator.Validate(&event); err != nil {
		metrics.ProcessingErrors.Inc()
		p.logger.Warn("event failed validation",
			logging.TransactionID(event.TransactionID),
			logging.Error(err))
		return nil, p.park(ctx, payload, err, ReasonInvalidEvent, 1)
	}

	// Aggregates must reflect all previously persisted history for the
	// account, excluding the event in flight.
	agg, err := p.lookupAggregates(ctx, &event)
	if err != nil {
		metrics.ProcessingErrors.Inc()
		return nil, p.park(ctx, payload, err, ReasonAggregatesFailed, p.policy.MaxAttempts)
	}

	result := p.engine.Score(&event, agg)

	scored := &models.ScoredTransaction{
		TransactionEvent: event,
		AnomalyScore:     result.Score,
		AlertReason:      result.Reason,
		IsAnomaly:        result.IsAnomaly,
		Status:           models.StatusNew,
	}

	if err := p.persist(ctx, scored); err != nil {
		metrics.ProcessingErrors.Inc()
		return nil, p.park(ctx, payload, err, ReasonPersistFailed, p.policy.MaxAttempts)
	}

	metrics.TransactionsProcessed.Inc()
	metrics.AnomalyScores.Observe(scored.AnomalyScore)
	metrics.ProcessingDuration.Observe(time.Since(start).Seconds())

	if scored.IsAnomaly {
		metrics.AnomaliesDetected.Inc()
		p.invalidateCache(ctx)
		p.notify(scored)
	}

	p.logger.Info("transaction processed",
		logging.TransactionID(scored.TransactionID),
		logging.AccountID(scored.AccountID),
		logging.Amount(scored.Amount),
		logging.Score(scored.AnomalyScore),
		"is_anomaly", scored.IsAnomaly,
		"reason", scored.AlertReason,
		"degraded", result.Degraded)

	return scored, nil
}

// lookupAggregates reads rolling account statistics with the same bounded
// retry budget as persistence; storage hiccups should not dead-letter events
// outright.
func (p *Processor) lookupAggregates(ctx context.Context, event *models.TransactionEvent) (models.AccountAggregate, error) {
	var agg models.AccountAggregate
	attempt := 0
	err := retry.Do(ctx, p.policy, func() error {
		attempt++
		if attempt > 1 {
			metrics.PersistenceRetries.Inc()
		}
		var lookupErr error
		agg, lookupErr = p.repo.AccountAggregates(ctx, event.AccountID, event.TransactionID)
		return lookupErr
	})
	if err != nil {
		return models.AccountAggregate{}, fmt.Errorf("account aggregates: %w", err)
	}
	return agg, nil
}

// persist upserts the scored record with bounded retries.
func (p *Processor) persist(ctx context.Context, scored *models.ScoredTransaction) error {
	attempt := 0
	err := retry.Do(ctx, p.policy, func() error {
		attempt++
		if attempt > 1 {
			metrics.PersistenceRetries.Inc()
		}
		return p.repo.UpsertTransaction(ctx, scored)
	})
	if err != nil {
		return fmt.Errorf("persist transaction: %w", err)
	}
	return nil
}

// park hands the payload to the dead-letter queue. Only a DLQ write failure
// (or a missing DLQ) propagates, keeping the event on the stream.
func (p *Processor) park(ctx context.Context, payload []byte, cause error, reason string, attempts int) error {
	if p.deadLetter == nil {
		return fmt.Errorf("%s: %w", reason, cause)
	}
	if err := p.deadLetter.Write(ctx, payload, cause, reason, attempts); err != nil {
		return fmt.Errorf("dead-letter %s: %w", reason, err)
	}
	return nil
}

func (p *Processor) invalidateCache(ctx context.Context) {
	if p.invalidator == nil || !p.invalidator.Enabled() {
		return
	}
	if _, err := p.invalidator.Invalidate(ctx); err != nil {
		// Cache staleness is tolerable; persistence already succeeded.
		p.logger.Warn("cache invalidation failed", logging.Error(err))
	}
}

// notify dispatches asynchronously so delivery latency and failures stay off
// the hot path. The dispatch context is detached from the per-event context,
// which is typically cancelled as soon as the event is acknowledged.
func (p *Processor) notify(scored *models.ScoredTransaction) {
	if p.notifier == nil {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.notifier.Dispatch(context.Background(), scored)
	}()
}

// Wait blocks until all in-flight notification dispatches have finished.
// Called during shutdown after the consumer has drained.
func (p *Processor) Wait() {
	p.wg.Wait()
}
