package scoring

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/telhawk-systems/fraudhawk/internal/models"
)

// stubScorer returns a fixed raw score or error and records the features it
// was invoked with.
type stubScorer struct {
	raw      float64
	err      error
	features []float64
}

func (s *stubScorer) Score(features []float64) (float64, error) {
	s.features = features
	if s.err != nil {
		return 0, s.err
	}
	return s.raw, nil
}

// calibrated wires a stub model with bounds [-1, 1] so that raw score r maps
// to normalized (1-r)/2.
func calibrated(s Scorer) *Calibration {
	return &Calibration{Model: s, MinScore: -1, MaxScore: 1}
}

func event(amount float64, category, location string) *models.TransactionEvent {
	return &models.TransactionEvent{
		TransactionID:    "TX-1",
		AccountID:        "ACC-1",
		Amount:           amount,
		MerchantCategory: category,
		Location:         location,
		Timestamp:        time.Now().UTC(),
	}
}

func TestHighValueRuleBoostsScore(t *testing.T) {
	// Model considers the event perfectly normal.
	engine := NewEngine(calibrated(&stubScorer{raw: 1}), DefaultConfig(), nil)

	for _, amount := range []float64{5000, 5000.01, 250000} {
		res := engine.Score(event(amount, "Food", "Helsinki"), models.AccountAggregate{})

		assert.GreaterOrEqual(t, res.Score, 0.75, "amount %v", amount)
		assert.True(t, res.IsAnomaly, "amount %v", amount)
		assert.Contains(t, res.Reason, ReasonHighValue)
	}
}

func TestSuspiciousComboFiresRegardlessOfModel(t *testing.T) {
	engine := NewEngine(calibrated(&stubScorer{raw: 1}), DefaultConfig(), nil)

	res := engine.Score(event(20, "Gambling", "Unknown"), models.AccountAggregate{})

	assert.Contains(t, res.Reason, ReasonSuspiciousCombo)
	assert.InDelta(t, 0.75, res.Score, 1e-9)
	assert.True(t, res.IsAnomaly)
}

func TestSuspiciousComboRequiresForeignLocation(t *testing.T) {
	engine := NewEngine(calibrated(&stubScorer{raw: 1}), DefaultConfig(), nil)

	res := engine.Score(event(20, "Gambling", "Helsinki"), models.AccountAggregate{})

	assert.NotContains(t, res.Reason, ReasonSuspiciousCombo)
	assert.False(t, res.IsAnomaly)
}

func TestNormalizationInvertsPolarityAndClamps(t *testing.T) {
	tests := []struct {
		name string
		raw  float64
		want float64
	}{
		{"most anomalous inside bounds", -1, 1},
		{"most normal inside bounds", 1, 0},
		{"midpoint", 0, 0.5},
		{"below min clamps to 1", -5, 1},
		{"above max clamps to 0", 5, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := NewEngine(calibrated(&stubScorer{raw: tt.raw}), DefaultConfig(), nil)
			res := engine.Score(event(20, "Food", "Helsinki"), models.AccountAggregate{})
			assert.InDelta(t, tt.want, res.Score, 1e-9)
		})
	}
}

func TestModelAnomalyReason(t *testing.T) {
	// raw -0.9 -> normalized 0.95: model alone crosses the threshold.
	engine := NewEngine(calibrated(&stubScorer{raw: -0.9}), DefaultConfig(), nil)

	res := engine.Score(event(20, "Food", "Helsinki"), models.AccountAggregate{})

	assert.Equal(t, ReasonModelAnomaly, res.Reason)
	assert.InDelta(t, 0.95, res.Score, 1e-9)
	assert.True(t, res.IsAnomaly)
	assert.False(t, res.Degraded)
}

func TestRuleReasonTakesPriorityOverModelReason(t *testing.T) {
	engine := NewEngine(calibrated(&stubScorer{raw: -0.9}), DefaultConfig(), nil)

	res := engine.Score(event(9500, "Gambling", "Unknown"), models.AccountAggregate{})

	assert.Equal(t, "High Value & Suspicious Combo", res.Reason)
	assert.InDelta(t, 0.95, res.Score, 1e-9, "model score wins when above the boost")
}

func TestBenignTransaction(t *testing.T) {
	engine := NewEngine(calibrated(&stubScorer{raw: 0.8}), DefaultConfig(), nil)

	res := engine.Score(event(50, "Food", "Helsinki"), models.AccountAggregate{
		TransactionCount: 12,
		AverageAmount:    47.5,
	})

	assert.Less(t, res.Score, 0.6)
	assert.False(t, res.IsAnomaly)
	assert.Empty(t, res.Reason)
}

func TestDegradesToRuleOnlyWhenModelMissing(t *testing.T) {
	engine := NewEngine(nil, DefaultConfig(), nil)

	flagged := engine.Score(event(9500, "Food", "Helsinki"), models.AccountAggregate{})
	assert.True(t, flagged.Degraded)
	assert.InDelta(t, 0.75, flagged.Score, 1e-9)
	assert.True(t, flagged.IsAnomaly)
	assert.Equal(t, ReasonHighValue, flagged.Reason)

	clean := engine.Score(event(50, "Food", "Helsinki"), models.AccountAggregate{})
	assert.True(t, clean.Degraded)
	assert.Zero(t, clean.Score)
	assert.False(t, clean.IsAnomaly)
	assert.Empty(t, clean.Reason)
}

func TestDegradesToRuleOnlyWhenModelErrors(t *testing.T) {
	engine := NewEngine(calibrated(&stubScorer{err: errors.New("feature mismatch")}), DefaultConfig(), nil)

	res := engine.Score(event(9500, "Food", "Helsinki"), models.AccountAggregate{})

	assert.True(t, res.Degraded)
	assert.InDelta(t, 0.75, res.Score, 1e-9)
}

func TestFeatureVectorDeviation(t *testing.T) {
	scorer := &stubScorer{raw: 0}
	engine := NewEngine(calibrated(scorer), DefaultConfig(), nil)

	engine.Score(event(150, "Food", "Helsinki"), models.AccountAggregate{
		TransactionCount: 4,
		AverageAmount:    100,
	})

	require.Len(t, scorer.features, 3)
	assert.InDelta(t, 150, scorer.features[0], 1e-9)
	assert.InDelta(t, 100, scorer.features[1], 1e-9)
	assert.InDelta(t, 0.5, scorer.features[2], 1e-6)
}

func TestFeatureVectorZeroAverage(t *testing.T) {
	scorer := &stubScorer{raw: 0}
	engine := NewEngine(calibrated(scorer), DefaultConfig(), nil)

	engine.Score(event(150, "Food", "Helsinki"), models.AccountAggregate{})

	require.Len(t, scorer.features, 3)
	assert.Zero(t, scorer.features[2], "zero history must not produce a division fault")
}
