package scoring

import (
	"math"
	"strings"

	"github.com/telhawk-systems/fraudhawk/internal/logging"
	"github.com/telhawk-systems/fraudhawk/internal/metrics"
	"github.com/telhawk-systems/fraudhawk/internal/models"
)

// Alert reasons produced by the rule set and the model.
const (
	ReasonHighValue       = "High Value"
	ReasonSuspiciousCombo = "Suspicious Combo"
	ReasonModelAnomaly    = "ML Anomaly"
)

// epsilon guards the deviation denominator against tiny averages.
const epsilon = 1e-6

// Config holds the calibration defaults for the rule set and score
// combination. The numeric values trace back to the training job's
// documentation.
type Config struct {
	HighValueThreshold float64 `mapstructure:"high_value_threshold"`
	SuspiciousCategory string  `mapstructure:"suspicious_category"`
	ReferenceLocation  string  `mapstructure:"reference_location"`
	RuleBoost          float64 `mapstructure:"rule_boost"`
	AnomalyThreshold   float64 `mapstructure:"anomaly_threshold"`
}

// DefaultConfig returns the documented calibration defaults.
func DefaultConfig() Config {
	return Config{
		HighValueThreshold: 5000,
		SuspiciousCategory: "Gambling",
		ReferenceLocation:  "Helsinki",
		RuleBoost:          0.75,
		AnomalyThreshold:   0.6,
	}
}

// Result is the outcome of scoring one transaction.
type Result struct {
	Score     float64
	Reason    string
	IsAnomaly bool

	// Degraded is set when the model could not be invoked and only the
	// rule component contributed to the score.
	Degraded bool
}

// Engine scores transactions by combining the fixed-priority rule set with
// the calibrated outlier model. A nil calibration (model never loaded) is
// valid and yields rule-only scoring for every event.
type Engine struct {
	cal    *Calibration
	cfg    Config
	logger *logging.Logger
}

// NewEngine creates a scoring engine. cal may be nil when the model failed
// to load at startup.
func NewEngine(cal *Calibration, cfg Config, logger *logging.Logger) *Engine {
	if logger == nil {
		logger = logging.Default()
	}
	return &Engine{cal: cal, cfg: cfg, logger: logger}
}

// Score evaluates one transaction against the rules and the model.
// Model failures never abort the event: the engine degrades to the rule
// component and records the degradation.
func (e *Engine) Score(tx *models.TransactionEvent, agg models.AccountAggregate) Result {
	reasons := e.evaluateRules(tx)

	ruleBoost := 0.0
	if len(reasons) > 0 {
		ruleBoost = e.cfg.RuleBoost
	}

	normalized, degraded := e.modelScore(tx, agg)
	if degraded {
		metrics.ModelDegradations.Inc()
	}

	final := math.Max(normalized, ruleBoost)

	reason := strings.Join(reasons, " & ")
	if reason == "" && normalized >= e.cfg.AnomalyThreshold {
		reason = ReasonModelAnomaly
	}

	return Result{
		Score:     final,
		Reason:    reason,
		IsAnomaly: final >= e.cfg.AnomalyThreshold,
		Degraded:  degraded,
	}
}

// evaluateRules applies the deterministic rules in fixed priority,
// independent of the model.
func (e *Engine) evaluateRules(tx *models.TransactionEvent) []string {
	var reasons []string
	if tx.Amount >= e.cfg.HighValueThreshold {
		reasons = append(reasons, ReasonHighValue)
	}
	if tx.MerchantCategory == e.cfg.SuspiciousCategory && tx.Location != e.cfg.ReferenceLocation {
		reasons = append(reasons, ReasonSuspiciousCombo)
	}
	return reasons
}

// modelScore invokes the model and normalizes its raw output to [0,1] with
// 1.0 the most anomalous. The second return is true when the model was
// unavailable and the caller must fall back to rules.
func (e *Engine) modelScore(tx *models.TransactionEvent, agg models.AccountAggregate) (float64, bool) {
	if e.cal == nil || e.cal.Model == nil {
		return 0, true
	}

	raw, err := e.cal.Model.Score(e.features(tx, agg))
	if err != nil {
		e.logger.Warn("model scoring failed, degrading to rule-only",
			logging.TransactionID(tx.TransactionID),
			logging.Error(err),
		)
		return 0, true
	}

	span := e.cal.MaxScore - e.cal.MinScore
	if span <= 0 {
		e.logger.Warn("calibration bounds collapsed, degrading to rule-only",
			logging.TransactionID(tx.TransactionID),
		)
		return 0, true
	}

	// Invert polarity: the model's most-negative outputs map to 1.0.
	// Values outside the calibration range clamp to the boundaries.
	normalized := (e.cal.MaxScore - raw) / span
	return clamp(normalized, 0, 1), false
}

// features builds the model input vector: amount, account average, and the
// relative deviation from that average. A zero average yields deviation 0
// rather than a division fault.
func (e *Engine) features(tx *models.TransactionEvent, agg models.AccountAggregate) []float64 {
	deviation := 0.0
	if agg.AverageAmount > 0 {
		deviation = (tx.Amount - agg.AverageAmount) / math.Max(agg.AverageAmount, epsilon)
	}
	return []float64{tx.Amount, agg.AverageAmount, deviation}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
