// Package severity maps anomaly scores to qualitative alert tiers.
package severity

// Severity is a qualitative alert bucket. Tiers order from least to most
// severe; they are recomputed at dispatch time and never persisted.
type Severity string

const (
	Info     Severity = "info"
	Warning  Severity = "warning"
	High     Severity = "high"
	Critical Severity = "critical"
)

// Thresholds holds the score and amount boundaries for tier assignment.
type Thresholds struct {
	Critical  float64 `mapstructure:"critical_score"`
	High      float64 `mapstructure:"high_score"`
	Warning   float64 `mapstructure:"warning_score"`
	HighValue float64 `mapstructure:"high_value_amount"`
}

// DefaultThresholds returns the documented tier boundaries.
func DefaultThresholds() Thresholds {
	return Thresholds{
		Critical:  0.9,
		High:      0.8,
		Warning:   0.6,
		HighValue: 5000,
	}
}

// Classify is a pure mapping from (score, amount) to a severity tier.
func Classify(t Thresholds, score, amount float64) Severity {
	switch {
	case score >= t.Critical:
		return Critical
	case score >= t.High || amount >= t.HighValue:
		return High
	case score >= t.Warning:
		return Warning
	default:
		return Info
	}
}

// rank orders tiers for gate comparisons.
func (s Severity) rank() int {
	switch s {
	case Critical:
		return 3
	case High:
		return 2
	case Warning:
		return 1
	default:
		return 0
	}
}

// AtLeast reports whether s meets or exceeds min.
func (s Severity) AtLeast(min Severity) bool {
	return s.rank() >= min.rank()
}

// String returns the tier name.
func (s Severity) String() string { return string(s) }

// Parse maps a configuration string to a Severity, defaulting to High for
// unknown values so a typo never silently opens the notification gate.
func Parse(v string) Severity {
	switch Severity(v) {
	case Info, Warning, High, Critical:
		return Severity(v)
	default:
		return High
	}
}
