package antispoof

import (
	"fmt"
	"strings"
)

// Config holds the engine's thresholds. It is fixed at construction.
type Config struct {
	HighConfidenceThreshold   float64 `json:"highConfidenceThreshold"`
	MediumConfidenceThreshold float64 `json:"mediumConfidenceThreshold"`
	LowConfidenceThreshold    float64 `json:"lowConfidenceThreshold"`
	MinRealFaceFrames         int     `json:"minRealFaceFrames"`
	ChallengeDurationFrames   int     `json:"challengeDurationFrames"`
	BonusWindowFrames         int     `json:"bonusWindowFrames"`
	BonusAmount               float64 `json:"bonusAmount"`
	HistorySize               int     `json:"historySize"`

	SuspicionRejectThreshold    int `json:"suspicionRejectThreshold"`
	SuspicionChallengeThreshold int `json:"suspicionChallengeThreshold"`

	// Variance outside [VarianceFloor, VarianceCeiling] on a full history is
	// treated as a still image or an erratic replay.
	VarianceFloor   float64 `json:"varianceFloor"`
	VarianceCeiling float64 `json:"varianceCeiling"`

	// Blink pattern: high, below BlinkLowCutoff, high.
	BlinkHighCutoff float64 `json:"blinkHighCutoff"`
	BlinkLowCutoff  float64 `json:"blinkLowCutoff"`
}

// DefaultConfig returns the verification preset.
func DefaultConfig() Config {
	return Config{
		HighConfidenceThreshold:     0.85,
		MediumConfidenceThreshold:   0.70,
		LowConfidenceThreshold:      0.55,
		MinRealFaceFrames:           3,
		ChallengeDurationFrames:     120,
		BonusWindowFrames:           90,
		BonusAmount:                 0.15,
		HistorySize:                 15,
		SuspicionRejectThreshold:    10,
		SuspicionChallengeThreshold: 5,
		VarianceFloor:               0.001,
		VarianceCeiling:             0.1,
		BlinkHighCutoff:             0.6,
		BlinkLowCutoff:              0.3,
	}
}

// Validate checks threshold ordering and positive frame counts.
func (c Config) Validate() error {
	switch {
	case c.LowConfidenceThreshold < 0 || c.HighConfidenceThreshold > 1:
		return fmt.Errorf("%w: thresholds must lie in [0,1]", ErrInvalidConfig)
	case !(c.LowConfidenceThreshold <= c.MediumConfidenceThreshold && c.MediumConfidenceThreshold <= c.HighConfidenceThreshold):
		return fmt.Errorf("%w: thresholds must ascend low <= medium <= high", ErrInvalidConfig)
	case c.MinRealFaceFrames < 1:
		return fmt.Errorf("%w: minRealFaceFrames must be positive", ErrInvalidConfig)
	case c.ChallengeDurationFrames < 1:
		return fmt.Errorf("%w: challengeDurationFrames must be positive", ErrInvalidConfig)
	case c.BonusWindowFrames < 0 || c.BonusAmount < 0:
		return fmt.Errorf("%w: bonus settings must not be negative", ErrInvalidConfig)
	case c.HistorySize < 3:
		return fmt.Errorf("%w: historySize must hold at least 3 frames", ErrInvalidConfig)
	case c.SuspicionChallengeThreshold < 1 || c.SuspicionRejectThreshold < c.SuspicionChallengeThreshold:
		return fmt.Errorf("%w: suspicion thresholds must satisfy 0 < challenge <= reject", ErrInvalidConfig)
	case c.VarianceFloor > c.VarianceCeiling:
		return fmt.Errorf("%w: varianceFloor exceeds varianceCeiling", ErrInvalidConfig)
	case c.BlinkLowCutoff >= c.BlinkHighCutoff:
		return fmt.Errorf("%w: blinkLowCutoff must be below blinkHighCutoff", ErrInvalidConfig)
	}
	return nil
}

// Classify maps a confidence value to its level. No hysteresis.
func (c Config) Classify(confidence float64) ConfidenceLevel {
	switch {
	case confidence >= c.HighConfidenceThreshold:
		return High
	case confidence >= c.MediumConfidenceThreshold:
		return Medium
	case confidence >= c.LowConfidenceThreshold:
		return Low
	default:
		return VeryLow
	}
}

// Scenario selects a threshold preset for the kind of attempt.
type Scenario string

const (
	ScenarioRegistration  Scenario = "registration"
	ScenarioVerification  Scenario = "verification"
	ScenarioUpdate        Scenario = "update"
	ScenarioSecurityCheck Scenario = "security_check"
)

// ParseScenario accepts scenario names case-insensitively. Empty means verification.
func ParseScenario(s string) (Scenario, error) {
	switch Scenario(strings.ToLower(strings.TrimSpace(s))) {
	case "", ScenarioVerification:
		return ScenarioVerification, nil
	case ScenarioRegistration:
		return ScenarioRegistration, nil
	case ScenarioUpdate:
		return ScenarioUpdate, nil
	case ScenarioSecurityCheck:
		return ScenarioSecurityCheck, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownScenario, s)
}

// ConfigForScenario returns the preset for s. Enrollment is more lenient so
// first-time users are not locked out; security checks are the strictest.
func ConfigForScenario(s Scenario) Config {
	cfg := DefaultConfig()
	switch s {
	case ScenarioRegistration, ScenarioUpdate:
		cfg.HighConfidenceThreshold = 0.80
		cfg.MediumConfidenceThreshold = 0.65
		cfg.LowConfidenceThreshold = 0.50
		cfg.MinRealFaceFrames = 2
	case ScenarioSecurityCheck:
		cfg.HighConfidenceThreshold = 0.90
		cfg.MediumConfidenceThreshold = 0.75
		cfg.LowConfidenceThreshold = 0.60
		cfg.MinRealFaceFrames = 5
	}
	return cfg
}
