// Package antispoof turns a noisy stream of per-frame spoof scores into
// accept, reject and challenge decisions.
//
// Flow, per frame:
//  1. Bonus window → boost confidence, suppress borderline spoof flags
//  2. History push → rolling window used for variance checks
//  3. Challenge in progress → look for a blink, or fail at the duration cap
//  4. Liveness gate → no accept until a challenge has passed at least once
//  5. Suspicion → accumulate distrust, challenge or reject on thresholds
//  6. Real streak → accept after enough consecutive confident real frames
package antispoof

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrInvalidConfig   = errors.New("antispoof: invalid config")
	ErrUnknownScenario = errors.New("antispoof: unknown scenario")
)

// Explanations attached to decisions.
const (
	ExplainLivenessRequired  = "complete liveness check (blink)"
	ExplainBlink             = "blink your eyes"
	ExplainLivenessConfirmed = "liveness confirmed"
	ExplainLivenessFailed    = "liveness failed"
	ExplainHighSuspicion     = "high suspicion"
	ExplainSuspicious        = "suspicious activity detected, please blink"
	ExplainRealFace          = "real face detected"
	ExplainHoldSteady        = "hold steady"
)

// Evidence is one frame's classifier output.
type Evidence struct {
	Confidence float64   `json:"confidence"`
	IsSpoof    bool      `json:"isSpoof"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConfidenceLevel buckets a confidence value against the configured thresholds.
type ConfidenceLevel int

const (
	VeryLow ConfidenceLevel = iota
	Low
	Medium
	High
)

func (l ConfidenceLevel) String() string {
	switch l {
	case High:
		return "high"
	case Medium:
		return "medium"
	case Low:
		return "low"
	default:
		return "very_low"
	}
}

// MarshalText encodes the level by name.
func (l ConfidenceLevel) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText decodes a level name written by MarshalText.
func (l *ConfidenceLevel) UnmarshalText(b []byte) error {
	switch string(b) {
	case "high":
		*l = High
	case "medium":
		*l = Medium
	case "low":
		*l = Low
	case "very_low":
		*l = VeryLow
	default:
		return fmt.Errorf("antispoof: unknown confidence level %q", b)
	}
	return nil
}

// Verdict is the coarse outcome of a decision.
type Verdict string

const (
	VerdictAccept    Verdict = "accept"
	VerdictReject    Verdict = "reject"
	VerdictChallenge Verdict = "challenge"
	VerdictHold      Verdict = "hold"
)

// Decision is the engine's answer for one frame.
type Decision struct {
	IsSpoof          bool            `json:"isSpoof"`
	Confidence       float64         `json:"confidence"`
	Level            ConfidenceLevel `json:"confidenceLevel"`
	Explanation      string          `json:"explanation"`
	ShouldProceed    bool            `json:"shouldProceed"`
	TriggerChallenge bool            `json:"triggerChallenge"`
	Suspicion        int             `json:"suspicion"`
}

// Verdict collapses the decision flags into a single outcome.
func (d Decision) Verdict() Verdict {
	switch {
	case d.ShouldProceed:
		return VerdictAccept
	case d.IsSpoof:
		return VerdictReject
	case d.TriggerChallenge:
		return VerdictChallenge
	default:
		return VerdictHold
	}
}
