package antispoof

import (
	"log/slog"
	"math"
)

// Engine owns the per-attempt decision state. It is not safe for concurrent
// use; callers serialize Evaluate with the lifecycle methods.
type Engine struct {
	cfg    Config
	logger *slog.Logger

	history        *History
	suspicion      int
	realStreak     int
	challenge      ChallengeState
	bonusRemaining int
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// NewEngine validates cfg and returns a fresh engine.
func NewEngine(cfg Config, opts ...Option) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	e := &Engine{
		cfg:     cfg,
		logger:  slog.Default(),
		history: NewHistory(cfg.HistorySize),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Config returns the engine's configuration.
func (e *Engine) Config() Config { return e.cfg }

// Evaluate consumes one frame of evidence and returns the decision for it.
func (e *Engine) Evaluate(ev Evidence) Decision {
	confidence := clamp01(ev.Confidence)
	isSpoof := ev.IsSpoof

	if e.bonusRemaining > 0 {
		confidence = math.Min(1, confidence+e.cfg.BonusAmount)
		if isSpoof && confidence >= e.cfg.HighConfidenceThreshold {
			isSpoof = false
		}
		e.bonusRemaining--
	}

	e.history.Push(Evidence{Confidence: confidence, IsSpoof: isSpoof, Timestamp: ev.Timestamp})
	level := e.cfg.Classify(confidence)

	d := e.evaluate(isSpoof, confidence, level)
	decisionsTotal.WithLabelValues(string(d.Verdict())).Inc()
	suspicionLevel.Observe(float64(e.suspicion))
	return d
}

func (e *Engine) evaluate(isSpoof bool, confidence float64, level ConfidenceLevel) Decision {
	if e.challenge.Active {
		return e.stepChallenge(level, confidence)
	}

	// Liveness must be shown at least once before anything is accepted.
	if e.bonusRemaining <= 0 && !isSpoof && level != VeryLow {
		e.startChallenge()
		return e.decision(false, confidence, level, ExplainLivenessRequired, false, true)
	}

	e.updateSuspicion(isSpoof, confidence)

	switch {
	case e.suspicion >= e.cfg.SuspicionRejectThreshold:
		e.logger.Debug("rejecting on suspicion", "suspicion", e.suspicion)
		return e.decision(true, confidence, level, ExplainHighSuspicion, false, false)
	case e.suspicion >= e.cfg.SuspicionChallengeThreshold:
		e.startChallenge()
		return e.decision(false, confidence, level, ExplainSuspicious, false, true)
	}

	if !isSpoof && confidence > e.cfg.HighConfidenceThreshold {
		e.realStreak++
		if e.realStreak >= e.cfg.MinRealFaceFrames {
			return e.decision(false, confidence, level, ExplainRealFace, true, false)
		}
	} else {
		e.realStreak = 0
	}
	return e.decision(false, confidence, level, ExplainHoldSteady, false, false)
}

func (e *Engine) updateSuspicion(isSpoof bool, confidence float64) {
	switch {
	case isSpoof:
		e.suspicion += 2
	case confidence < e.cfg.LowConfidenceThreshold:
		e.suspicion++
	case e.suspicion > 0:
		e.suspicion--
	}

	if e.history.Full() {
		if v := e.history.Variance(); v < e.cfg.VarianceFloor || v > e.cfg.VarianceCeiling {
			e.suspicion += 3
			abnormalVarianceTotal.Inc()
		}
	}
}

func (e *Engine) decision(isSpoof bool, confidence float64, level ConfidenceLevel, explanation string, proceed, challenge bool) Decision {
	return Decision{
		IsSpoof:          isSpoof,
		Confidence:       confidence,
		Level:            level,
		Explanation:      explanation,
		ShouldProceed:    proceed,
		TriggerChallenge: challenge,
		Suspicion:        e.suspicion,
	}
}

// Reset clears all mutable state. Configuration is kept.
func (e *Engine) Reset() {
	e.history.Clear()
	e.suspicion = 0
	e.realStreak = 0
	e.challenge = ChallengeState{}
	e.bonusRemaining = 0
}

// ResetChallenge clears only the challenge sub-machine; suspicion, history
// and any bonus window survive.
func (e *Engine) ResetChallenge() {
	e.challenge = ChallengeState{}
}

// MarkLivenessSuccess records a liveness confirmation made outside the
// engine, with the same effect as a detected blink.
func (e *Engine) MarkLivenessSuccess() {
	e.openBonusWindow()
	challengesTotal.WithLabelValues("external").Inc()
}

// EngineState is a read-only view of the engine for diagnostics.
type EngineState struct {
	Suspicion      int            `json:"suspicion"`
	RealStreak     int            `json:"realStreak"`
	Challenge      ChallengeState `json:"challenge"`
	BonusRemaining int            `json:"bonusRemaining"`
	HistoryLen     int            `json:"historyLen"`
	Variance       float64        `json:"variance"`
}

// Snapshot returns the current state.
func (e *Engine) Snapshot() EngineState {
	return EngineState{
		Suspicion:      e.suspicion,
		RealStreak:     e.realStreak,
		Challenge:      e.challenge,
		BonusRemaining: e.bonusRemaining,
		HistoryLen:     e.history.Len(),
		Variance:       e.history.Variance(),
	}
}

// Replay runs a fresh engine over evs and returns one decision per frame.
func Replay(cfg Config, evs []Evidence) ([]Decision, error) {
	e, err := NewEngine(cfg)
	if err != nil {
		return nil, err
	}
	out := make([]Decision, 0, len(evs))
	for _, ev := range evs {
		out = append(out, e.Evaluate(ev))
	}
	return out, nil
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
