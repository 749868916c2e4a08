package antispoof

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := NewEngine(DefaultConfig())
	require.NoError(t, err)
	return e
}

func live(c float64) Evidence { return Evidence{Confidence: c} }
func fake(c float64) Evidence { return Evidence{Confidence: c, IsSpoof: true} }

// passLiveness drives a fresh engine through a challenge and a blink.
func passLiveness(t *testing.T, e *Engine) {
	t.Helper()
	d := e.Evaluate(live(0.9))
	require.True(t, d.TriggerChallenge)
	require.Equal(t, ExplainLivenessRequired, d.Explanation)

	for _, c := range []float64{0.9, 0.2} {
		d = e.Evaluate(live(c))
		require.True(t, d.TriggerChallenge)
		require.False(t, d.ShouldProceed)
	}
	d = e.Evaluate(live(0.9))
	require.True(t, d.ShouldProceed)
	require.Equal(t, ExplainLivenessConfirmed, d.Explanation)
}

func TestEndToEndAcceptance(t *testing.T) {
	e := newTestEngine(t)
	stream := []Evidence{
		live(0.9), live(0.9), live(0.95),
		live(0.9), live(0.2), live(0.9),
		live(0.95), live(0.95), live(0.95),
	}

	var decisions []Decision
	for _, ev := range stream {
		decisions = append(decisions, e.Evaluate(ev))
	}

	assert.True(t, decisions[0].TriggerChallenge, "first real frame should start a challenge")
	for i := 1; i < 5; i++ {
		assert.True(t, decisions[i].TriggerChallenge, "frame %d", i)
		assert.False(t, decisions[i].ShouldProceed, "frame %d", i)
	}
	assert.Equal(t, ExplainLivenessConfirmed, decisions[5].Explanation)
	assert.Equal(t, 0, decisions[5].Suspicion)

	assert.False(t, decisions[6].ShouldProceed)
	assert.False(t, decisions[7].ShouldProceed)
	last := decisions[8]
	assert.True(t, last.ShouldProceed)
	assert.Equal(t, ExplainRealFace, last.Explanation)
	assert.Equal(t, VerdictAccept, last.Verdict())
	assert.InDelta(t, 1.0, last.Confidence, 1e-9, "bonus window boosts confidence")
}

func TestStreakNeedsMinRealFrames(t *testing.T) {
	e := newTestEngine(t)
	passLiveness(t, e)

	need := e.Config().MinRealFaceFrames
	for i := 1; i < need; i++ {
		d := e.Evaluate(live(0.95))
		assert.False(t, d.ShouldProceed, "accepted after %d frames", i)
		assert.Equal(t, ExplainHoldSteady, d.Explanation)
	}
	assert.True(t, e.Evaluate(live(0.95)).ShouldProceed)
}

func TestSpoofFrameResetsStreak(t *testing.T) {
	e := newTestEngine(t)
	passLiveness(t, e)

	e.Evaluate(live(0.95))
	e.Evaluate(live(0.95))
	require.Equal(t, 2, e.Snapshot().RealStreak)

	// 0.5 + bonus = 0.65, still under the high threshold, so the flag stands.
	d := e.Evaluate(fake(0.5))
	assert.False(t, d.ShouldProceed)
	assert.Equal(t, 0, e.Snapshot().RealStreak)
	assert.Equal(t, 2, e.Snapshot().Suspicion)

	assert.False(t, e.Evaluate(live(0.95)).ShouldProceed)
}

func TestBonusWindowFlipBoundary(t *testing.T) {
	t.Run("boosted above high threshold flips to real", func(t *testing.T) {
		e := newTestEngine(t)
		passLiveness(t, e)

		d := e.Evaluate(fake(0.75))
		assert.False(t, d.IsSpoof)
		assert.InDelta(t, 0.90, d.Confidence, 1e-9)
		assert.Equal(t, 1, e.Snapshot().RealStreak)
		assert.Equal(t, 0, e.Snapshot().Suspicion)
	})

	t.Run("boosted exactly onto high threshold flips without streak", func(t *testing.T) {
		e := newTestEngine(t)
		passLiveness(t, e)

		d := e.Evaluate(fake(0.70))
		assert.False(t, d.IsSpoof)
		assert.False(t, d.ShouldProceed)
		assert.Equal(t, e.Config().HighConfidenceThreshold, d.Confidence)
		assert.Equal(t, High, d.Level)
		assert.Equal(t, 0, e.Snapshot().RealStreak, "streak needs strictly above high")
		assert.Equal(t, 0, e.Snapshot().Suspicion, "flipped frame is not counted as spoof")
	})

	t.Run("boosted just under high threshold stays spoof", func(t *testing.T) {
		e := newTestEngine(t)
		passLiveness(t, e)

		d := e.Evaluate(fake(0.69))
		assert.False(t, d.ShouldProceed)
		assert.InDelta(t, 0.84, d.Confidence, 1e-9)
		assert.Equal(t, 0, e.Snapshot().RealStreak)
		assert.Equal(t, 2, e.Snapshot().Suspicion)
	})

	t.Run("no flip outside bonus window", func(t *testing.T) {
		e := newTestEngine(t)
		d := e.Evaluate(fake(0.99))
		assert.False(t, d.ShouldProceed)
		assert.False(t, d.TriggerChallenge)
		assert.Equal(t, 2, e.Snapshot().Suspicion)
	})
}

func TestBonusWindowDecays(t *testing.T) {
	e := newTestEngine(t)
	passLiveness(t, e)
	window := e.Config().BonusWindowFrames
	assert.Equal(t, window, e.Snapshot().BonusRemaining)

	e.Evaluate(live(0.7))
	assert.Equal(t, window-1, e.Snapshot().BonusRemaining)
}

func TestChallengeTimesOut(t *testing.T) {
	e := newTestEngine(t)
	require.True(t, e.Evaluate(live(0.9)).TriggerChallenge)

	limit := e.Config().ChallengeDurationFrames
	for i := 1; i < limit; i++ {
		d := e.Evaluate(live(0.9))
		require.True(t, d.TriggerChallenge, "frame %d", i)
		require.False(t, d.IsSpoof, "frame %d", i)
	}
	d := e.Evaluate(live(0.9))
	assert.True(t, d.IsSpoof)
	assert.Equal(t, ExplainLivenessFailed, d.Explanation)
	assert.Equal(t, VerdictReject, d.Verdict())
	assert.False(t, e.Snapshot().Challenge.Active)
}

func TestBlinkRequiresRealFrames(t *testing.T) {
	e := newTestEngine(t)
	e.Evaluate(live(0.9))
	e.Evaluate(live(0.9))
	e.Evaluate(fake(0.2))
	d := e.Evaluate(live(0.9))
	assert.False(t, d.ShouldProceed)
	assert.True(t, e.Snapshot().Challenge.Active)
}

func TestStaticSpoofIsRejected(t *testing.T) {
	e := newTestEngine(t)
	var decisions []Decision
	limit := e.Config().ChallengeDurationFrames
	for i := 0; i < limit+4; i++ {
		decisions = append(decisions, e.Evaluate(fake(0.3)))
	}

	assert.Equal(t, ExplainSuspicious, decisions[2].Explanation, "suspicion 6 should challenge")
	assert.Equal(t, ExplainLivenessFailed, decisions[limit+2].Explanation)

	last := decisions[limit+3]
	assert.True(t, last.IsSpoof)
	assert.Equal(t, ExplainHighSuspicion, last.Explanation)
	assert.GreaterOrEqual(t, last.Suspicion, e.Config().SuspicionRejectThreshold)
	for _, d := range decisions {
		assert.False(t, d.ShouldProceed)
	}
}

func TestStaticRealFeedRaisesSuspicion(t *testing.T) {
	e := newTestEngine(t)
	passLiveness(t, e)

	found := false
	for i := 0; i < 40 && !found; i++ {
		d := e.Evaluate(live(0.80))
		found = d.Explanation == ExplainSuspicious
	}
	assert.True(t, found, "a frozen confidence trace should eventually look suspicious")
	assert.True(t, e.Snapshot().Challenge.Active)
}

func TestMarkLivenessSuccess(t *testing.T) {
	e := newTestEngine(t)
	e.Evaluate(fake(0.4))
	e.Evaluate(fake(0.4))
	require.Equal(t, 4, e.Snapshot().Suspicion)

	e.MarkLivenessSuccess()
	s := e.Snapshot()
	assert.Equal(t, 0, s.Suspicion)
	assert.False(t, s.Challenge.Active)
	assert.Equal(t, e.Config().BonusWindowFrames, s.BonusRemaining)

	// Inside the bonus window real frames go straight to the streak.
	d := e.Evaluate(live(0.9))
	assert.False(t, d.TriggerChallenge)
	assert.Equal(t, 1, e.Snapshot().RealStreak)
}

func TestResetChallengeKeepsEvidence(t *testing.T) {
	e := newTestEngine(t)
	e.Evaluate(fake(0.4))
	e.Evaluate(live(0.9))
	require.True(t, e.Snapshot().Challenge.Active)

	e.ResetChallenge()
	s := e.Snapshot()
	assert.False(t, s.Challenge.Active)
	assert.Equal(t, 2, s.Suspicion)
	assert.Equal(t, 2, s.HistoryLen)
}

func TestResetIdempotent(t *testing.T) {
	e := newTestEngine(t)
	passLiveness(t, e)
	e.Evaluate(fake(0.3))

	e.Reset()
	once := e.Snapshot()
	e.Reset()
	twice := e.Snapshot()

	assert.Equal(t, once, twice)
	assert.Equal(t, EngineState{}, twice)
}

func TestReplay(t *testing.T) {
	decisions, err := Replay(DefaultConfig(), []Evidence{live(0.9), live(0.9), live(0.2), live(0.9)})
	require.NoError(t, err)
	require.Len(t, decisions, 4)
	assert.True(t, decisions[3].ShouldProceed)

	_, err = Replay(Config{}, nil)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestConfidenceClamped(t *testing.T) {
	e := newTestEngine(t)
	d := e.Evaluate(live(1.7))
	assert.Equal(t, 1.0, d.Confidence)
	d = e.Evaluate(fake(-2))
	assert.Equal(t, 0.0, d.Confidence)
	assert.Equal(t, VeryLow, d.Level)
}

func TestDecisionDecodesLevelName(t *testing.T) {
	var d Decision
	require.NoError(t, json.Unmarshal([]byte(`{"confidenceLevel":"medium","shouldProceed":true}`), &d))
	assert.Equal(t, Medium, d.Level)
	assert.Equal(t, VerdictAccept, d.Verdict())

	err := json.Unmarshal([]byte(`{"confidenceLevel":"extreme"}`), &d)
	assert.Error(t, err)
}
