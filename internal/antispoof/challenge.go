package antispoof

// ChallengeState is the liveness challenge sub-machine.
type ChallengeState struct {
	Active         bool `json:"active"`
	FramesElapsed  int  `json:"framesElapsed"`
	SignalDetected bool `json:"signalDetected"`
}

// detectBlink reports whether the last three frames form a blink: confidently
// real, a dip below lowCutoff, confidently real again.
func detectBlink(window []Evidence, highCutoff, lowCutoff float64) bool {
	if len(window) < 3 {
		return false
	}
	w := window[len(window)-3:]
	for _, ev := range w {
		if ev.IsSpoof {
			return false
		}
	}
	return w[0].Confidence > highCutoff &&
		w[1].Confidence < lowCutoff &&
		w[2].Confidence > highCutoff
}

func (e *Engine) startChallenge() {
	if e.challenge.Active {
		return
	}
	e.challenge = ChallengeState{Active: true}
	challengesTotal.WithLabelValues("started").Inc()
	e.logger.Debug("liveness challenge started", "suspicion", e.suspicion)
}

func (e *Engine) stepChallenge(level ConfidenceLevel, confidence float64) Decision {
	e.challenge.FramesElapsed++

	if detectBlink(e.history.Last(3), e.cfg.BlinkHighCutoff, e.cfg.BlinkLowCutoff) {
		frames := e.challenge.FramesElapsed
		e.openBonusWindow()
		e.challenge.SignalDetected = true
		e.challenge.FramesElapsed = frames
		challengesTotal.WithLabelValues("passed").Inc()
		e.logger.Debug("liveness challenge passed", "frames", frames)
		return e.decision(false, confidence, level, ExplainLivenessConfirmed, true, false)
	}

	if e.challenge.FramesElapsed >= e.cfg.ChallengeDurationFrames {
		e.challenge.Active = false
		challengesTotal.WithLabelValues("failed").Inc()
		e.logger.Debug("liveness challenge failed", "frames", e.challenge.FramesElapsed)
		return e.decision(true, confidence, level, ExplainLivenessFailed, false, false)
	}

	return e.decision(false, confidence, level, ExplainBlink, false, true)
}

// openBonusWindow ends any challenge, clears suspicion and starts the grace period.
func (e *Engine) openBonusWindow() {
	e.challenge = ChallengeState{}
	e.suspicion = 0
	e.realStreak = 0
	e.bonusRemaining = e.cfg.BonusWindowFrames
}
