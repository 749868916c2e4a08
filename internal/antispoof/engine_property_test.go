package antispoof

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestSuspicionNeverNegative checks the accumulator floor over arbitrary streams.
// Property: Snapshot().Suspicion >= 0 after every frame
func TestSuspicionNeverNegative(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("suspicion stays non-negative", prop.ForAll(
		func(confidences []float64, flags []bool) bool {
			e, err := NewEngine(DefaultConfig())
			if err != nil {
				return false
			}
			for i := 0; i < len(confidences) && i < len(flags); i++ {
				d := e.Evaluate(Evidence{Confidence: confidences[i], IsSpoof: flags[i]})
				if d.Suspicion < 0 || e.Snapshot().Suspicion < 0 {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}

// TestSpoofOutsideBonusNeverProceeds checks that a spoof-flagged frame can only
// be accepted when a bonus window is open.
// Property: bonus == 0 && isSpoof => !ShouldProceed
func TestSpoofOutsideBonusNeverProceeds(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("spoof frames never proceed without a bonus window", prop.ForAll(
		func(confidences []float64, flags []bool) bool {
			e, err := NewEngine(ConfigForScenario(ScenarioRegistration))
			if err != nil {
				return false
			}
			for i := 0; i < len(confidences) && i < len(flags); i++ {
				inBonus := e.Snapshot().BonusRemaining > 0
				d := e.Evaluate(Evidence{Confidence: confidences[i], IsSpoof: flags[i]})
				if flags[i] && !inBonus && d.ShouldProceed {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Float64Range(0, 1)),
		gen.SliceOf(gen.Bool()),
	))

	properties.TestingRun(t)
}
