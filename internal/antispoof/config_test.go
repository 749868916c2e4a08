package antispoof

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cfg := DefaultConfig()
	tests := []struct {
		confidence float64
		want       ConfidenceLevel
	}{
		{0.99, High},
		{0.85, High},
		{0.84, Medium},
		{0.70, Medium},
		{0.60, Low},
		{0.55, Low},
		{0.54, VeryLow},
		{0, VeryLow},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, cfg.Classify(tt.confidence), "confidence %v", tt.confidence)
	}
}

func TestConfidenceLevelString(t *testing.T) {
	assert.Equal(t, "high", High.String())
	assert.Equal(t, "very_low", VeryLow.String())
	b, err := Medium.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "medium", string(b))
}

func TestValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"unordered thresholds", func(c *Config) { c.LowConfidenceThreshold = 0.9 }},
		{"threshold above one", func(c *Config) { c.HighConfidenceThreshold = 1.2 }},
		{"zero min frames", func(c *Config) { c.MinRealFaceFrames = 0 }},
		{"zero challenge duration", func(c *Config) { c.ChallengeDurationFrames = 0 }},
		{"negative bonus", func(c *Config) { c.BonusAmount = -0.1 }},
		{"tiny history", func(c *Config) { c.HistorySize = 2 }},
		{"reject below challenge", func(c *Config) { c.SuspicionRejectThreshold = 3 }},
		{"inverted variance band", func(c *Config) { c.VarianceFloor = 0.5 }},
		{"inverted blink cutoffs", func(c *Config) { c.BlinkLowCutoff = 0.7 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalidConfig)
			_, err := NewEngine(cfg)
			assert.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestScenarios(t *testing.T) {
	for _, s := range []Scenario{ScenarioRegistration, ScenarioVerification, ScenarioUpdate, ScenarioSecurityCheck} {
		assert.NoError(t, ConfigForScenario(s).Validate(), string(s))
	}

	reg := ConfigForScenario(ScenarioRegistration)
	assert.Equal(t, 0.80, reg.HighConfidenceThreshold)
	assert.Equal(t, 2, reg.MinRealFaceFrames)

	sec := ConfigForScenario(ScenarioSecurityCheck)
	assert.Equal(t, 0.90, sec.HighConfidenceThreshold)
	assert.Equal(t, 5, sec.MinRealFaceFrames)

	assert.Equal(t, DefaultConfig(), ConfigForScenario(ScenarioVerification))
}

func TestParseScenario(t *testing.T) {
	s, err := ParseScenario("")
	require.NoError(t, err)
	assert.Equal(t, ScenarioVerification, s)

	s, err = ParseScenario(" Security_Check ")
	require.NoError(t, err)
	assert.Equal(t, ScenarioSecurityCheck, s)

	_, err = ParseScenario("kiosk")
	assert.ErrorIs(t, err, ErrUnknownScenario)
}
