package config

import (
	"os"
	"testing"
	"time"

	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old, had := os.LookupEnv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if !had {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func validConfig() Config {
	return Config{
		Env:                   "development",
		LogFormat:             "text",
		Scenario:              antispoof.ScenarioVerification,
		ConfirmationThreshold: DefaultConfirmation,
		DetectionTimeout:      DefaultDetectionTimeout,
		RegistrationTimeout:   DefaultRegistrationTimeout,
		SessionIdleTimeout:    DefaultSessionIdleTimeout,
		MaxSessions:           DefaultMaxSessions,
		RateLimitRPS:          DefaultRateLimit,
		RateLimitBurst:        DefaultRateBurst,
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, antispoof.ScenarioVerification, cfg.Scenario)
	assert.Equal(t, DefaultConfirmation, cfg.ConfirmationThreshold)
	assert.Equal(t, DefaultDetectionTimeout, cfg.DetectionTimeout)
	assert.Equal(t, DefaultRegistrationTimeout, cfg.RegistrationTimeout)
	assert.Equal(t, DefaultSessionIdleTimeout, cfg.SessionIdleTimeout)
	assert.Zero(t, cfg.HighConfidenceThreshold)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "SCENARIO", "registration")
	setEnv(t, "HIGH_CONFIDENCE_THRESHOLD", "0.9")
	setEnv(t, "CHALLENGE_DURATION_FRAMES", "60")
	setEnv(t, "DETECTION_TIMEOUT_MS", "1500")
	setEnv(t, "SESSION_IDLE_TIMEOUT", "90s")
	setEnv(t, "CORS_ORIGINS", "https://a.example, https://b.example,")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, antispoof.ScenarioRegistration, cfg.Scenario)
	assert.Equal(t, 1500*time.Millisecond, cfg.DetectionTimeout)
	assert.Equal(t, 90*time.Second, cfg.SessionIdleTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)

	e := antispoof.ConfigForScenario(cfg.Scenario)
	cfg.Tune(&e)
	assert.Equal(t, 0.9, e.HighConfidenceThreshold)
	assert.Equal(t, 60, e.ChallengeDurationFrames)
	assert.Equal(t, 0.65, e.MediumConfidenceThreshold, "preset value kept")
}

func TestLoad_UnknownScenario(t *testing.T) {
	setEnv(t, "SCENARIO", "selfie")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorIs(t, err, antispoof.ErrUnknownScenario)
}

func TestLoad_BadThresholdOrder(t *testing.T) {
	setEnv(t, "LOW_CONFIDENCE_THRESHOLD", "0.95")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "engine overrides")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"bad env", func(c *Config) { c.Env = "qa" }, "ENV"},
		{"bad log format", func(c *Config) { c.LogFormat = "xml" }, "LOG_FORMAT"},
		{"threshold above one", func(c *Config) { c.HighConfidenceThreshold = 1.5 }, "HIGH_CONFIDENCE_THRESHOLD"},
		{"negative frames", func(c *Config) { c.BonusWindowFrames = -1 }, "frame counts"},
		{"zero debounce", func(c *Config) { c.ConfirmationThreshold = 0 }, "workflow"},
		{"zero timeout", func(c *Config) { c.RegistrationTimeout = 0 }, "workflow"},
		{"zero idle", func(c *Config) { c.SessionIdleTimeout = 0 }, "SESSION_IDLE_TIMEOUT"},
		{"zero sessions", func(c *Config) { c.MaxSessions = 0 }, "MAX_SESSIONS"},
		{"negative rate", func(c *Config) { c.RateLimitRPS = -1 }, "RATE_LIMIT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestConfig_Workflow(t *testing.T) {
	cfg := validConfig()
	wf := cfg.Workflow()
	assert.Equal(t, DefaultConfirmation, wf.ConfirmationThreshold)
	assert.Equal(t, DefaultDetectionTimeout, wf.DetectionTimeout)
	assert.NoError(t, wf.Validate())
}

func TestConfig_EnvHelpers(t *testing.T) {
	cfg := &Config{Env: "production"}
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())

	setEnv(t, "TEST_INT_GARBAGE", "abc")
	assert.Equal(t, 7, getEnvInt("TEST_INT_GARBAGE", 7))
	setEnv(t, "TEST_MS", "0")
	assert.Equal(t, time.Duration(0), getEnvMillis("TEST_MS", time.Second))
	assert.Equal(t, time.Second, getEnvMillis("TEST_MS_UNSET", time.Second))
	assert.Nil(t, getEnvList("TEST_LIST_UNSET"))
}
