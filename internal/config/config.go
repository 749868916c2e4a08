// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mbd888/facegate/internal/antispoof"
	"github.com/mbd888/facegate/internal/workflow"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Tracing; empty disables export
	OTLPEndpoint string

	// Anti-spoof engine. Zero values keep the scenario preset.
	Scenario                  antispoof.Scenario
	HighConfidenceThreshold   float64
	MediumConfidenceThreshold float64
	LowConfidenceThreshold    float64
	MinRealFaceFrames         int
	ChallengeDurationFrames   int
	BonusWindowFrames         int
	BonusAmount               float64

	// Workflow
	ConfirmationThreshold int
	DetectionTimeout      time.Duration
	RegistrationTimeout   time.Duration

	// Sessions
	SessionIdleTimeout time.Duration
	MaxSessions        int

	// Security
	RateLimitRPS   int // frames per second per client
	RateLimitBurst int
	CORSOrigins    []string
}

const (
	DefaultPort                = "8080"
	DefaultEnv                 = "development"
	DefaultLogLevel            = "info"
	DefaultLogFormat           = "text"
	DefaultConfirmation        = 2
	DefaultDetectionTimeout    = 30 * time.Second
	DefaultRegistrationTimeout = 15 * time.Second
	DefaultSessionIdleTimeout  = 5 * time.Minute
	DefaultMaxSessions         = 1000
	DefaultRateLimit           = 30
	DefaultRateBurst           = 60
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	scenario, err := antispoof.ParseScenario(os.Getenv("SCENARIO"))
	if err != nil {
		return nil, fmt.Errorf("SCENARIO: %w", err)
	}

	cfg := &Config{
		Port:         getEnv("PORT", DefaultPort),
		Env:          getEnv("ENV", DefaultEnv),
		LogLevel:     getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:    getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:  os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		OTLPEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),

		Scenario:                  scenario,
		HighConfidenceThreshold:   getEnvFloat("HIGH_CONFIDENCE_THRESHOLD", 0),
		MediumConfidenceThreshold: getEnvFloat("MEDIUM_CONFIDENCE_THRESHOLD", 0),
		LowConfidenceThreshold:    getEnvFloat("LOW_CONFIDENCE_THRESHOLD", 0),
		MinRealFaceFrames:         getEnvInt("MIN_REAL_FACE_FRAMES", 0),
		ChallengeDurationFrames:   getEnvInt("CHALLENGE_DURATION_FRAMES", 0),
		BonusWindowFrames:         getEnvInt("BONUS_WINDOW_FRAMES", 0),
		BonusAmount:               getEnvFloat("BONUS_AMOUNT", 0),

		ConfirmationThreshold: getEnvInt("CONFIRMATION_THRESHOLD", DefaultConfirmation),
		DetectionTimeout:      getEnvMillis("DETECTION_TIMEOUT_MS", DefaultDetectionTimeout),
		RegistrationTimeout:   getEnvMillis("REGISTRATION_TIMEOUT_MS", DefaultRegistrationTimeout),

		SessionIdleTimeout: getEnvDuration("SESSION_IDLE_TIMEOUT", DefaultSessionIdleTimeout),
		MaxSessions:        getEnvInt("MAX_SESSIONS", DefaultMaxSessions),

		RateLimitRPS:   getEnvInt("RATE_LIMIT_RPS", DefaultRateLimit),
		RateLimitBurst: getEnvInt("RATE_LIMIT_BURST", DefaultRateBurst),
		CORSOrigins:    getEnvList("CORS_ORIGINS"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks ranges and that overrides still produce a usable engine
func (c *Config) Validate() error {
	switch c.Env {
	case "development", "staging", "production":
	default:
		return fmt.Errorf("ENV must be development, staging or production")
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("LOG_FORMAT must be text or json")
	}
	for name, v := range map[string]float64{
		"HIGH_CONFIDENCE_THRESHOLD":   c.HighConfidenceThreshold,
		"MEDIUM_CONFIDENCE_THRESHOLD": c.MediumConfidenceThreshold,
		"LOW_CONFIDENCE_THRESHOLD":    c.LowConfidenceThreshold,
		"BONUS_AMOUNT":                c.BonusAmount,
	} {
		if v < 0 || v > 1 {
			return fmt.Errorf("%s must be between 0 and 1", name)
		}
	}
	if c.MinRealFaceFrames < 0 || c.ChallengeDurationFrames < 0 || c.BonusWindowFrames < 0 {
		return fmt.Errorf("frame counts must not be negative")
	}

	engine := antispoof.ConfigForScenario(c.Scenario)
	c.Tune(&engine)
	if err := engine.Validate(); err != nil {
		return fmt.Errorf("engine overrides: %w", err)
	}
	if err := c.Workflow().Validate(); err != nil {
		return fmt.Errorf("workflow: %w", err)
	}

	if c.SessionIdleTimeout <= 0 {
		return fmt.Errorf("SESSION_IDLE_TIMEOUT must be positive")
	}
	if c.MaxSessions < 1 {
		return fmt.Errorf("MAX_SESSIONS must be positive")
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must not be negative")
	}
	return nil
}

// Tune applies the engine overrides on top of a scenario preset.
func (c *Config) Tune(e *antispoof.Config) {
	if c.HighConfidenceThreshold > 0 {
		e.HighConfidenceThreshold = c.HighConfidenceThreshold
	}
	if c.MediumConfidenceThreshold > 0 {
		e.MediumConfidenceThreshold = c.MediumConfidenceThreshold
	}
	if c.LowConfidenceThreshold > 0 {
		e.LowConfidenceThreshold = c.LowConfidenceThreshold
	}
	if c.MinRealFaceFrames > 0 {
		e.MinRealFaceFrames = c.MinRealFaceFrames
	}
	if c.ChallengeDurationFrames > 0 {
		e.ChallengeDurationFrames = c.ChallengeDurationFrames
	}
	if c.BonusWindowFrames > 0 {
		e.BonusWindowFrames = c.BonusWindowFrames
	}
	if c.BonusAmount > 0 {
		e.BonusAmount = c.BonusAmount
	}
}

// Workflow returns the debounce and timeout settings.
func (c *Config) Workflow() workflow.Config {
	return workflow.Config{
		ConfirmationThreshold: c.ConfirmationThreshold,
		DetectionTimeout:      c.DetectionTimeout,
		RegistrationTimeout:   c.RegistrationTimeout,
	}
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvMillis(key string, defaultValue time.Duration) time.Duration {
	if ms := getEnvInt(key, -1); ms >= 0 {
		return time.Duration(ms) * time.Millisecond
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
