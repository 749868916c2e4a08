// Facegate - face anti-spoof decisions and capture workflow
package main

import (
	"context"
	"os"

	"github.com/mbd888/facegate/internal/config"
	"github.com/mbd888/facegate/internal/logging"
	"github.com/mbd888/facegate/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Create logger
	logger := logging.New("info", "text")

	logger.Info("starting facegate",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Reconfigure with the requested level and format
	logger = logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"scenario", string(cfg.Scenario),
		"confirmation_threshold", cfg.ConfirmationThreshold,
		"detection_timeout", cfg.DetectionTimeout.String(),
		"registration_timeout", cfg.RegistrationTimeout.String(),
		"max_sessions", cfg.MaxSessions,
		"persistent", cfg.DatabaseURL != "",
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	if err := srv.Run(ctx); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}
