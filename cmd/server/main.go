// Trustra - seller trust scoring and collusion ring detection service
package main

import (
	"context"
	"os"

	"github.com/mbd888/trustra/internal/config"
	"github.com/mbd888/trustra/internal/logging"
	"github.com/mbd888/trustra/internal/server"
)

// Build info - set by ldflags
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		logging.New("info", "text").Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting trustra",
		"version", Version,
		"commit", Commit,
		"build_time", BuildTime,
	)
	logger.Info("configuration loaded",
		"env", cfg.Env,
		"datastore", datastoreKind(cfg),
		"graph_database", cfg.GraphURI != "",
		"graph_refresh_interval", cfg.GraphRefreshInterval,
		"trust_sweep_interval", cfg.TrustSweepInterval,
		"scoring_config", cfg.ScoringConfigPath,
	)

	// Create and run server
	srv, err := server.New(cfg, server.WithLogger(logger), server.WithVersion(Version))
	if err != nil {
		logger.Error("failed to create server", "error", err)
		os.Exit(1)
	}

	if err := srv.Run(context.Background()); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

func datastoreKind(cfg *config.Config) string {
	if cfg.DatabaseURL != "" {
		return "postgres"
	}
	return "memory"
}
