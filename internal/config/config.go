// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/mbd888/trustra/internal/graph"
	"github.com/mbd888/trustra/internal/trust"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "json" or "text"

	// Marketplace data
	DatabaseURL   string // PostgreSQL connection string (optional, uses in-memory if not set)
	SourceTimeout time.Duration

	// Interaction graph
	GraphURI             string // Neo4j bolt URI (optional)
	GraphUsername        string
	GraphPassword        string
	GraphDatabase        string
	GraphRefreshInterval time.Duration
	TrustSweepInterval   time.Duration // 0 disables the background sweep

	// Observability
	OTLPEndpoint string

	// Security
	RateLimitRPM int
	AdminSecret  string
	CORSOrigins  []string // empty allows any origin without credentials

	// Scoring parameters, optionally read from ScoringConfigPath
	ScoringConfigPath string
	Scoring           Scoring
}

// Scoring groups the tunable model parameters.
type Scoring struct {
	Trust trust.Params  `yaml:"trust"`
	Graph graph.Options `yaml:"graph"`
}

const (
	DefaultPort                 = "8080"
	DefaultEnv                  = "development"
	DefaultLogLevel             = "info"
	DefaultLogFormat            = "json"
	DefaultRateLimit            = 100
	DefaultSourceTimeout        = 5 * time.Second
	DefaultGraphRefreshInterval = graph.DefaultRefreshInterval
)

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:                 getEnv("PORT", DefaultPort),
		Env:                  getEnv("ENV", DefaultEnv),
		LogLevel:             getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:            getEnv("LOG_FORMAT", DefaultLogFormat),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SourceTimeout:        getEnvDuration("SOURCE_TIMEOUT", DefaultSourceTimeout),
		GraphURI:             os.Getenv("GRAPH_URI"),
		GraphUsername:        os.Getenv("GRAPH_USERNAME"),
		GraphPassword:        os.Getenv("GRAPH_PASSWORD"),
		GraphDatabase:        os.Getenv("GRAPH_DATABASE"),
		GraphRefreshInterval: getEnvDuration("GRAPH_REFRESH_INTERVAL", DefaultGraphRefreshInterval),
		TrustSweepInterval:   getEnvDuration("TRUST_SWEEP_INTERVAL", 0),
		OTLPEndpoint:         os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		RateLimitRPM:         int(getEnvInt64("RATE_LIMIT_RPM", int64(DefaultRateLimit))),
		AdminSecret:          os.Getenv("ADMIN_SECRET"),
		CORSOrigins:          getEnvList("CORS_ALLOWED_ORIGINS"),
		ScoringConfigPath:    os.Getenv("SCORING_CONFIG"),
		Scoring: Scoring{
			Trust: trust.DefaultParams(),
			Graph: graph.DefaultOptions(),
		},
	}

	if cfg.ScoringConfigPath != "" {
		s, err := LoadScoring(cfg.ScoringConfigPath)
		if err != nil {
			return nil, err
		}
		cfg.Scoring = s
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadScoring reads scoring parameters from a YAML file. Fields the file
// leaves out keep their defaults.
func LoadScoring(path string) (Scoring, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Scoring{}, fmt.Errorf("read scoring config: %w", err)
	}
	s := Scoring{
		Trust: trust.DefaultParams(),
		Graph: graph.DefaultOptions(),
	}
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Scoring{}, fmt.Errorf("parse scoring config %s: %w", path, err)
	}
	return s, nil
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT is required")
	}
	if c.GraphURI != "" && c.GraphUsername == "" {
		return fmt.Errorf("GRAPH_USERNAME is required when GRAPH_URI is set")
	}
	if c.SourceTimeout <= 0 {
		return fmt.Errorf("SOURCE_TIMEOUT must be positive")
	}
	if c.GraphRefreshInterval <= 0 {
		return fmt.Errorf("GRAPH_REFRESH_INTERVAL must be positive")
	}
	if c.TrustSweepInterval < 0 {
		return fmt.Errorf("TRUST_SWEEP_INTERVAL must not be negative")
	}
	if c.RateLimitRPM <= 0 {
		return fmt.Errorf("RATE_LIMIT_RPM must be positive")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	if err := c.Scoring.Trust.Validate(); err != nil {
		return err
	}
	g := c.Scoring.Graph
	if g.MinRingSize > 0 && g.MaxRingSize > 0 && g.MinRingSize > g.MaxRingSize {
		return fmt.Errorf("graph.min_ring_size must not exceed graph.max_ring_size")
	}
	return nil
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
			return i
		}
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

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
