// Package config loads tool configuration from OPSKIT_-prefixed environment
// variables. Configuration is an explicit object passed to constructors, not
// process-wide state, so multiple tracker or query configurations can coexist
// in tests.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/kelseyhightower/envconfig"
)

// Config holds settings for every opskit subcommand.
// Example: OPSKIT_TRACKER_URL, OPSKIT_DB_PATH.
type Config struct {
	// Identity store
	DBPath string `envconfig:"DB_PATH" default:""`

	// External tracker REST API
	TrackerURL            string `envconfig:"TRACKER_URL" default:""`
	TrackerToken          string `envconfig:"TRACKER_TOKEN" default:""`
	TrackerTimeoutSeconds int    `envconfig:"TRACKER_TIMEOUT_SECONDS" default:"30"`
	TrackerBatchSize      int    `envconfig:"TRACKER_BATCH_SIZE" default:"50"`

	// Incident query command
	IncidentCommand     string `envconfig:"INCIDENT_COMMAND" default:"incidentq"`
	IncidentRemoteHost  string `envconfig:"INCIDENT_REMOTE_HOST" default:""`
	IncidentTimeoutSecs int    `envconfig:"INCIDENT_TIMEOUT_SECONDS" default:"120"`
	IncidentBatchSize   int    `envconfig:"INCIDENT_BATCH_SIZE" default:"100"`
	IncidentType        string `envconfig:"INCIDENT_TYPE" default:"service request"`

	// Validator / populator
	PopulatePolicy       string `envconfig:"POPULATE_POLICY" default:"skip"`
	PrimaryEmailDomain   string `envconfig:"PRIMARY_EMAIL_DOMAIN" default:"example.com"`
	SecondaryEmailDomain string `envconfig:"SECONDARY_EMAIL_DOMAIN" default:"example.org"`

	// Knowledge-base indexing
	EmbedProvider string  `envconfig:"EMBED_PROVIDER" default:"ollama"`
	EmbedModel    string  `envconfig:"EMBED_MODEL" default:"nomic-embed-text"`
	OllamaURL     string  `envconfig:"OLLAMA_URL" default:"http://localhost:11434"`
	WeaviateURL   string  `envconfig:"WEAVIATE_URL" default:"localhost:8080"`
	SearchAlpha   float32 `envconfig:"SEARCH_ALPHA" default:"0.6"`
}

// ResolveDefaults fills derived values and validates enum-like settings.
func (c *Config) ResolveDefaults() error {
	if c.DBPath == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("resolve home dir: %w", err)
		}
		c.DBPath = filepath.Join(home, ".opskit", "accounts.db")
	}

	allowedPolicy := map[string]bool{"auto": true, "interactive": true, "skip": true, "fail": true}
	if !allowedPolicy[c.PopulatePolicy] {
		return fmt.Errorf("unsupported OPSKIT_POPULATE_POLICY: %s", c.PopulatePolicy)
	}
	if c.TrackerBatchSize <= 0 {
		return fmt.Errorf("tracker batch size must be positive, got %d", c.TrackerBatchSize)
	}
	if c.IncidentBatchSize <= 0 {
		return fmt.Errorf("incident batch size must be positive, got %d", c.IncidentBatchSize)
	}
	return nil
}

// New creates a Config by parsing OPSKIT_-prefixed environment variables.
func New() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("OPSKIT", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}
	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// NewForTesting returns a config with fixed values independent of the
// environment.
func NewForTesting() *Config {
	return &Config{
		DBPath:                "file::memory:",
		TrackerURL:            "http://localhost:8080",
		TrackerToken:          "test-token",
		TrackerTimeoutSeconds: 5,
		TrackerBatchSize:      50,
		IncidentCommand:       "incidentq",
		IncidentTimeoutSecs:   5,
		IncidentBatchSize:     100,
		IncidentType:          "service request",
		PopulatePolicy:        "skip",
		PrimaryEmailDomain:    "example.com",
		SecondaryEmailDomain:  "example.org",
		EmbedProvider:         "ollama",
		EmbedModel:            "nomic-embed-text",
		OllamaURL:             "http://localhost:11434",
		WeaviateURL:           "localhost:8080",
		SearchAlpha:           0.6,
	}
}
