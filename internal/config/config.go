// Package config holds the environment-backed configuration surface.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Config holds all environment backed configuration for lifelogd.
type Config struct {
	// Storage
	DBPath string `env:"LIFELOG_DB_PATH" envDefault:"~/.lifelogd/lifelog.db"`

	// Clustering
	GapThreshold time.Duration `env:"LIFELOG_GAP_THRESHOLD" envDefault:"5m"`

	// Context resolution
	ContextWindow time.Duration `env:"LIFELOG_CONTEXT_WINDOW" envDefault:"30m"`

	// Search
	SearchLimit    int           `env:"LIFELOG_SEARCH_LIMIT" envDefault:"25"`
	SearchCacheTTL time.Duration `env:"LIFELOG_SEARCH_CACHE_TTL" envDefault:"60s"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"console"`
}

// Load parses configuration from the environment and expands the database
// path's home-directory prefix.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	if strings.HasPrefix(cfg.DBPath, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve home directory: %w", err)
		}
		cfg.DBPath = filepath.Join(home, cfg.DBPath[2:])
	}

	return cfg, nil
}
