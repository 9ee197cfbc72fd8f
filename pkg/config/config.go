// Package config provides configuration loading and validation for oracle-feeder.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Load loads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	absPath, err := filepath.Abs(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(absPath) // #nosec G304 -- Path sanitized with filepath.Clean and filepath.Abs
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Expand environment variables in YAML
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)

	return &cfg, nil
}

// applyDefaults sets default values for optional fields.
func applyDefaults(cfg *Config) {
	if cfg.Listen.Addr == "" {
		cfg.Listen.Addr = ":8080"
	}

	if cfg.Aggregation.Statistic == "" {
		cfg.Aggregation.Statistic = "mean"
	}
	if cfg.Aggregation.MaxQuoteAge.ToDuration() == 0 {
		cfg.Aggregation.MaxQuoteAge = Duration(60 * time.Second)
	}
	if cfg.Aggregation.OutlierTolerance == 0 {
		cfg.Aggregation.OutlierTolerance = 0.10
	}

	for i := range cfg.Sources {
		if cfg.Sources[i].Name == "" {
			cfg.Sources[i].Name = cfg.Sources[i].Type
		}
		if cfg.Sources[i].Timeout.ToDuration() == 0 {
			cfg.Sources[i].Timeout = Duration(10 * time.Second)
		}
	}

	for i := range cfg.Networks {
		n := &cfg.Networks[i]
		if n.Name == "" {
			n.Name = n.ChainID
		}
		if n.PollInterval.ToDuration() == 0 {
			n.PollInterval = Duration(5 * time.Second)
		}
		if n.ParamsInterval.ToDuration() == 0 {
			n.ParamsInterval = Duration(30 * time.Second)
		}
		if n.VotePeriod == 0 {
			n.VotePeriod = 30
		}
		if n.MaxSubmitAttempts == 0 {
			n.MaxSubmitAttempts = 4
		}
		if n.SubmitBackoff.ToDuration() == 0 {
			n.SubmitBackoff = Duration(500 * time.Millisecond)
		}
		if n.FeeDenom == "" {
			n.FeeDenom = "uluna"
		}
		if n.HDPath == "" {
			coinType := n.CoinType
			if coinType == 0 {
				coinType = 330
			}
			n.HDPath = fmt.Sprintf("m/44'/%d'/0'/0/0", coinType)
		}
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = ":9091"
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
}
