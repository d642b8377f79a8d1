package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v2"

	"github.com/vietddude/sweeper/internal/sweep/anonymize"
)

// Load reads configuration from a YAML file. Keys absent from the file keep
// their defaults.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if len(cfg.Anonymize.Tables) == 0 {
		cfg.Anonymize.Tables = anonymize.DefaultTables()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings no command can run with.
func (c *AppConfig) Validate() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.Delay < 0 {
		return fmt.Errorf("retry.delay must be >= 0, got %s", c.Retry.Delay)
	}
	if c.PurgeAds.OlderThan < 0 {
		return fmt.Errorf("purge_ads.older_than must be >= 0, got %s", c.PurgeAds.OlderThan)
	}
	for _, t := range c.Anonymize.Tables {
		if err := t.Validate(); err != nil {
			return fmt.Errorf("anonymize: %w", err)
		}
	}
	return nil
}
