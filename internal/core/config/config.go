package config

import (
	"time"

	"github.com/vietddude/sweeper/internal/infra/blob"
	redisclient "github.com/vietddude/sweeper/internal/infra/redis"
	"github.com/vietddude/sweeper/internal/infra/storage/postgres"
	"github.com/vietddude/sweeper/internal/infra/storage/retry"
	"github.com/vietddude/sweeper/internal/sweep/anonymize"
	"github.com/vietddude/sweeper/internal/sweep/worker"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server    ServerConfig       `yaml:"server"`
	Database  postgres.Config    `yaml:"database"`
	Retry     retry.Config       `yaml:"retry"`
	Sweep     worker.Config      `yaml:"sweep"`
	PurgeAds  PurgeAdsConfig     `yaml:"purge_ads"`
	Anonymize AnonymizeConfig    `yaml:"anonymize"`
	Storage   blob.Config        `yaml:"storage"`
	Redis     redisclient.Config `yaml:"redis"`
	Logging   LoggingConfig      `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"` // 0 disables the health server
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PurgeAdsConfig selects which ads purge-ads deletes.
type PurgeAdsConfig struct {
	OlderThan time.Duration `yaml:"older_than"`
}

// AnonymizeConfig lists the tables the anonymize command rewrites.
type AnonymizeConfig struct {
	Tables []anonymize.TableSpec `yaml:"tables"`
}

// Default returns a configuration with every default filled in.
func Default() AppConfig {
	return AppConfig{
		Database: postgres.Config{
			Driver:          "pgx",
			ApplicationName: "sweeper",
		},
		Retry:    retry.DefaultConfig,
		Sweep:    worker.DefaultConfig(),
		PurgeAds: PurgeAdsConfig{OlderThan: 21 * 24 * time.Hour},
		Storage:  blob.DefaultConfig(),
		Redis:    redisclient.Config{LeaseTTL: 30 * time.Second},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
	}
}
