// Package config provides configuration management for the harvester. It
// handles loading, validation, and access to configuration values from YAML
// files and environment variables via viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/banalytics/harvester/internal/logger"
)

// Crawler defaults.
const (
	defaultParallelism       = 16
	defaultRequestsPerSecond = 10.0
	defaultRequestTimeout    = 30 * time.Second
	defaultUserAgent         = "banalytics-harvester/1.0"
	defaultOutputDir         = "runs"
)

// defaultCrawlSpec runs scheduled crawls daily at 02:00.
const defaultCrawlSpec = "0 2 * * *"

// CrawlerConfig holds fetch-engine and output settings shared by every
// vendor crawl.
type CrawlerConfig struct {
	// Parallelism caps concurrent requests in flight.
	Parallelism int `mapstructure:"parallelism" yaml:"parallelism"`
	// RequestsPerSecond throttles the request rate across all branches.
	RequestsPerSecond float64 `mapstructure:"requests_per_second" yaml:"requests_per_second"`
	// RequestTimeout bounds a single request round trip.
	RequestTimeout time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	// UserAgent is sent on every request.
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	// OutputDir is where finished run files are written.
	OutputDir string `mapstructure:"output_dir" yaml:"output_dir"`
}

// DatabaseConfig holds the warehouse connection settings.
type DatabaseConfig struct {
	// DSN is the PostgreSQL connection string.
	DSN string `mapstructure:"dsn" yaml:"dsn"`
}

// ScheduleConfig holds the recurring-crawl settings.
type ScheduleConfig struct {
	// CrawlSpec is the cron expression for scheduled crawls.
	CrawlSpec string `mapstructure:"crawl_spec" yaml:"crawl_spec"`
	// Vendors lists the vendors each scheduled crawl covers.
	Vendors []string `mapstructure:"vendors" yaml:"vendors"`
}

// Config represents the application configuration.
type Config struct {
	Crawler  CrawlerConfig  `mapstructure:"crawler" yaml:"crawler"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Logging  logger.Config  `mapstructure:"logging" yaml:"logging"`
	Schedule ScheduleConfig `mapstructure:"schedule" yaml:"schedule"`
}

// SetDefaults registers default values on v. Call before reading the config
// file so file and environment values override them.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("crawler.parallelism", defaultParallelism)
	v.SetDefault("crawler.requests_per_second", defaultRequestsPerSecond)
	v.SetDefault("crawler.request_timeout", defaultRequestTimeout)
	v.SetDefault("crawler.user_agent", defaultUserAgent)
	v.SetDefault("crawler.output_dir", defaultOutputDir)
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)
	v.SetDefault("schedule.crawl_spec", defaultCrawlSpec)
	v.SetDefault("schedule.vendors", []string{"chaldal", "meenabazar"})
}

// Load unmarshals the configuration bound in v and validates it.
func Load(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every command depends on. Database.DSN is
// validated by the commands that need it.
func (c *Config) Validate() error {
	if c.Crawler.Parallelism <= 0 {
		return errors.New("crawler.parallelism must be positive")
	}
	if c.Crawler.RequestsPerSecond <= 0 {
		return errors.New("crawler.requests_per_second must be positive")
	}
	if c.Crawler.RequestTimeout <= 0 {
		return errors.New("crawler.request_timeout must be positive")
	}
	if c.Crawler.OutputDir == "" {
		return errors.New("crawler.output_dir must be set")
	}
	if c.Schedule.CrawlSpec == "" {
		return errors.New("schedule.crawl_spec must be set")
	}
	return nil
}
