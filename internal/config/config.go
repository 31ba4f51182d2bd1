// Package config loads run settings from a YAML file, the environment (with
// an optional .env file) and finally command-line flags, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/dvloznov/crypto-etl/internal/logger"
	"github.com/dvloznov/crypto-etl/internal/pipeline"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CRYPTOETL_"

// Logging configures the process logger.
type Logging struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	File       string `yaml:"file"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

// Source configures the ingestion source.
type Source struct {
	RetryMaxElapsed time.Duration `yaml:"retry_max_elapsed"`
}

// Config holds every setting of a load run.
type Config struct {
	ProjectID      string        `yaml:"project_id"`
	Dataset        string        `yaml:"dataset"`
	Bucket         string        `yaml:"bucket"`
	Asset          string        `yaml:"asset"`
	Frequency      string        `yaml:"frequency"`
	Date           string        `yaml:"date"`
	Workers        int           `yaml:"workers"`
	ConcurrentLoad bool          `yaml:"concurrent_load"`
	Timeout        time.Duration `yaml:"timeout"`
	Logging        Logging       `yaml:"logging"`
	Source         Source        `yaml:"source"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Asset:     pipeline.DefaultAsset,
		Frequency: pipeline.DefaultBarWidth.Label,
		Workers:   pipeline.DefaultWorkers,
		Timeout:   30 * time.Minute,
		Logging: Logging{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load builds a Config from defaults, the YAML file at path (skipped when
// path is empty) and the environment. A .env file in the working directory
// is loaded first if present.
func Load(path string) (Config, error) {
	cfg := Default()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("config: loading .env: %w", err)
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: failed to parse YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	str("PROJECT_ID", &c.ProjectID)
	str("DATASET", &c.Dataset)
	str("BUCKET", &c.Bucket)
	str("ASSET", &c.Asset)
	str("FREQUENCY", &c.Frequency)
	str("DATE", &c.Date)
	str("LOG_LEVEL", &c.Logging.Level)
	str("LOG_FORMAT", &c.Logging.Format)
	str("LOG_FILE", &c.Logging.File)

	if v, ok := lookup(EnvPrefix + "WORKERS"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("config: %sWORKERS: %w", EnvPrefix, err)
		}
		c.Workers = n
	}
	if v, ok := lookup(EnvPrefix + "CONCURRENT_LOAD"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sCONCURRENT_LOAD: %w", EnvPrefix, err)
		}
		c.ConcurrentLoad = b
	}
	if v, ok := lookup(EnvPrefix + "TIMEOUT"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("config: %sTIMEOUT: %w", EnvPrefix, err)
		}
		c.Timeout = d
	}
	return nil
}

// ValidateIdentity checks the fields every warehouse command needs.
func (c Config) ValidateIdentity() error {
	var missing []string
	if c.ProjectID == "" {
		missing = append(missing, "project")
	}
	if c.Dataset == "" {
		missing = append(missing, "dataset")
	}
	if len(missing) > 0 {
		return fmt.Errorf("config: missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// Validate checks everything a load run needs.
func (c Config) Validate() error {
	if err := c.ValidateIdentity(); err != nil {
		return err
	}
	if c.Bucket == "" {
		return fmt.Errorf("config: missing required settings: bucket")
	}
	if _, err := c.ProcessingDate(); err != nil {
		return err
	}
	if _, err := c.BarWidth(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if c.Workers < 0 {
		return fmt.Errorf("config: workers must not be negative, got %d", c.Workers)
	}
	return nil
}

// ProcessingDate parses Date as YYYY-MM-DD.
func (c Config) ProcessingDate() (civil.Date, error) {
	if c.Date == "" {
		return civil.Date{}, fmt.Errorf("config: missing required settings: date")
	}
	d, err := civil.ParseDate(c.Date)
	if err != nil {
		return civil.Date{}, fmt.Errorf("config: date %q is not YYYY-MM-DD: %w", c.Date, err)
	}
	return d, nil
}

// BarWidth parses Frequency.
func (c Config) BarWidth() (pipeline.BarWidth, error) {
	return pipeline.ParseBarWidth(c.Frequency)
}

// RunOptions converts the config into pipeline options for date.
func (c Config) RunOptions(date civil.Date) (pipeline.Options, error) {
	width, err := c.BarWidth()
	if err != nil {
		return pipeline.Options{}, fmt.Errorf("config: %w", err)
	}
	return pipeline.Options{
		Asset:          c.Asset,
		Date:           date,
		Width:          width,
		Workers:        c.Workers,
		ConcurrentLoad: c.ConcurrentLoad,
	}, nil
}

// LoggerOptions converts the logging section.
func (c Config) LoggerOptions() logger.Options {
	return logger.Options{
		Level:      c.Logging.Level,
		Format:     c.Logging.Format,
		File:       c.Logging.File,
		MaxAgeDays: c.Logging.MaxAgeDays,
	}
}
