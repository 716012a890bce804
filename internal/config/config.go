// Package config loads the calculation configuration: curve inputs, scenario
// battery, horizon settings and the operational knobs of the engine.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sawpanic/irrbb/internal/analytics"
	"github.com/sawpanic/irrbb/internal/scenario"
)

// Config is the full application configuration.
type Config struct {
	AnalysisDate time.Time `yaml:"analysis_date"`
	// DayCount is the basis of the curve time axis, e.g. "ACT/365F".
	DayCount      string `yaml:"day_count"`
	DiscountIndex string `yaml:"discount_index"`
	RiskFreeIndex string `yaml:"risk_free_index"`

	HorizonMonths   int  `yaml:"horizon_months"`
	BalanceConstant bool `yaml:"balance_constant"`

	// ShockBps sizes the standard scenario battery. Ignored when Scenarios
	// lists explicit definitions.
	ShockBps  float64               `yaml:"shock_bps"`
	Scenarios []scenario.Definition `yaml:"scenarios"`

	// Buckets overrides the default maturity ladder when non-empty.
	Buckets []analytics.Bound `yaml:"buckets"`

	Workers        int `yaml:"workers"`
	MemoryBudgetMB int `yaml:"memory_budget_mb"`

	Inputs   InputsSection   `yaml:"inputs"`
	Server   ServerSection   `yaml:"server"`
	Database DatabaseSection `yaml:"database"`
}

// InputsSection points at the position and curve input files.
type InputsSection struct {
	PositionsCSV string `yaml:"positions_csv"`
	CurvesYAML   string `yaml:"curves_yaml"`
}

// ServerSection configures the ops HTTP server.
type ServerSection struct {
	Addr         string  `yaml:"addr"`
	RateLimitRPS float64 `yaml:"rate_limit_rps"`
	RateBurst    int     `yaml:"rate_burst"`
}

// DatabaseSection configures optional result persistence.
type DatabaseSection struct {
	Enabled         bool          `yaml:"enabled"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	QueryTimeout    time.Duration `yaml:"query_timeout"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		AnalysisDate:  time.Now().UTC().Truncate(24 * time.Hour),
		DayCount:      "ACT/365F",
		HorizonMonths: 12,
		ShockBps:      200,
		Server: ServerSection{
			Addr:         ":8090",
			RateLimitRPS: 10,
			RateBurst:    20,
		},
		Database: DatabaseSection{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 30 * time.Minute,
			QueryTimeout:    30 * time.Second,
		},
	}
}

// Load reads a YAML configuration file on top of the defaults, then applies
// environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := os.Getenv("IRRBB_PG_DSN"); dsn != "" {
		cfg.Database.DSN = dsn
		cfg.Database.Enabled = true
	}
	if enabled := os.Getenv("IRRBB_PG_ENABLED"); enabled != "" {
		if val, err := strconv.ParseBool(enabled); err == nil {
			cfg.Database.Enabled = val
		}
	}
	if addr := os.Getenv("IRRBB_SERVER_ADDR"); addr != "" {
		cfg.Server.Addr = addr
	}
	if workers := os.Getenv("IRRBB_WORKERS"); workers != "" {
		if val, err := strconv.Atoi(workers); err == nil {
			cfg.Workers = val
		}
	}
}

// Validate enforces configuration invariants.
func (c *Config) Validate() error {
	if c.AnalysisDate.IsZero() {
		return fmt.Errorf("analysis_date is required")
	}
	if c.HorizonMonths <= 0 {
		return fmt.Errorf("horizon_months must be positive, got %d", c.HorizonMonths)
	}
	if len(c.Scenarios) == 0 && c.ShockBps <= 0 {
		return fmt.Errorf("shock_bps must be positive when no explicit scenarios are listed")
	}
	for _, d := range c.Scenarios {
		if err := d.Validate(); err != nil {
			return err
		}
	}
	if len(c.Buckets) > 0 {
		if err := analytics.ValidateBounds(c.Buckets); err != nil {
			return err
		}
	}
	if c.Database.Enabled && c.Database.DSN == "" {
		return fmt.Errorf("database dsn is required when persistence is enabled")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers cannot be negative")
	}
	return nil
}

// ScenarioBattery returns the configured scenario set: the explicit list when
// given, otherwise the standard battery at the configured shock size.
func (c *Config) ScenarioBattery() []scenario.Definition {
	if len(c.Scenarios) > 0 {
		return c.Scenarios
	}
	return scenario.StandardBattery(c.ShockBps)
}

// BucketBounds returns the configured maturity ladder or the default one.
func (c *Config) BucketBounds() []analytics.Bound {
	if len(c.Buckets) > 0 {
		return c.Buckets
	}
	return analytics.DefaultBounds()
}
