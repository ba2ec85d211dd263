package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/jakechorley/spin-wheel/pkg/core/eligibility"
	"github.com/jakechorley/spin-wheel/pkg/core/engine"
	"github.com/jakechorley/spin-wheel/pkg/core/model"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverMemory   = "memory"
)

// Category defines one reward category seeded into every round
type Category struct {
	Number      int    `yaml:"number" validate:"required,min=1"`
	Label       string `yaml:"label" validate:"required"`
	MaxPerRound int    `yaml:"maxPerRound" validate:"required,min=1"`
}

// Database selects the store backend
type Database struct {
	Driver string `yaml:"driver" validate:"required,oneof=postgres sqlite memory"`
	// DSN is a postgres connection string or a sqlite file path
	DSN string `yaml:"dsn" validate:"required_unless=Driver memory"`
}

// Config represents the application configuration
type Config struct {
	Categories      []Category    `yaml:"categories" validate:"required,min=1,dive"`
	RoundThreshold  int           `yaml:"roundThreshold" validate:"min=1"`
	TimeZone        string        `yaml:"timeZone" validate:"required"`
	EligibilityRule string        `yaml:"eligibilityRule"`
	Database        Database      `yaml:"database"`
	MaxRetries      *int          `yaml:"maxRetries" validate:"omitempty,min=0"`
	RetryBackoff    time.Duration `yaml:"retryBackoff"`
	MetricsAddr     string        `yaml:"metricsAddr,omitempty"`
}

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Load loads and validates the configuration from spin_config.yaml
// It looks for the config file in the current directory first, then in the user's home directory
func Load() (*Config, error) {
	return LoadWithEnv("")
}

// LoadWithEnv loads spin_config_<env>.yaml, or spin_config.yaml when env is empty
func LoadWithEnv(env string) (*Config, error) {
	configPath, err := findConfigFile(configFileName(env))
	if err != nil {
		return nil, fmt.Errorf("failed to find config file: %w", err)
	}

	return LoadFromPath(configPath)
}

// LoadFromPath loads and validates the configuration from a specific path
func LoadFromPath(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.RoundThreshold == 0 {
		cfg.RoundThreshold = engine.DefaultThreshold
	}
	if cfg.TimeZone == "" {
		cfg.TimeZone = "Local"
	}
	if cfg.EligibilityRule == "" {
		cfg.EligibilityRule = eligibility.DefaultRule
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverMemory
	}
	// An explicit zero disables retries, so only a missing key gets the default
	if cfg.MaxRetries == nil {
		retries := engine.DefaultMaxRetries
		cfg.MaxRetries = &retries
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = engine.DefaultRetryBackoff
	}
}

// Validate validates the configuration struct, the time zone, the eligibility rule
// and that the categories can fill a round
func Validate(cfg *Config) error {
	// Run struct validation
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	seen := make(map[int]int, len(cfg.Categories))
	capacity := 0
	for i, c := range cfg.Categories {
		if prev, ok := seen[c.Number]; ok {
			return fmt.Errorf("duplicate category number %d in categories[%d] and categories[%d]", c.Number, prev, i)
		}
		seen[c.Number] = i
		capacity += c.MaxPerRound
	}
	if capacity < cfg.RoundThreshold {
		return fmt.Errorf("categories allow %d issuances per round, fewer than roundThreshold %d", capacity, cfg.RoundThreshold)
	}

	if _, err := cfg.Window(); err != nil {
		return err
	}

	return nil
}

// Location returns the configured time zone
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("invalid timeZone %q: %w", c.TimeZone, err)
	}
	return loc, nil
}

// Window returns the eligibility window for the configured rule and zone
func (c *Config) Window() (*eligibility.Window, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	return eligibility.NewWindow(c.EligibilityRule, loc)
}

// CategoryDefs converts the configured categories in file order
func (c *Config) CategoryDefs() []model.CategoryDef {
	defs := make([]model.CategoryDef, len(c.Categories))
	for i, cat := range c.Categories {
		defs[i] = model.CategoryDef{Number: cat.Number, Label: cat.Label, MaxPerRound: cat.MaxPerRound}
	}
	return defs
}

// EngineConfig builds the allocation engine configuration
func (c *Config) EngineConfig() (engine.Config, error) {
	window, err := c.Window()
	if err != nil {
		return engine.Config{}, err
	}
	retries := engine.DefaultMaxRetries
	if c.MaxRetries != nil {
		retries = *c.MaxRetries
	}
	if retries == 0 {
		retries = engine.NoRetries
	}

	return engine.Config{
		Categories:   c.CategoryDefs(),
		Threshold:    c.RoundThreshold,
		Window:       window,
		MaxRetries:   retries,
		RetryBackoff: c.RetryBackoff,
	}, nil
}

func configFileName(env string) string {
	if env == "" {
		return "spin_config.yaml"
	}
	return fmt.Sprintf("spin_config_%s.yaml", env)
}

// findConfigFile searches for the config file in current directory and home directory
func findConfigFile(name string) (string, error) {
	// Check current directory
	if _, err := os.Stat(name); err == nil {
		return name, nil
	}

	// Check home directory
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	homeConfigPath := filepath.Join(homeDir, name)
	if _, err := os.Stat(homeConfigPath); err == nil {
		return homeConfigPath, nil
	}

	return "", fmt.Errorf("%s not found in current directory or home directory", name)
}
