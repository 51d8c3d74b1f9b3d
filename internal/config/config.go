// Package config loads formpilot settings from defaults, an optional yaml
// file and FORMPILOT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Environment constants
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Config holds all configuration for the application
type Config struct {
	Environment string         `mapstructure:"environment" validate:"oneof=development production"`
	LogLevel    string         `mapstructure:"log_level" validate:"oneof=trace debug info warn error"`
	Profile     ProfileConfig  `mapstructure:"profile"`
	Autofill    AutofillConfig `mapstructure:"autofill"`
	Timing      TimingConfig   `mapstructure:"timing"`
	Browser     BrowserConfig  `mapstructure:"browser"`
}

// ProfileConfig points at the web app's profile API
type ProfileConfig struct {
	BaseURL string        `mapstructure:"base_url" validate:"omitempty,url"`
	Token   string        `mapstructure:"token"`
	Timeout time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

// AutofillConfig holds the user's autofill preferences
type AutofillConfig struct {
	OnLoad bool `mapstructure:"on_load"`
}

// TimingConfig holds scan scheduling parameters
type TimingConfig struct {
	Debounce    time.Duration `mapstructure:"debounce" validate:"gt=0"`
	RetryDelay  time.Duration `mapstructure:"retry_delay" validate:"gt=0"`
	MaxRetries  int           `mapstructure:"max_retries" validate:"gte=0"`
	SettleDelay time.Duration `mapstructure:"settle_delay" validate:"gt=0"`
}

// BrowserConfig configures the driven Chromium
type BrowserConfig struct {
	Headless   bool          `mapstructure:"headless"`
	Width      int           `mapstructure:"width" validate:"gt=0"`
	Height     int           `mapstructure:"height" validate:"gt=0"`
	ProfileDir string        `mapstructure:"profile_dir"`
	Timeout    time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

var validate = validator.New()

// Load reads configuration from defaults, ./config/formpilot.yaml or
// $HOME/.formpilot/formpilot.yaml, and the environment, then validates it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("FORMPILOT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetConfigName("formpilot")
	v.SetConfigType("yaml")
	v.AddConfigPath("./config")
	v.AddConfigPath("$HOME/.formpilot")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Environment = strings.ToLower(cfg.Environment)
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %w", err)
		}
		msgs := make([]string, 0, len(verrs))
		for _, e := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", e.Namespace(), e.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", EnvDevelopment)
	v.SetDefault("log_level", "info")

	v.SetDefault("profile.base_url", "")
	v.SetDefault("profile.token", "")
	v.SetDefault("profile.timeout", 15*time.Second)

	v.SetDefault("autofill.on_load", false)

	v.SetDefault("timing.debounce", 250*time.Millisecond)
	v.SetDefault("timing.retry_delay", time.Second)
	v.SetDefault("timing.max_retries", 5)
	v.SetDefault("timing.settle_delay", 100*time.Millisecond)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.width", 1280)
	v.SetDefault("browser.height", 720)
	v.SetDefault("browser.profile_dir", "")
	v.SetDefault("browser.timeout", 30*time.Second)
}
