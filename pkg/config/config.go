// Package config loads tool settings from defaults, an optional config
// file, PEAK_MEM_* environment variables, and bound CLI flags, in
// ascending precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/charmitro/peak-mem/pkg/baseline"
	"github.com/charmitro/peak-mem/pkg/output"
)

const (
	// ConfigFileName is the base name of the config file, without
	// extension.
	ConfigFileName = "peak-mem"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "PEAK_MEM"

	// DefaultIntervalMs is the default sampling interval.
	DefaultIntervalMs = 100

	// DefaultRegressionThreshold is the RSS growth percentage that
	// counts as a regression.
	DefaultRegressionThreshold = 10.0
)

// Config holds every tunable of the tool.
type Config struct {
	IntervalMs          uint64  `mapstructure:"interval_ms" yaml:"interval_ms"`
	NoChildren          bool    `mapstructure:"no_children" yaml:"no_children"`
	RegressionThreshold float64 `mapstructure:"regression_threshold" yaml:"regression_threshold"`
	BaselineDir         string  `mapstructure:"baseline_dir" yaml:"baseline_dir"`
	Units               string  `mapstructure:"units" yaml:"units"`
	LogLevel            string  `mapstructure:"log_level" yaml:"log_level"`
}

// Validate rejects settings the telemetry core would refuse anyway, so
// mistakes surface before a process is spawned.
func (c *Config) Validate() error {
	if c.IntervalMs == 0 {
		return errors.New("interval must be greater than zero")
	}
	if c.RegressionThreshold < 0 {
		return errors.New("regression threshold must not be negative")
	}
	if _, err := output.ParseUnit(c.Units); err != nil {
		return err
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", c.LogLevel)
	}
	return nil
}

// Loader reads configuration through one viper instance, shared with
// the CLI so flag bindings take effect.
type Loader struct {
	v *viper.Viper
}

// NewLoader uses the global viper instance.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// NewLoaderWith uses a private viper instance, for tests.
func NewLoaderWith(v *viper.Viper) *Loader {
	return &Loader{v: v}
}

// Load reads config from the search paths and environment and returns
// the validated result.
func (l *Loader) Load() (*Config, error) {
	return l.load("")
}

// LoadWithFile reads config from an explicit file path.
func (l *Loader) LoadWithFile(path string) (*Config, error) {
	if path == "" {
		return l.Load()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	return l.load(path)
}

func (l *Loader) load(explicitFile string) (*Config, error) {
	l.setDefaults()

	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	l.v.AutomaticEnv()

	if explicitFile != "" {
		l.v.SetConfigFile(explicitFile)
	} else {
		l.v.SetConfigName(ConfigFileName)
		l.v.SetConfigType("yaml")
		l.v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			l.v.AddConfigPath(filepath.Join(home, ".config", "peak-mem"))
		}
	}

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover it.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && explicitFile == "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if explicitFile != "" {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := l.v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (l *Loader) setDefaults() {
	l.v.SetDefault("interval_ms", DefaultIntervalMs)
	l.v.SetDefault("no_children", false)
	l.v.SetDefault("regression_threshold", DefaultRegressionThreshold)
	l.v.SetDefault("baseline_dir", baseline.DefaultDir())
	l.v.SetDefault("units", "auto")
	l.v.SetDefault("log_level", "info")
}

// Viper exposes the underlying instance for flag binding.
func (l *Loader) Viper() *viper.Viper {
	return l.v
}
