// Package config loads featurekit settings with viper and sets up the global
// zerolog logger.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"featurekit/internal/engine"
	"featurekit/internal/profile"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// EnvPrefix namespaces environment overrides, e.g. FEATUREKIT_DATASET_PATH.
const EnvPrefix = "FEATUREKIT"

var ErrInvalidConfig = errors.New("invalid configuration")

type Config struct {
	Addr    string        `mapstructure:"addr"`
	Dataset DatasetConfig `mapstructure:"dataset"`
	Profile ProfileConfig `mapstructure:"profile"`
	Log     LogConfig     `mapstructure:"log"`
}

type DatasetConfig struct {
	Path   string `mapstructure:"path"`
	Format string `mapstructure:"format"`
	// Delimiter applies to csv datasets; empty means ",".
	Delimiter string `mapstructure:"delimiter"`
}

type ProfileConfig struct {
	Examples int `mapstructure:"examples"`
}

type LogConfig struct {
	Level   string `mapstructure:"level"`
	Console bool   `mapstructure:"console"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8080")
	v.SetDefault("dataset.path", "")
	v.SetDefault("dataset.format", string(engine.FormatCSV))
	v.SetDefault("dataset.delimiter", "")
	v.SetDefault("profile.examples", profile.DefaultExamples)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.console", true)
}

// Load reads settings from code defaults, then the optional config file at
// path, then FEATUREKIT_* environment variables (a .env file in the working
// directory is loaded first when present).
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if _, err := engine.ParseFormat(c.Dataset.Format); err != nil {
		return fmt.Errorf("%w: dataset.format: %v", ErrInvalidConfig, err)
	}
	if n := len([]rune(c.Dataset.Delimiter)); n > 1 {
		return fmt.Errorf("%w: dataset.delimiter must be a single character", ErrInvalidConfig)
	}
	if c.Profile.Examples < 0 {
		return fmt.Errorf("%w: profile.examples must not be negative", ErrInvalidConfig)
	}
	if _, ok := levels[strings.ToLower(c.Log.Level)]; !ok {
		return fmt.Errorf("%w: unknown log.level %q", ErrInvalidConfig, c.Log.Level)
	}
	return nil
}

// CSVOptions converts the dataset settings into loader options.
func (d DatasetConfig) CSVOptions() engine.CSVOptions {
	var opts engine.CSVOptions
	if r := []rune(d.Delimiter); len(r) == 1 {
		opts.Comma = r[0]
	}
	return opts
}

var levels = map[string]zerolog.Level{
	"debug":    zerolog.DebugLevel,
	"info":     zerolog.InfoLevel,
	"warn":     zerolog.WarnLevel,
	"error":    zerolog.ErrorLevel,
	"disabled": zerolog.Disabled,
	"":         zerolog.Disabled,
}

// InitLogging configures the global logger. Unknown levels disable logging.
func InitLogging(level string, console bool) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, ok := levels[strings.ToLower(level)]
	if !ok {
		lvl = zerolog.Disabled
	}
	zerolog.SetGlobalLevel(lvl)

	if console {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	}
}
