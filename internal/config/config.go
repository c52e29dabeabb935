// Package config provides configuration management for assetflow.
//
// Two kinds of configuration exist. Application settings (logging, colour,
// debug mode, project directory) are loaded with the following precedence
// (highest to lowest):
//  1. CLI flags
//  2. Environment variables (ASSETFLOW_ prefix)
//  3. Settings file (.assetflow.yaml)
//
// The project configuration (browser-sync mode, task commands, custom tasks)
// lives in the project directory and is described in project.go.
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Supported log levels.
const (
	LogLevelDebug = "debug"
	LogLevelInfo  = "info"
	LogLevelWarn  = "warn"
	LogLevelError = "error"
)

// Supported log formats.
const (
	LogFormatText = "text"
	LogFormatJSON = "json"
)

// EnvPrefix is the prefix of every environment variable read by assetflow.
const EnvPrefix = "ASSETFLOW"

// RoleMain marks the main pipeline spawned by the supervisor.
const RoleMain = "main"

// Setting keys, shared by flags, environment variables and the settings file.
const (
	KeyLogLevel   = "log-level"
	KeyLogFormat  = "log-format"
	KeyNoColor    = "no-color"
	KeyColor      = "color"
	KeyQuiet      = "quiet"
	KeyDebug      = "debug"
	KeyProjectDir = "project-dir"
	KeyRole       = "role"
)

// Config represents the application settings for assetflow.
type Config struct {
	// LogLevel controls the verbosity of log output.
	// Valid values: debug, info, warn, error.
	LogLevel string `mapstructure:"log-level" json:"logLevel"`

	// LogFormat controls the format of log output.
	// Valid values: text, json.
	LogFormat string `mapstructure:"log-format" json:"logFormat"`

	// NoColor disables colored output.
	NoColor bool `mapstructure:"no-color" json:"noColor"`

	// Color is the tri-state --color flag: empty when not given, otherwise
	// a boolean literal. An explicit false is forwarded to the main pipeline
	// as --no-color.
	Color string `mapstructure:"color" json:"color,omitempty"`

	// Quiet suppresses all log output below error level.
	Quiet bool `mapstructure:"quiet" json:"quiet"`

	// Debug restarts the main pipeline whenever the workflow source changes.
	Debug bool `mapstructure:"debug" json:"debug"`

	// ProjectDir is the directory holding the project configuration and the
	// package manifest.
	ProjectDir string `mapstructure:"project-dir" json:"projectDir"`

	// Role is RoleMain in a pipeline spawned by the supervisor and empty
	// otherwise. It is only set through the environment.
	Role string `mapstructure:"role" json:"role,omitempty"`

	// ConfigFile is the resolved path to the settings file used.
	// Set by Load, never read from the settings.
	ConfigFile string `mapstructure:"-" json:"-"`
}

// defaults are registered with viper so that every key is known to
// AutomaticEnv when unmarshaling.
var defaults = map[string]interface{}{
	KeyLogLevel:   LogLevelInfo,
	KeyLogFormat:  LogFormatText,
	KeyNoColor:    false,
	KeyColor:      "",
	KeyQuiet:      false,
	KeyDebug:      false,
	KeyProjectDir: ".",
	KeyRole:       "",
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		LogLevel:   LogLevelInfo,
		LogFormat:  LogFormatText,
		ProjectDir: ".",
	}
}

// Validate checks that all config values are valid.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", c.LogLevel)
	}

	switch c.LogFormat {
	case LogFormatText, LogFormatJSON:
	default:
		return fmt.Errorf("invalid log format %q: must be one of text, json", c.LogFormat)
	}

	if c.Color != "" {
		if _, err := strconv.ParseBool(c.Color); err != nil {
			return fmt.Errorf("invalid color value %q: must be true or false", c.Color)
		}
	}

	return nil
}

// EffectiveLogLevel returns the log level to use. When Quiet is true the log
// level is overridden to "error" regardless of the configured LogLevel.
func (c *Config) EffectiveLogLevel() string {
	if c.Quiet {
		return LogLevelError
	}

	return c.LogLevel
}

// ColorExplicitlyDisabled reports whether the operator turned colour off,
// either with --color=false or with --no-color.
func (c *Config) ColorExplicitlyDisabled() bool {
	if c.NoColor {
		return true
	}

	if c.Color == "" {
		return false
	}

	enabled, err := strconv.ParseBool(c.Color)

	return err == nil && !enabled
}

// ChildEnv returns the environment handing the resolved settings to the main
// pipeline spawned by the supervisor. Debug mode and colour travel as
// command-line flags instead.
func (c *Config) ChildEnv(projectDir string) []string {
	return []string{
		EnvName(KeyProjectDir) + "=" + projectDir,
		EnvName(KeyLogLevel) + "=" + c.LogLevel,
		EnvName(KeyLogFormat) + "=" + c.LogFormat,
		EnvName(KeyQuiet) + "=" + strconv.FormatBool(c.Quiet),
		EnvName(KeyRole) + "=" + RoleMain,
	}
}

// EnvName returns the environment variable read for a setting key, e.g.
// ASSETFLOW_PROJECT_DIR for project-dir.
func EnvName(key string) string {
	return EnvPrefix + "_" + envKeyReplacer.Replace(strings.ToUpper(key))
}

var envKeyReplacer = strings.NewReplacer("-", "_")

// Load initialises configuration from flags, environment variables, and an
// optional settings file. A fresh viper instance is used on every call so that
// Load is safe for concurrent tests.
func Load(cmd *cobra.Command, configFile string) (*Config, error) {
	v := viper.New()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(envKeyReplacer)
	v.AutomaticEnv()

	if err := readSettingsFile(v, configFile); err != nil {
		return nil, err
	}

	if err := bindFlags(v, cmd); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	cfg.ConfigFile = v.ConfigFileUsed()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// readSettingsFile reads the explicit settings file, or looks for
// .assetflow.yaml in the working directory and in ~/.config/assetflow.
// A missing auto-discovered file is not an error.
func readSettingsFile(v *viper.Viper, configFile string) error {
	if configFile != "" {
		v.SetConfigFile(configFile)

		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("reading config file %q: %w", configFile, err)
		}

		return nil
	}

	v.SetConfigName(".assetflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".config", "assetflow"))
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return nil
		}

		return fmt.Errorf("parsing config file: %w", err)
	}

	return nil
}

// bindFlags binds the command's flags and the persistent flags of every
// ancestor, so settings flags work after any subcommand.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	if cmd == nil {
		return nil
	}

	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("binding flags: %w", err)
	}

	for c := cmd; c != nil; c = c.Parent() {
		if err := v.BindPFlags(c.PersistentFlags()); err != nil {
			return fmt.Errorf("binding persistent flags: %w", err)
		}
	}

	return nil
}

type ctxKey struct{}

// NewContext returns a child context carrying cfg.
func NewContext(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, ctxKey{}, cfg)
}

// FromContext extracts a Config from ctx, falling back to Default().
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(ctxKey{}).(*Config); ok {
		return cfg
	}

	return Default()
}
