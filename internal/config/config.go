// Package config provides Viper-based configuration loading for the lobby server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ListenConfig holds websocket listener settings.
type ListenConfig struct {
	// Host is the bind address for the websocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the websocket listener.
	Port int `mapstructure:"port"`
	// ReadTimeout is the per-read deadline for websocket connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write deadline for websocket connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// MaxPayloadBytes caps the size of one inbound frame.
	MaxPayloadBytes int64 `mapstructure:"max_payload_bytes"`
	// SendBuffer is the per-connection outbound queue depth in frames.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (l ListenConfig) Addr() string {
	return fmt.Sprintf("%s:%d", l.Host, l.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// Config is the top-level application configuration.
type Config struct {
	Listen  ListenConfig  `mapstructure:"listen"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateListen(c.Listen); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateListen(l ListenConfig) error {
	var errs []string
	if l.Port < 1 || l.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port must be 1-65535, got %d", l.Port))
	}
	if l.ReadTimeout < 0 {
		errs = append(errs, "listen.read_timeout must not be negative")
	}
	if l.WriteTimeout < 0 {
		errs = append(errs, "listen.write_timeout must not be negative")
	}
	if l.MaxPayloadBytes < 1 {
		errs = append(errs, fmt.Sprintf("listen.max_payload_bytes must be >= 1, got %d", l.MaxPayloadBytes))
	}
	if l.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("listen.send_buffer must be >= 1, got %d", l.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with LOBBY_ prefix
	v.SetEnvPrefix("LOBBY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen.host", "127.0.0.1")
	v.SetDefault("listen.port", 9000)
	v.SetDefault("listen.read_timeout", "5m")
	v.SetDefault("listen.write_timeout", "30s")
	v.SetDefault("listen.max_payload_bytes", 4096)
	v.SetDefault("listen.send_buffer", 64)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}
