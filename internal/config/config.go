package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Load reads and parses the configuration file, applies NAMEGOFER_*
// environment overrides and defaults, and validates the result.
// An empty path skips the file and builds the config from the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := decode(path, data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// decode picks the file format from the extension, JSON being the default
func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return yaml.Unmarshal(data, cfg)
	default:
		return json.Unmarshal(data, cfg)
	}
}

// applyEnv overrides fields from NAMEGOFER_* environment variables
func applyEnv(cfg *Config) error {
	if cfg.CircuitBreaker == nil {
		cfg.CircuitBreaker = &CircuitBreakerConfig{}
	}
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.GraceDelay == 0 {
		cfg.GraceDelay = DefaultGraceDelay
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.MaxRecordIDs == 0 {
		cfg.MaxRecordIDs = DefaultMaxRecordIDs
	}
	// 0 is a valid interval that disables the statistics line
	if cfg.StatsLogInterval == nil {
		interval := DefaultStatsLogInterval
		cfg.StatsLogInterval = &interval
	}
	if cfg.BreakerCacheSize == 0 {
		cfg.BreakerCacheSize = DefaultBreakerCacheSize
	}

	if cfg.CircuitBreaker == nil {
		cfg.CircuitBreaker = &CircuitBreakerConfig{}
	}
	if cfg.CircuitBreaker.FailureThreshold == 0 {
		cfg.CircuitBreaker.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.CircuitBreaker.RecoveryTimeout == 0 {
		cfg.CircuitBreaker.RecoveryTimeout = DefaultRecoveryTimeout
	}
	if cfg.CircuitBreaker.HalfOpenMaxRequests == 0 {
		cfg.CircuitBreaker.HalfOpenMaxRequests = DefaultHalfOpenMaxRequests
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	if cfg.APIURL == "" {
		return errors.New("apiUrl is required")
	}

	u, err := url.Parse(cfg.APIURL)
	if err != nil {
		return fmt.Errorf("apiUrl is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("apiUrl scheme must be http or https, got '%s'", u.Scheme)
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return fmt.Errorf("logLevel must be one of: debug, info, warn, error")
	}

	if cfg.GraceDelay < 0 {
		return fmt.Errorf("graceDelay must be non-negative")
	}

	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("requestTimeout must be non-negative")
	}

	if cfg.MaxConcurrentFetches < 0 {
		return fmt.Errorf("maxConcurrentFetches must be non-negative")
	}

	if cfg.MaxRecordIDs < 0 {
		return fmt.Errorf("maxRecordIds must be non-negative")
	}

	if *cfg.StatsLogInterval < 0 {
		return fmt.Errorf("statsLogInterval must be non-negative")
	}

	if cfg.BreakerCacheSize < 0 {
		return fmt.Errorf("breakerCacheSize must be non-negative")
	}

	if cfg.IsCircuitBreakerEnabled() {
		if cfg.CircuitBreaker.FailureThreshold < 0 {
			return fmt.Errorf("circuitBreaker.failureThreshold must be non-negative")
		}
		if cfg.CircuitBreaker.RecoveryTimeout < 0 {
			return fmt.Errorf("circuitBreaker.recoveryTimeout must be non-negative")
		}
	}

	return nil
}
