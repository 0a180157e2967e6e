package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Host                 string                `json:"host" yaml:"host" env:"HOST"`
	Port                 int                   `json:"port" yaml:"port" env:"PORT"`
	LogLevel             string                `json:"logLevel" yaml:"logLevel" env:"LOG_LEVEL"`
	APIURL               string                `json:"apiUrl" yaml:"apiUrl" env:"API_URL"`
	AuthToken            string                `json:"authToken" yaml:"authToken" env:"AUTH_TOKEN"`
	Published            bool                  `json:"published" yaml:"published" env:"PUBLISHED"`
	GraceDelay           int                   `json:"graceDelay" yaml:"graceDelay" env:"GRACE_DELAY"`                               // ms
	RequestTimeout       int                   `json:"requestTimeout" yaml:"requestTimeout" env:"REQUEST_TIMEOUT"`                   // ms
	MaxConcurrentFetches int                   `json:"maxConcurrentFetches" yaml:"maxConcurrentFetches" env:"MAX_CONCURRENT_FETCHES"` // 0 means unbounded
	MaxRecordIDs         int                   `json:"maxRecordIds" yaml:"maxRecordIds" env:"MAX_RECORD_IDS"`
	StatsLogInterval     *int                  `json:"statsLogInterval" yaml:"statsLogInterval" env:"STATS_LOG_INTERVAL"` // ms, 0 disables
	BreakerCacheSize     int                   `json:"breakerCacheSize" yaml:"breakerCacheSize" env:"BREAKER_CACHE_SIZE"`
	OtelEndpoint         string                `json:"otelEndpoint" yaml:"otelEndpoint" env:"OTEL_ENDPOINT"`
	CircuitBreaker       *CircuitBreakerConfig `json:"circuitBreaker,omitempty" yaml:"circuitBreaker,omitempty" envPrefix:"CIRCUIT_BREAKER_"`
}

// CircuitBreakerConfig configures the per data source circuit breaker
type CircuitBreakerConfig struct {
	Enabled             bool `json:"enabled" yaml:"enabled" env:"ENABLED"`
	FailureThreshold    int  `json:"failureThreshold" yaml:"failureThreshold" env:"FAILURE_THRESHOLD"`
	RecoveryTimeout     int  `json:"recoveryTimeout" yaml:"recoveryTimeout" env:"RECOVERY_TIMEOUT"` // ms
	HalfOpenMaxRequests int  `json:"halfOpenMaxRequests" yaml:"halfOpenMaxRequests" env:"HALF_OPEN_MAX_REQUESTS"`
}

// EnvPrefix is the prefix of every environment variable override
const EnvPrefix = "NAMEGOFER_"

// Default values
const (
	DefaultHost                = "localhost"
	DefaultPort                = 8547
	DefaultLogLevel            = "info"
	DefaultGraceDelay          = 50   // ms
	DefaultRequestTimeout      = 5000 // ms
	DefaultMaxRecordIDs        = 1000
	DefaultStatsLogInterval    = 60000 // ms
	DefaultBreakerCacheSize    = 1024
	DefaultFailureThreshold    = 5
	DefaultRecoveryTimeout     = 30000 // ms
	DefaultHalfOpenMaxRequests = 2
)

// GetGraceDelayDuration returns the grace window as time.Duration
func (c *Config) GetGraceDelayDuration() time.Duration {
	return time.Duration(c.GraceDelay) * time.Millisecond
}

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// GetStatsLogIntervalDuration returns stats log interval as time.Duration
func (c *Config) GetStatsLogIntervalDuration() time.Duration {
	if c.StatsLogInterval == nil {
		return DefaultStatsLogInterval * time.Millisecond
	}
	return time.Duration(*c.StatsLogInterval) * time.Millisecond
}

// IsCircuitBreakerEnabled returns true if the circuit breaker is configured and enabled
func (c *Config) IsCircuitBreakerEnabled() bool {
	return c.CircuitBreaker != nil && c.CircuitBreaker.Enabled
}

// GetRecoveryTimeoutDuration returns the breaker recovery timeout as time.Duration
func (c *CircuitBreakerConfig) GetRecoveryTimeoutDuration() time.Duration {
	return time.Duration(c.RecoveryTimeout) * time.Millisecond
}
