package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_JSONDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"apiUrl": "http://localhost:8000/api"}`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, DefaultHost, cfg.Host)
	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultLogLevel, cfg.LogLevel)
	assert.Equal(t, 50*time.Millisecond, cfg.GetGraceDelayDuration())
	assert.Equal(t, 5*time.Second, cfg.GetRequestTimeoutDuration())
	assert.Equal(t, time.Minute, cfg.GetStatsLogIntervalDuration())
	assert.Equal(t, DefaultMaxRecordIDs, cfg.MaxRecordIDs)
	assert.Equal(t, DefaultBreakerCacheSize, cfg.BreakerCacheSize)
	assert.False(t, cfg.IsCircuitBreakerEnabled())
	assert.Equal(t, 30*time.Second, cfg.CircuitBreaker.GetRecoveryTimeoutDuration())
}

func TestLoad_YAML(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
apiUrl: https://api.example.com
authToken: tok
published: true
port: 9000
graceDelay: 10
statsLogInterval: 0
circuitBreaker:
  enabled: true
  failureThreshold: 3
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "tok", cfg.AuthToken)
	assert.True(t, cfg.Published)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, 10*time.Millisecond, cfg.GetGraceDelayDuration())
	assert.Zero(t, cfg.GetStatsLogIntervalDuration())
	assert.True(t, cfg.IsCircuitBreakerEnabled())
	assert.Equal(t, 3, cfg.CircuitBreaker.FailureThreshold)
	assert.Equal(t, DefaultHalfOpenMaxRequests, cfg.CircuitBreaker.HalfOpenMaxRequests)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"apiUrl": "http://a.example", "logLevel": "info"}`)

	t.Setenv("NAMEGOFER_LOG_LEVEL", "debug")
	t.Setenv("NAMEGOFER_GRACE_DELAY", "75")
	t.Setenv("NAMEGOFER_CIRCUIT_BREAKER_ENABLED", "true")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 75, cfg.GraceDelay)
	assert.True(t, cfg.IsCircuitBreakerEnabled())
}

func TestLoad_EnvOnly(t *testing.T) {
	t.Setenv("NAMEGOFER_API_URL", "http://b.example")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "http://b.example", cfg.APIURL)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
	}{
		{"missing api url", `{}`},
		{"bad scheme", `{"apiUrl": "ftp://x"}`},
		{"bad port", `{"apiUrl": "http://x", "port": 70000}`},
		{"bad log level", `{"apiUrl": "http://x", "logLevel": "loud"}`},
		{"negative grace delay", `{"apiUrl": "http://x", "graceDelay": -1}`},
		{"negative stats interval", `{"apiUrl": "http://x", "statsLogInterval": -5}`},
		{"malformed", `{"apiUrl": `},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, dir, "config.json", tt.content))
			assert.Error(t, err)
		})
	}

	_, err := Load(filepath.Join(dir, "missing.json"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsValidChanges(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.json", `{"apiUrl": "http://x", "graceDelay": 50}`)

	w, err := NewWatcher(path, 20*time.Millisecond, zerolog.Nop())
	require.NoError(t, err)

	changes := make(chan *Config, 4)
	w.OnChange(func(cfg *Config) { changes <- cfg })

	require.NoError(t, w.Start(context.Background()))
	defer w.Stop()

	// invalid content is ignored
	writeFile(t, filepath.Dir(path), "config.json", `{"apiUrl": "http://x", "logLevel": "loud"}`)
	select {
	case <-changes:
		t.Fatal("invalid config must not be applied")
	case <-time.After(150 * time.Millisecond):
	}

	writeFile(t, filepath.Dir(path), "config.json", `{"apiUrl": "http://x", "graceDelay": 80}`)
	select {
	case cfg := <-changes:
		assert.Equal(t, 80, cfg.GraceDelay)
	case <-time.After(2 * time.Second):
		t.Fatal("config change was not picked up")
	}
}

func TestNewWatcher_RequiresPath(t *testing.T) {
	_, err := NewWatcher("", 0, zerolog.Nop())
	assert.Error(t, err)
}

func TestWatcher_StopAfterFailedStart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.json")

	w, err := NewWatcher(path, 0, zerolog.Nop())
	require.NoError(t, err)
	require.Error(t, w.Start(context.Background()))

	done := make(chan struct{})
	go func() {
		w.Stop()
		w.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked after a failed Start")
	}
}
