package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/allocator/internal/modules/allocation"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LOG_LEVEL", "LOG_PRETTY", "PORT", "DEV_MODE", "ALLOCATOR_CONFIG",
		"ALLOCATOR_WORKERS", "REQUEST_TIMEOUT_SECONDS", "CORS_ORIGINS", "ALLOCATOR_SEED",
		"RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
	} {
		t.Setenv(key, "")
	}
}

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "allocator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.LogLevel)
	assert.True(t, cfg.LogPretty)
	assert.Equal(t, 8001, cfg.Port)
	assert.False(t, cfg.DevMode)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Zero(t, cfg.RateLimitRPS)
	assert.Equal(t, 20, cfg.RateLimitBurst)
	assert.Equal(t, allocation.DefaultConfig(), cfg.Pipeline)
}

func TestLoad_Environment(t *testing.T) {
	clearEnv(t)
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_PRETTY", "false")
	t.Setenv("PORT", "9100")
	t.Setenv("DEV_MODE", "true")
	t.Setenv("REQUEST_TIMEOUT_SECONDS", "5")
	t.Setenv("CORS_ORIGINS", "http://a.example, http://b.example")
	t.Setenv("ALLOCATOR_WORKERS", "8")
	t.Setenv("ALLOCATOR_SEED", "1234")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.False(t, cfg.LogPretty)
	assert.Equal(t, 9100, cfg.Port)
	assert.True(t, cfg.DevMode)
	assert.Equal(t, 5*time.Second, cfg.RequestTimeout)
	assert.Equal(t, []string{"http://a.example", "http://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 8, cfg.Pipeline.Workers)
	assert.Equal(t, uint64(1234), cfg.Pipeline.Seed)
	assert.Equal(t, 2.5, cfg.RateLimitRPS)
	assert.Equal(t, 5, cfg.RateLimitBurst)
}

func TestLoad_MalformedNumbersFallBack(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "not-a-port")
	t.Setenv("LOG_PRETTY", "maybe")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 8001, cfg.Port)
	assert.True(t, cfg.LogPretty)
}

func TestLoad_InvalidSeed(t *testing.T) {
	clearEnv(t)
	t.Setenv("ALLOCATOR_SEED", "-3")

	_, err := Load()
	assert.ErrorContains(t, err, "ALLOCATOR_SEED")
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "70000"},
		{"REQUEST_TIMEOUT_SECONDS", "0"},
		{"CORS_ORIGINS", " , "},
		{"ALLOCATOR_WORKERS", "-1"},
		{"RATE_LIMIT_RPS", "-1"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLoad_PipelineFile(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, `
pipeline:
  clusters: 2
  seed: 99
  extend_horizon: true
  max_abs_return: 1.0
  max_cash_flow: 50000
  weights:
    return: 0.4
    market: 0.2
    fund: 0.2
    regime: 0.2
  forecast:
    method: holt
    alpha: 0.3
`)
	t.Setenv("ALLOCATOR_CONFIG", path)
	t.Setenv("ALLOCATOR_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	p := cfg.Pipeline
	assert.Equal(t, 2, p.Clusters)
	assert.Equal(t, uint64(99), p.Seed)
	assert.True(t, p.ExtendHorizon)
	assert.Equal(t, 1.0, p.MaxAbsReturn)
	assert.Equal(t, 50000.0, p.MaxCashFlow)
	assert.Equal(t, allocation.Weights{Return: 0.4, Market: 0.2, Fund: 0.2, Regime: 0.2}, p.Weights)
	assert.Equal(t, allocation.ForecastHolt, p.Forecast.Method)
	assert.Equal(t, 0.3, p.Forecast.Alpha)
	assert.Equal(t, 2, p.Workers)

	// Keys missing from the file keep their defaults
	assert.True(t, p.Standardize)
	assert.Equal(t, allocation.DefaultMaxIterations, p.MaxIterations)
	assert.Equal(t, 5, p.Forecast.EMAPeriod)
}

func TestLoadPipelineFile_Errors(t *testing.T) {
	_, err := LoadPipelineFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")

	_, err = LoadPipelineFile(writeFile(t, "pipeline: [1, 2"))
	assert.ErrorContains(t, err, "failed to parse YAML config")

	_, err = LoadPipelineFile(writeFile(t, "pipeline:\n  forecast:\n    method: arima\n"))
	assert.ErrorIs(t, err, allocation.ErrInputValidation)
}
