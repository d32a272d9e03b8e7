// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/aristath/allocator/internal/modules/allocation"
)

// Config holds application configuration
type Config struct {
	LogLevel       string
	LogPretty      bool
	Port           int
	DevMode        bool
	ConfigFile     string // Optional YAML file with the pipeline block
	RequestTimeout time.Duration
	CORSOrigins    []string
	RateLimitRPS   float64 // 0 disables rate limiting
	RateLimitBurst int
	Pipeline       allocation.Config
}

// fileConfig is the layout of the YAML config file.
type fileConfig struct {
	Pipeline allocation.Config `yaml:"pipeline"`
}

// Load reads configuration from environment variables and the optional YAML file
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	cfg := &Config{
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		LogPretty:      getEnvAsBool("LOG_PRETTY", true),
		Port:           getEnvAsInt("PORT", 8001),
		DevMode:        getEnvAsBool("DEV_MODE", false),
		ConfigFile:     getEnv("ALLOCATOR_CONFIG", ""),
		RequestTimeout: time.Duration(getEnvAsInt("REQUEST_TIMEOUT_SECONDS", 30)) * time.Second,
		CORSOrigins:    splitList(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPS:   getEnvAsFloat("RATE_LIMIT_RPS", 0),
		RateLimitBurst: getEnvAsInt("RATE_LIMIT_BURST", 20),
		Pipeline:       allocation.DefaultConfig(),
	}

	if cfg.ConfigFile != "" {
		pipeline, err := LoadPipelineFile(cfg.ConfigFile)
		if err != nil {
			return nil, err
		}
		cfg.Pipeline = pipeline
	}

	// Environment wins over the file
	cfg.Pipeline.Workers = getEnvAsInt("ALLOCATOR_WORKERS", cfg.Pipeline.Workers)
	if value := os.Getenv("ALLOCATOR_SEED"); value != "" {
		seed, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ALLOCATOR_SEED %q: %w", value, err)
		}
		cfg.Pipeline.Seed = seed
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadPipelineFile reads the pipeline block from a YAML file. Keys missing from the
// file keep their defaults.
func LoadPipelineFile(path string) (allocation.Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return allocation.Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	file := fileConfig{Pipeline: allocation.DefaultConfig()}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return allocation.Config{}, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	if err := file.Pipeline.Validate(); err != nil {
		return allocation.Config{}, fmt.Errorf("config validation failed: %w", err)
	}
	return file.Pipeline, nil
}

// Validate checks if the configuration is usable
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.RequestTimeout <= 0 {
		return fmt.Errorf("request timeout must be positive, got %s", c.RequestTimeout)
	}
	if len(c.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin is required")
	}
	if c.RateLimitRPS < 0 {
		return fmt.Errorf("rate limit must not be negative, got %v", c.RateLimitRPS)
	}
	if c.RateLimitRPS > 0 && c.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive, got %d", c.RateLimitBurst)
	}
	if err := c.Pipeline.Validate(); err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	return nil
}

// Helper functions
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
