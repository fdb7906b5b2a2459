package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ValidationMode selects what happens after startup validation runs.
type ValidationMode string

const (
	// ValidationDisabled skips both validation phases.
	ValidationDisabled ValidationMode = "disabled"
	// ValidationGate aborts startup when validation fails.
	ValidationGate ValidationMode = "gate"
	// ValidationOnly runs validation, prints the reports and exits.
	ValidationOnly ValidationMode = "validate-only"
)

// StoreProvider selects where the catalogue is persisted.
type StoreProvider string

const (
	StoreFile StoreProvider = "file"
	StoreSQL  StoreProvider = "sql"
)

// MetricsSink selects where performance records go.
type MetricsSink string

const (
	SinkNoop MetricsSink = "noop"
	SinkSQL  MetricsSink = "sql"
)

// Config holds all gateway configuration.
type Config struct {
	// Server configuration
	ServerAddress string
	Environment   string

	// Catalogue store
	ConfigPath    string
	StoreProvider StoreProvider
	StoreDriver   string
	StoreDSN      string
	WatchConfig   bool

	// Validation
	ValidationMode ValidationMode

	// Metrics
	MetricsEnabled      bool
	MetricsSamplingRate float64
	MetricsAsyncSave    bool
	MetricsExcludePaths []string
	MetricsSink         MetricsSink
	MetricsDriver       string
	MetricsDSN          string

	// Lifecycle
	ShutdownGracePeriod time.Duration

	// Logging
	LogLevel string

	EnableCORS bool
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		ServerAddress: getEnv("SERVER_ADDRESS", ":8080"),
		Environment:   getEnv("ENVIRONMENT", "development"),

		ConfigPath:    getEnv("QUERYGATE_CONFIG", "config/gateway.yaml"),
		StoreProvider: StoreProvider(getEnv("STORE_PROVIDER", "file")),
		StoreDriver:   getEnv("STORE_DRIVER", "postgres"),
		StoreDSN:      getEnv("STORE_DSN", ""),
		WatchConfig:   getEnvBool("WATCH_CONFIG", true),

		ValidationMode: ValidationMode(getEnv("VALIDATION_MODE", "disabled")),

		MetricsEnabled:      getEnvBool("METRICS_ENABLED", true),
		MetricsSamplingRate: getEnvFloat("METRICS_SAMPLING_RATE", 1.0),
		MetricsAsyncSave:    getEnvBool("METRICS_ASYNC_SAVE", true),
		MetricsExcludePaths: getEnvList("METRICS_EXCLUDE_PATHS", []string{"/api/health", "/metrics", "/api/metrics"}),
		MetricsSink:         MetricsSink(getEnv("METRICS_SINK", "noop")),
		MetricsDriver:       getEnv("METRICS_DRIVER", ""),
		MetricsDSN:          getEnv("METRICS_DSN", ""),

		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),

		LogLevel:   getEnv("LOG_LEVEL", "info"),
		EnableCORS: getEnvBool("ENABLE_CORS", true),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for contradictions.
func (c *Config) Validate() error {
	switch c.StoreProvider {
	case StoreFile, StoreSQL:
	default:
		return fmt.Errorf("STORE_PROVIDER must be 'file' or 'sql', got %q", c.StoreProvider)
	}
	if c.StoreProvider == StoreSQL && c.StoreDSN == "" {
		return fmt.Errorf("STORE_DSN is required when STORE_PROVIDER is 'sql'")
	}
	if c.StoreProvider == StoreFile && c.ConfigPath == "" {
		return fmt.Errorf("QUERYGATE_CONFIG is required when STORE_PROVIDER is 'file'")
	}

	switch c.ValidationMode {
	case ValidationDisabled, ValidationGate, ValidationOnly:
	default:
		return fmt.Errorf("VALIDATION_MODE must be 'disabled', 'gate' or 'validate-only', got %q", c.ValidationMode)
	}

	if c.MetricsSamplingRate < 0 || c.MetricsSamplingRate > 1 {
		return fmt.Errorf("METRICS_SAMPLING_RATE must be in [0,1], got %v", c.MetricsSamplingRate)
	}
	switch c.MetricsSink {
	case SinkNoop, SinkSQL:
	default:
		return fmt.Errorf("METRICS_SINK must be 'noop' or 'sql', got %q", c.MetricsSink)
	}
	if c.MetricsSink == SinkSQL && c.SinkDSN() == "" {
		return fmt.Errorf("METRICS_DSN (or STORE_DSN) is required when METRICS_SINK is 'sql'")
	}
	return nil
}

// SinkDriver resolves the SQL sink driver, falling back to the store driver.
func (c *Config) SinkDriver() string {
	if c.MetricsDriver != "" {
		return c.MetricsDriver
	}
	return c.StoreDriver
}

// SinkDSN resolves the SQL sink DSN, falling back to the store DSN.
func (c *Config) SinkDSN() string {
	if c.MetricsDSN != "" {
		return c.MetricsDSN
	}
	return c.StoreDSN
}

// IsDevelopment checks if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction checks if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool gets a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvFloat gets a float environment variable with a default value
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvDuration gets a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable with a default value
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
