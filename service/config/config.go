package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/brojonat/txexplorer/service/explorer"
)

// Config holds all application configuration. Values come from defaults,
// then an optional YAML file named by CONFIG_FILE, then environment
// variables, each layer overriding the previous one.
type Config struct {
	// Remote API configuration
	APIBaseURL     string        `yaml:"api_base_url"`
	FeedURL        string        `yaml:"feed_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Server configuration
	ServerAddr    string `yaml:"server_addr"`
	LogLevel      string `yaml:"log_level"`
	SSEBufferSize int    `yaml:"sse_buffer_size"`

	// Explorer behavior
	StatusRefreshInterval time.Duration `yaml:"status_refresh_interval"`
	FeedReconnectDelay    time.Duration `yaml:"feed_reconnect_delay"`
	DefaultAddressNetwork string        `yaml:"default_address_network"`

	// Archive configuration. DatabaseURL is optional for the server and
	// required by the archiver.
	DatabaseURL      string        `yaml:"database_url"`
	NATSURL          string        `yaml:"nats_url"`
	ArchiveRetention time.Duration `yaml:"archive_retention"`

	// Temporal configuration for the tip backfill worker
	TemporalHost      string        `yaml:"temporal_host"`
	TemporalNamespace string        `yaml:"temporal_namespace"`
	TemporalTaskQueue string        `yaml:"temporal_task_queue"`
	BackfillInterval  time.Duration `yaml:"backfill_interval"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		APIBaseURL:            "https://api-v1.freedom.st",
		FeedURL:               "https://sock-v1.freedom.st/sse",
		RequestTimeout:        15 * time.Second,
		ServerAddr:            ":8080",
		LogLevel:              "info",
		SSEBufferSize:         16,
		StatusRefreshInterval: 0,
		FeedReconnectDelay:    3 * time.Second,
		DefaultAddressNetwork: "btc",
		NATSURL:               "nats://localhost:4222",
		TemporalHost:          "localhost:7233",
		TemporalNamespace:     "default",
		TemporalTaskQueue:     "txexplorer",
		BackfillInterval:      time.Minute,
	}
}

// Load reads configuration from CONFIG_FILE (if set) and environment
// variables, and validates the result. All problems are reported together.
func Load() (*Config, error) {
	cfg := Defaults()
	var errs []error

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, fmt.Errorf("configuration validation failed: [%v]", err)
		}
	}

	// Remote API configuration
	cfg.APIBaseURL = getEnvOrDefault("API_BASE_URL", cfg.APIBaseURL)
	cfg.FeedURL = getEnvOrDefault("FEED_URL", cfg.FeedURL)

	timeout, err := parseDuration("REQUEST_TIMEOUT", cfg.RequestTimeout)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RequestTimeout = timeout
	}

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", cfg.ServerAddr)
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", cfg.LogLevel)

	bufferSize, err := parseInt("SSE_BUFFER_SIZE", cfg.SSEBufferSize)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SSEBufferSize = bufferSize
	}

	// Explorer behavior
	refresh, err := parseDuration("STATUS_REFRESH_INTERVAL", cfg.StatusRefreshInterval)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.StatusRefreshInterval = refresh
	}

	reconnect, err := parseDuration("FEED_RECONNECT_DELAY", cfg.FeedReconnectDelay)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.FeedReconnectDelay = reconnect
	}

	cfg.DefaultAddressNetwork = getEnvOrDefault("DEFAULT_ADDRESS_NETWORK", cfg.DefaultAddressNetwork)

	// Archive configuration
	cfg.DatabaseURL = getEnvOrDefault("DATABASE_URL", cfg.DatabaseURL)
	cfg.NATSURL = getEnvOrDefault("NATS_URL", cfg.NATSURL)

	retention, err := parseDuration("ARCHIVE_RETENTION", cfg.ArchiveRetention)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ArchiveRetention = retention
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", cfg.TemporalHost)
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", cfg.TemporalNamespace)
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", cfg.TemporalTaskQueue)

	backfill, err := parseDuration("BACKFILL_INTERVAL", cfg.BackfillInterval)
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.BackfillInterval = backfill
	}

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}

	// Return all validation errors
	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if err := validateURL("APIBaseURL", c.APIBaseURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}

	if err := validateURL("FeedURL", c.FeedURL, "http", "https"); err != nil {
		errs = append(errs, err)
	}

	if c.RequestTimeout <= 0 {
		errs = append(errs, fmt.Errorf("RequestTimeout must be positive"))
	}

	if c.StatusRefreshInterval < 0 {
		errs = append(errs, fmt.Errorf("StatusRefreshInterval cannot be negative"))
	} else if c.StatusRefreshInterval > 0 && c.StatusRefreshInterval < time.Second {
		errs = append(errs, fmt.Errorf("StatusRefreshInterval must be at least 1 second"))
	}

	if c.FeedReconnectDelay < 100*time.Millisecond {
		errs = append(errs, fmt.Errorf("FeedReconnectDelay must be at least 100ms"))
	}

	if c.SSEBufferSize < 1 {
		errs = append(errs, fmt.Errorf("SSEBufferSize must be at least 1"))
	}

	if _, err := explorer.ParseNetwork(c.DefaultAddressNetwork); err != nil {
		errs = append(errs, fmt.Errorf("DefaultAddressNetwork: %w", err))
	}

	if c.ArchiveRetention < 0 {
		errs = append(errs, fmt.Errorf("ArchiveRetention cannot be negative"))
	}

	if c.BackfillInterval < 0 {
		errs = append(errs, fmt.Errorf("BackfillInterval cannot be negative"))
	} else if c.BackfillInterval > 0 && c.BackfillInterval < 10*time.Second {
		errs = append(errs, fmt.Errorf("BackfillInterval must be at least 10 seconds"))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("LogLevel must be one of debug, info, warn, error"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// RequireDatabase reports an error when no archive database is configured.
func (c *Config) RequireDatabase() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	return nil
}

// RequireTemporal reports an error when the Temporal connection is not
// configured.
func (c *Config) RequireTemporal() error {
	var errs []error
	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TEMPORAL_HOST is required"))
	}
	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TEMPORAL_NAMESPACE is required"))
	}
	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TEMPORAL_TASK_QUEUE is required"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("temporal configuration invalid: %v", errs)
	}
	return nil
}

// AddressNetwork returns the validated fallback network for addresses.
func (c *Config) AddressNetwork() explorer.Network {
	n, err := explorer.ParseNetwork(c.DefaultAddressNetwork)
	if err != nil {
		return explorer.BTC
	}
	return n
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("CONFIG_FILE: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("CONFIG_FILE %s: %w", path, err)
	}
	return nil
}

func validateURL(name, raw string, schemes ...string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", name)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s: invalid URL %q: %w", name, raw, err)
	}
	for _, s := range schemes {
		if u.Scheme == s && u.Host != "" {
			return nil
		}
	}
	return fmt.Errorf("%s: URL %q must use %s", name, raw, strings.Join(schemes, " or "))
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or keeps the
// current value.
func parseDuration(key string, current time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return current, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}
