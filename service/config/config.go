package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	PublicURL  string // base URL the payment processor redirects back to
	LogLevel   string
	DevMode    bool // mounts the confirmation-simulation endpoints; never enable in production

	// Database configuration
	DatabaseURL string

	// NATS configuration
	NATSURL string

	// Ledger gateway configuration
	LedgerGatewayURL string

	// Payment processor configuration
	ProcessorBaseURL    string
	ProcessorLoginToken string

	// Temporal configuration
	TemporalHost      string
	TemporalNamespace string
	TemporalTaskQueue string

	// Orchestration configuration
	ReservationTTL           time.Duration
	RegistrationPollInterval time.Duration
	ConfirmationPollInterval time.Duration
	SettlementTimeout        time.Duration
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	// Server configuration
	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.PublicURL = getEnvOrDefault("PUBLIC_URL", "http://localhost:8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")
	cfg.DevMode = getEnvOrDefault("DEV_MODE", "false") == "true"

	// Database configuration
	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DATABASE_URL is required"))
	}

	// NATS configuration
	cfg.NATSURL = getEnvOrDefault("NATS_URL", "nats://localhost:4222")

	// Ledger gateway configuration
	cfg.LedgerGatewayURL = os.Getenv("LEDGER_GATEWAY_URL")
	if cfg.LedgerGatewayURL == "" {
		errs = append(errs, fmt.Errorf("LEDGER_GATEWAY_URL is required"))
	}

	// Payment processor configuration
	cfg.ProcessorBaseURL = os.Getenv("PROCESSOR_BASE_URL")
	if cfg.ProcessorBaseURL == "" {
		errs = append(errs, fmt.Errorf("PROCESSOR_BASE_URL is required"))
	}
	cfg.ProcessorLoginToken = os.Getenv("PROCESSOR_LOGIN_TOKEN")
	if cfg.ProcessorLoginToken == "" {
		errs = append(errs, fmt.Errorf("PROCESSOR_LOGIN_TOKEN is required"))
	}

	// Temporal configuration
	cfg.TemporalHost = getEnvOrDefault("TEMPORAL_HOST", "localhost:7233")
	cfg.TemporalNamespace = getEnvOrDefault("TEMPORAL_NAMESPACE", "default")
	cfg.TemporalTaskQueue = getEnvOrDefault("TEMPORAL_TASK_QUEUE", "peerramp-settlement")

	// Orchestration configuration
	reservationTTL, err := parseDuration("RESERVATION_TTL", "30m")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ReservationTTL = reservationTTL
	}

	registrationPoll, err := parseDuration("REGISTRATION_POLL_INTERVAL", "15s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.RegistrationPollInterval = registrationPoll
	}

	confirmationPoll, err := parseDuration("CONFIRMATION_POLL_INTERVAL", "5s")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.ConfirmationPollInterval = confirmationPoll
	}

	settlementTimeout, err := parseDuration("SETTLEMENT_TIMEOUT", "1h")
	if err != nil {
		errs = append(errs, err)
	} else {
		cfg.SettlementTimeout = settlementTimeout
	}

	// Validate orchestration intervals
	if cfg.RegistrationPollInterval < 5*time.Second {
		errs = append(errs, fmt.Errorf("REGISTRATION_POLL_INTERVAL (%v) must be at least 5s",
			cfg.RegistrationPollInterval))
	}
	if cfg.ReservationTTL > cfg.SettlementTimeout {
		errs = append(errs, fmt.Errorf("RESERVATION_TTL (%v) cannot exceed SETTLEMENT_TIMEOUT (%v)",
			cfg.ReservationTTL, cfg.SettlementTimeout))
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

	if c.DatabaseURL == "" {
		errs = append(errs, fmt.Errorf("DatabaseURL is required"))
	}

	if c.LedgerGatewayURL == "" {
		errs = append(errs, fmt.Errorf("LedgerGatewayURL is required"))
	}

	if c.ProcessorBaseURL == "" {
		errs = append(errs, fmt.Errorf("ProcessorBaseURL is required"))
	}

	if c.ProcessorLoginToken == "" {
		errs = append(errs, fmt.Errorf("ProcessorLoginToken is required"))
	}

	if c.TemporalHost == "" {
		errs = append(errs, fmt.Errorf("TemporalHost is required"))
	}

	if c.TemporalNamespace == "" {
		errs = append(errs, fmt.Errorf("TemporalNamespace is required"))
	}

	if c.TemporalTaskQueue == "" {
		errs = append(errs, fmt.Errorf("TemporalTaskQueue is required"))
	}

	if c.ReservationTTL < time.Minute {
		errs = append(errs, fmt.Errorf("ReservationTTL must be at least 1 minute"))
	}

	if c.RegistrationPollInterval < 5*time.Second {
		errs = append(errs, fmt.Errorf("RegistrationPollInterval must be at least 5 seconds"))
	}

	if c.ReservationTTL > c.SettlementTimeout {
		errs = append(errs, fmt.Errorf("ReservationTTL cannot exceed SettlementTimeout"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
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
