package server

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the license server.
type Config struct {
	DataDir             string
	BindAddress         string
	Port                int
	AdminKey            string
	StripeWebhookSecret string
	AllowedOrigins      string
	PublicStatus        bool
	PublicMetrics       bool
	LogLevel            string
	LogFormat           string
}

// StoreDir returns the directory holding the license database.
func (c *Config) StoreDir() string {
	return filepath.Join(c.DataDir, "licensed")
}

// LoadConfig loads license server configuration from environment variables.
// A .env file is loaded if present but not required.
func LoadConfig() (*Config, error) {
	// Best-effort .env loading (not required)
	_ = godotenv.Load()

	port, err := envOrDefaultInt("LICENSED_PORT", 8443)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DataDir:             envOrDefault("LICENSED_DATA_DIR", "/data"),
		BindAddress:         envOrDefault("LICENSED_BIND_ADDRESS", "0.0.0.0"),
		Port:                port,
		AdminKey:            strings.TrimSpace(os.Getenv("LICENSED_ADMIN_KEY")),
		StripeWebhookSecret: strings.TrimSpace(os.Getenv("STRIPE_WEBHOOK_SECRET")),
		AllowedOrigins:      envOrDefault("LICENSED_ALLOWED_ORIGINS", "*"),
		PublicStatus:        envBool("LICENSED_PUBLIC_STATUS"),
		PublicMetrics:       envBool("LICENSED_PUBLIC_METRICS"),
		LogLevel:            envOrDefault("LICENSED_LOG_LEVEL", "info"),
		LogFormat:           envOrDefault("LICENSED_LOG_FORMAT", "auto"),
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validate license server config: %w", err)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var missing []string
	if c.AdminKey == "" {
		missing = append(missing, "LICENSED_ADMIN_KEY")
	}
	if c.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("LICENSED_PORT must be between 1 and 65535, got %d", c.Port)
	}
	return nil
}

func envOrDefault(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envOrDefaultInt(key string, fallback int) (int, error) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("%s must be a valid integer: %w", key, err)
		}
		return n, nil
	}
	return fallback, nil
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	return v == "true" || v == "1" || v == "yes"
}
