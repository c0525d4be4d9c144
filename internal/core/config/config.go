package config

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
)

type Config struct {
	Port        string
	DatabaseURL string
	Env         string

	// IPNSecret is the shared secret the payment provider signs callback
	// bodies with. Callbacks cannot be authenticated without it, so it is
	// required (fail closed, never accept-by-default).
	IPNSecret string

	// OpsWebhookURL receives signed payment lifecycle events for
	// reconciliation. Optional; events are dropped when unset.
	OpsWebhookURL    string
	OpsWebhookSecret string
}

// LoadConfig reads .env file and returns a Config struct
func LoadConfig() (*Config, error) {
	// Try loading .env file (it might not exist in Production, which is fine)
	if err := godotenv.Load(); err != nil {
		slog.Warn("No .env file found, relying on System Env Variables")
	}

	cfg := &Config{
		Port:             getEnv("PORT", "3000"),
		DatabaseURL:      getEnv("DATABASE_URL", ""),
		Env:              getEnv("ENV", "development"),
		IPNSecret:        getEnv("NOWPAYMENTS_IPN_SECRET", ""),
		OpsWebhookURL:    getEnv("OPS_WEBHOOK_URL", ""),
		OpsWebhookSecret: getEnv("OPS_WEBHOOK_SECRET", ""),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.IPNSecret == "" {
		return nil, fmt.Errorf("NOWPAYMENTS_IPN_SECRET environment variable is required")
	}

	return cfg, nil
}

// Helper to get env with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
