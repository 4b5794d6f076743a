// Package config loads the gateway's runtime configuration from the
// environment, with sane defaults and an optional .env file.
package config

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds every recognised gateway option.
type Config struct {
	// Management API
	ListenPort string

	// Store coordinates
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Provider (upstream WhatsApp-protocol service)
	ProviderBaseURL string
	ProviderAPIKey  string
	InstanceName    string

	// Orchestrator (downstream home-automation service)
	OrchestratorBaseURL string
	OrchestratorToken   string
	AllowedServices     []string

	// Ambient
	LogLevel  string
	LogFormat string

	// Optional internal event bus
	NATSURL string
}

// DSN builds a postgres connection string from the Store coordinates.
func (c *Config) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode,
	)
}

func getEnv(key, defaultValue string, printEnv bool) string {
	value := os.Getenv(key)
	if printEnv {
		if value == "" {
			log.Printf("ENV: %s = %s (default)", key, defaultValue)
		} else {
			display := value
			if isSensitiveKey(key) {
				display = maskSensitiveValue(value)
			}
			log.Printf("ENV: %s = %s", key, display)
		}
	}
	if value == "" {
		return defaultValue
	}
	return value
}

func isSensitiveKey(key string) bool {
	sensitive := []string{"API_KEY", "TOKEN", "PASSWORD", "SECRET", "KEY", "AUTH"}
	for _, s := range sensitive {
		if len(key) >= len(s) && key[len(key)-len(s):] == s {
			return true
		}
	}
	return false
}

func maskSensitiveValue(value string) string {
	l := len(value)
	if l <= 8 {
		return "***masked***"
	}
	if l <= 12 {
		return value[:1] + "***masked***" + value[l-1:]
	}
	return value[:4] + "***masked***" + value[l-4:]
}

// Load reads the gateway configuration from the environment. When printEnv
// is true, every resolved value is logged (with secrets masked), intended
// for DEBUG_CONFIG_PRINT=true during operator troubleshooting.
func Load(printEnv bool) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ListenPort: getEnv("GATEWAY_PORT", "8080", printEnv),

		DBHost:     getEnv("DB_HOST", "localhost", printEnv),
		DBPort:     getEnv("DB_PORT", "5432", printEnv),
		DBUser:     getEnv("DB_USER", "gateway", printEnv),
		DBPassword: getEnv("DB_PASSWORD", "", printEnv),
		DBName:     getEnv("DB_NAME", "gateway", printEnv),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable", printEnv),

		ProviderBaseURL: getEnv("PROVIDER_BASE_URL", "http://localhost:8081", printEnv),
		ProviderAPIKey:  getEnv("PROVIDER_API_KEY", "", printEnv),
		InstanceName:    getEnv("PROVIDER_INSTANCE_NAME", "default", printEnv),

		OrchestratorBaseURL: getEnv("ORCHESTRATOR_BASE_URL", "http://localhost:8123", printEnv),
		OrchestratorToken:   getEnv("ORCHESTRATOR_TOKEN", "", printEnv),

		LogLevel:  getEnv("LOG_LEVEL", "info", printEnv),
		LogFormat: getEnv("LOG_FORMAT", "text", printEnv),

		NATSURL: getEnv("NATS_URL", "", printEnv),
	}

	cfg.AllowedServices = splitAndTrim(getEnv("ALLOWED_SERVICES", "", printEnv))

	return cfg, nil
}

func splitAndTrim(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
