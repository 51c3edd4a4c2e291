// Package config loads the serving process configuration from the
// environment, with an optional .env file for local development.
package config

import (
	"os"

	"github.com/joho/godotenv"
)

// Config holds the runtime configuration of the agentcal server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	// OwnerID is the agent identity whose calendar this process serves.
	OwnerID  string
	LogLevel string
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	Host string
	Port string
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Path string
}

// Load reads configuration from the environment. A .env file in the working
// directory is honored when present; missing values fall back to defaults
// suitable for local development.
func Load() *Config {
	// Ignore the error: a missing .env file is the normal production case.
	_ = godotenv.Load()

	return &Config{
		Server: ServerConfig{
			Host: getEnv("AGENTCAL_HOST", "0.0.0.0"),
			Port: getEnv("AGENTCAL_PORT", "8080"),
		},
		Database: DatabaseConfig{
			Path: getEnv("AGENTCAL_DB_PATH", "data/agentcal.db"),
		},
		OwnerID:  getEnv("AGENTCAL_OWNER_ID", "calendar-agent"),
		LogLevel: getEnv("AGENTCAL_LOG_LEVEL", "info"),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}
