package config

import (
	"os"
	"strconv"

	appLogger "github.com/diskwatch-io/diskwatch/internal/logger"
)

// holds the mock collector server config
type ServerConfig struct {
	ListenAddress  string
	EnableDebugLog bool
}

// Load loads configuration from environment variables.
func Load() (*ServerConfig, error) {
	cfg := &ServerConfig{
		ListenAddress:  getEnv("MOCKAPI_LISTEN_ADDRESS", "0.0.0.0:8080"), // default bind
		EnableDebugLog: getEnvAsBool("MOCKAPI_ENABLE_DEBUG_LOG", false),
	}

	return cfg, nil
}

// get an environment variable or return a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// Helper function to get an environment variable as a boolean.
func getEnvAsBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		b, err := strconv.ParseBool(value)
		if err == nil {
			return b
		}
		appLogger.Warn("Failed to parse env var %s as bool: %v. Using fallback: %t", key, err, fallback)
	}
	return fallback
}
