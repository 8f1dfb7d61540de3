// Package config loads server configuration from the environment and
// organisation seed profiles from YAML.
package config

import "os"

// Config holds server configuration.
type Config struct {
	Port         string
	LogLevel     string
	DatabaseURL  string
	RedisURL     string
	OTLPEndpoint string
	JWTSecret    string
	OrgSeedDir   string
	SandboxMode  bool
}

// Load loads configuration from environment variables.
func Load() *Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "INFO"
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		// Default to a local file-backed ledger
		dbURL = "file:orbit.db"
	}

	return &Config{
		Port:         port,
		LogLevel:     logLevel,
		DatabaseURL:  dbURL,
		RedisURL:     os.Getenv("REDIS_URL"),
		OTLPEndpoint: os.Getenv("OTLP_ENDPOINT"),
		JWTSecret:    os.Getenv("JWT_SECRET"),
		OrgSeedDir:   os.Getenv("ORG_SEED_DIR"),
		SandboxMode:  os.Getenv("SANDBOX_MODE") == "true",
	}
}
