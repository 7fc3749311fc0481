package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// App
	Port string
	Env  string

	// Graph store
	Neo4jURI      string
	Neo4jUser     string
	Neo4jPassword string

	// IRI scheme
	RecordBaseIRI       string // base for record URIs and per-record contexts
	SharedContextIRI    string // default context holding users/institutions/editors
	InstitutionsContext string // fixed context the institution lookup is scoped to

	// Caching
	CacheTTL      time.Duration
	CacheSweep    time.Duration
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	cfg := &Config{
		Port:                getEnv("PORT", "8080"),
		Env:                 getEnv("ENV", "development"),
		Neo4jURI:            getEnv("NEO4J_URI", "bolt://localhost:7687"),
		Neo4jUser:           getEnv("NEO4J_USER", "neo4j"),
		Neo4jPassword:       getEnv("NEO4J_PASSWORD", "password"),
		RecordBaseIRI:       getEnv("RECORD_BASE_IRI", "http://onto.recordhub.io/record"),
		SharedContextIRI:    getEnv("SHARED_CONTEXT_IRI", "http://onto.recordhub.io/context/shared"),
		InstitutionsContext: getEnv("INSTITUTIONS_CONTEXT_IRI", "http://onto.recordhub.io/context/institutions"),
		CacheTTL:            getEnvDuration("CACHE_TTL", 10*time.Minute),
		CacheSweep:          getEnvDuration("CACHE_SWEEP_INTERVAL", time.Minute),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that required configuration values are set
func (c *Config) Validate() error {
	if c.Neo4jURI == "" {
		return fmt.Errorf("NEO4J_URI is required")
	}
	if c.Neo4jUser == "" {
		return fmt.Errorf("NEO4J_USER is required")
	}
	if c.Neo4jPassword == "" {
		return fmt.Errorf("NEO4J_PASSWORD is required")
	}
	if c.RecordBaseIRI == "" {
		return fmt.Errorf("RECORD_BASE_IRI is required")
	}
	if c.SharedContextIRI == "" {
		return fmt.Errorf("SHARED_CONTEXT_IRI is required")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
