package config

import (
	"fmt"
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config is the process configuration read from the environment.
type Config struct {
	DatabaseURL   string `env:"DATABASE_URL"`
	RedisURL      string `env:"REDIS_URL"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	// Hex secp256k1 key for receipt signatures; empty means an ephemeral key
	ServerPrivateKey string `env:"SERVER_PRIVATE_KEY"`

	HTTPAddr       string   `env:"HTTP_ADDR" envDefault:":8080"`
	CORSOrigins    []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"*"`
	GameTablesFile string   `env:"GAME_TABLES_FILE"`

	Namespaces             []string      `env:"NAMESPACES" envSeparator:"," envDefault:"default"`
	MaxRoundsPerCommitment uint64        `env:"MAX_ROUNDS_PER_COMMITMENT" envDefault:"10000"`
	MaxCommitmentAge       time.Duration `env:"MAX_COMMITMENT_AGE" envDefault:"24h"`
	RotationCheckInterval  time.Duration `env:"ROTATION_CHECK_INTERVAL" envDefault:"1m"`
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Load reads .env files (missing files are fine) and then the environment.
func Load(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil {
		log.Println("⚠️  Warning: .env file not found, using environment variables")
	} else {
		log.Println("✅ Loaded environment variables from .env")
	}

	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	if len(c.Namespaces) == 0 {
		return fmt.Errorf("NAMESPACES must name at least one namespace")
	}
	for _, ns := range c.Namespaces {
		if ns == "" {
			return fmt.Errorf("NAMESPACES contains an empty name")
		}
	}
	if c.MaxCommitmentAge < 0 {
		return fmt.Errorf("MAX_COMMITMENT_AGE must not be negative")
	}
	if c.RotationCheckInterval <= 0 {
		return fmt.Errorf("ROTATION_CHECK_INTERVAL must be positive")
	}
	return nil
}
