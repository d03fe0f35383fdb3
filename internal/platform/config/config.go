// Copyright (c) 2026 Townhub. All rights reserved.

/*
Package config handles application-wide settings and environment parsing.

It leverages 'caarlos0/env' to map OS environment variables into a strongly-typed
Go struct, providing early validation and default values.

Usage:

	cfg, err := config.Load()
	if err != nil {
	    log.Fatal(err)
	}

Architecture:

  - Immutability: Once loaded, configuration is read-only.
  - DI-Friendly: Passed to core components (DB, Redis, token service) via constructors.
  - Zero Hidden State: No global variables are used to store config.

This ensures the application is Twelve-Factor compliant by storing config in the env.
*/
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// MinSigningSecretLength is the minimum byte length accepted for either
// token signing secret. Anything shorter makes HS256 brute-forceable.
const MinSigningSecretLength = 32

// # Configuration Schema

// Config holds all runtime configuration for the Townhub API server.
type Config struct {

	// Server settings
	ServerPort  string `env:"SERVER_PORT"  envDefault:"8080"`
	Environment string `env:"ENVIRONMENT"  envDefault:"development"`
	Debug       bool   `env:"DEBUG"        envDefault:"false"`

	// Relational Database (PostgreSQL)
	DatabaseURL string `env:"DATABASE_URL,required"`

	// MigrationPath is the filesystem path to the SQL migrations directory.
	MigrationPath string `env:"MIGRATION_PATH" envDefault:"./data/migrations"`

	// Key-Value Store (Redis) — failed-login counters and lockout windows.
	RedisURL string `env:"REDIS_URL,required"`

	// Token signing secrets. Access and refresh tokens are signed with
	// DISTINCT secrets so that compromise of one never compromises the other.
	AccessTokenSecret  string `env:"ACCESS_TOKEN_SECRET,required"`
	RefreshTokenSecret string `env:"REFRESH_TOKEN_SECRET,required"`

	// Token lifetimes
	AccessTokenTTL  time.Duration `env:"ACCESS_TOKEN_TTL"  envDefault:"15m"`
	RefreshTokenTTL time.Duration `env:"REFRESH_TOKEN_TTL" envDefault:"720h"`

	// Brute-force lockout window. The threshold itself (5 failed attempts)
	// is policy, not deployment configuration — see the sec package.
	LockoutWindow time.Duration `env:"LOCKOUT_WINDOW" envDefault:"15m"`

	// BcryptCost tunes the password hashing work factor.
	BcryptCost int `env:"BCRYPT_COST" envDefault:"10"`

	// ExtraOrigins lists additional origins the CORS gate accepts in
	// production, beyond the townhub.app suffix (staging frontends, partner
	// embeds). Comma-separated, e.g. "https://preview.example.com".
	ExtraOrigins []string `env:"EXTRA_ORIGINS" envSeparator:","`
}

// # Configuration Loading

// Load parses environment variables into a [Config] struct and rejects
// configurations that would weaken the security core.
func Load() (*Config, error) {

	// Initialize an empty config struct
	cfg := &Config{}

	// Use the 'env' package to map environment variables to struct fields.
	// This will fail if any field marked with 'required' is missing.
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse environment variables: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validate enforces invariants that env tags cannot express.
func (c *Config) validate() error {
	if len(c.AccessTokenSecret) < MinSigningSecretLength {
		return fmt.Errorf("config: ACCESS_TOKEN_SECRET must be at least %d bytes", MinSigningSecretLength)
	}
	if len(c.RefreshTokenSecret) < MinSigningSecretLength {
		return fmt.Errorf("config: REFRESH_TOKEN_SECRET must be at least %d bytes", MinSigningSecretLength)
	}

	// Reusing one secret for both token classes defeats the reason there
	// are two of them.
	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("config: ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}

	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= 0 {
		return fmt.Errorf("config: token lifetimes must be positive")
	}
	if c.AccessTokenTTL >= c.RefreshTokenTTL {
		return fmt.Errorf("config: ACCESS_TOKEN_TTL must be shorter than REFRESH_TOKEN_TTL")
	}
	if c.LockoutWindow <= 0 {
		return fmt.Errorf("config: LOCKOUT_WINDOW must be positive")
	}

	return nil
}

// IsDevelopment reports whether the server is running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction reports whether the server is running in production mode.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ExtraAllowedOrigins returns the additional CORS origins, if any.
func (c *Config) ExtraAllowedOrigins() []string {
	return c.ExtraOrigins
}
