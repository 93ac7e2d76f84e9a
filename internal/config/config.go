package config

import (
	"errors"
	"fmt"
	"os"
)

var ErrMissingRequiredValue = errors.New("missing required value")
var ErrInvalidValue = errors.New("invalid value")

type environment string

const (
	production  environment = "production"
	staging     environment = "staging"
	development environment = "development"
)

type Config struct {
	databaseURL     string
	upstreamBaseURL string
	sentryDSN       string
	port            string
	env             environment
}

func (c *Config) DatabaseURL() string {
	return c.databaseURL
}

func (c *Config) UpstreamBaseURL() string {
	return c.upstreamBaseURL
}

func (c *Config) SentryDSN() string {
	return c.sentryDSN
}

func (c *Config) Port() string {
	return c.port
}

func (c *Config) IsProduction() bool {
	return c.env == production
}

func (c *Config) IsStaging() bool {
	return c.env == staging
}

func (c *Config) IsDevelopment() bool {
	return c.env == development
}

// Return a string representation suitable for logging etc
func (c *Config) NonSensitiveString() string {
	return fmt.Sprintf("Config{env: %s, upstreamBaseURL: %s, ...}", string(c.env), c.upstreamBaseURL)
}

func ConfigFromEnv() (Config, error) {
	missingKey := func(key string) (Config, error) {
		return Config{}, fmt.Errorf("%w: %s", ErrMissingRequiredValue, key)
	}

	var env environment
	rawEnv, ok := os.LookupEnv("MEMOFLIGHT_ENVIRONMENT")
	if !ok {
		return missingKey("MEMOFLIGHT_ENVIRONMENT")
	}
	switch rawEnv {
	case "production":
		env = production
	case "staging":
		env = staging
	case "development":
		env = development
	default:
		return Config{}, fmt.Errorf("%w: MEMOFLIGHT_ENVIRONMENT (%s)", ErrInvalidValue, rawEnv)
	}

	databaseURL := os.Getenv("DATABASE_URL")
	upstreamBaseURL := os.Getenv("UPSTREAM_BASE_URL")
	sentryDSN := os.Getenv("SENTRY_DSN")

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	if env == production || env == staging {
		if databaseURL == "" {
			return missingKey("DATABASE_URL")
		}
		if upstreamBaseURL == "" {
			return missingKey("UPSTREAM_BASE_URL")
		}
		if sentryDSN == "" {
			return missingKey("SENTRY_DSN")
		}
	}

	return Config{
		databaseURL:     databaseURL,
		upstreamBaseURL: upstreamBaseURL,
		sentryDSN:       sentryDSN,
		port:            port,
		env:             env,
	}, nil
}
