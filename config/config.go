package config

import (
	"os"
	"strings"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - database.go: Database and Redis configuration
//   - services.go: Service mode and background loop configuration
type AppConfig struct {
	// IsDev controls development mode behavior (verbose logging, relaxed limits).
	// Set DEV=true or NODE_ENV=development for development mode.
	IsDev bool `env:"DEV" envDefault:"false"`

	// Database configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"worker,outbox,cleanup"`

	// Worker configuration
	Worker WorkerConfig

	// Outbox processor configuration
	Outbox OutboxConfig

	// File cleanup configuration
	Cleanup CleanupConfig

	// PDF file storage configuration
	Storage StorageConfig

	// Outbound email configuration
	Email EmailConfig `envPrefix:"SMTP_"`

	// Request limit configuration
	Limits LimitsConfig

	// Renderer configuration
	Renderer RendererConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.Worker.Sanitize()
	c.Outbox.Sanitize()
	c.Cleanup.Sanitize()
	c.Storage.Sanitize()
	c.Email.Sanitize()
	c.Limits.Sanitize()
	c.Renderer.Sanitize()
	c.Observability.Sanitize()

	// Check NODE_ENV for dev mode
	c.detectDevMode()
}

// detectDevMode checks both DEV and NODE_ENV environment variables.
// This is called by Sanitize() to ensure IsDev is set correctly.
// NODE_ENV is checked as a fallback (common in frontend tooling).
func (c *AppConfig) detectDevMode() {
	if !c.IsDev {
		nodeEnv := strings.ToLower(os.Getenv("NODE_ENV"))
		c.IsDev = nodeEnv == "development" || nodeEnv == "dev"
	}
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsWorkerEnabled returns true if the PDF worker service is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsOutboxEnabled returns true if the outbox processor service is enabled.
func (c *AppConfig) IsOutboxEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeOutbox]
}

// IsCleanupEnabled returns true if the file cleanup service is enabled.
func (c *AppConfig) IsCleanupEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeCleanup]
}
