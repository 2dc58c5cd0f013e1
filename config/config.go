// Package config defines the environment-driven configuration for the
// wanderplan planner service.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config files for
// the available variables:
//   - database.go: Postgres and Redis configuration
//   - queue.go: RabbitMQ broker configuration
//   - planner.go: external planner service configuration
//   - reaper.go: stale-job reaper configuration
//   - http.go: HTTP server configuration
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// AppConfig composes the configuration for every service mode this
// process can host.
type AppConfig struct {
	// IsDev relaxes a few guardrails for local development.
	IsDev bool `env:"DEV" envDefault:"false"`

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Queue    QueueConfig `envPrefix:"AMQP_"`

	HTTP    HTTPConfig
	Planner PlannerConfig
	Worker  WorkerConfig
	Reaper  ReaperConfig
	Metrics MetricsConfig

	// Services is the comma-delimited list of service modes to run in this
	// process (http, worker, reaper).
	Services string `env:"SERVICES" envDefault:"http"`
}

// Load parses the environment into an AppConfig and applies guardrails.
func Load() (*AppConfig, error) {
	var cfg AppConfig
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	cfg.Sanitize()
	return &cfg, nil
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *AppConfig) Sanitize() {
	c.HTTP.Sanitize()
	c.Planner.Sanitize()
	c.Worker.Sanitize()
	c.Reaper.Sanitize()
}

// GetEnabledServices returns the service modes enabled for this process.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

// IsHTTPServerEnabled returns true if the HTTP server is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeHTTP]
}

// IsWorkerEnabled returns true if the dispatch worker is enabled.
func (c *AppConfig) IsWorkerEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeWorker]
}

// IsReaperEnabled returns true if the stale-job reaper is enabled.
func (c *AppConfig) IsReaperEnabled() bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[ServiceModeReaper]
}
