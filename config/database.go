package config

import (
	"fmt"
	"net"
	"strconv"
)

// DBConfig contains PostgreSQL database configuration.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"wanderplan"`
	Password string `env:"PASSWORD" envDefault:"wanderplan"`
	Name     string `env:"NAME"     envDefault:"wanderplan"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // 'disable' for local dev, 'require' in production
	// RunMigrationsOnStart controls whether the process applies embedded
	// migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// DSN renders the Postgres connection string.
func (d DBConfig) DSN() string {
	hostPort := net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	return fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=%s",
		d.User, d.Password, hostPort, d.Name, d.SSLMode)
}

// RedisConfig contains Redis configuration for the terminal-state
// notification channel.
type RedisConfig struct {
	Addr     string `env:"ADDR"     envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	DB       int    `env:"DB"       envDefault:"0"`
	// ChannelPrefix prefixes the pub/sub channel name; the job id is appended.
	ChannelPrefix string `env:"CHANNEL_PREFIX" envDefault:"planner.jobs"`
}
