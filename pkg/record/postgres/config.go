package postgres

import "time"

// Config holds connection and startup settings for the standalone
// constructor. Deployments that share one pool across subsystems use
// NewWithPool instead and configure the pool themselves.
type Config struct {
	// DSN is the PostgreSQL connection string.
	DSN string

	// MaxConns caps the pool size. Zero means 25.
	MaxConns int32

	// MinConns is the number of idle connections kept warm. Zero means 5.
	MinConns int32

	// MaxConnLifetime bounds how long a connection is reused before being
	// replaced. Zero means 5 minutes.
	MaxConnLifetime time.Duration

	// MigrateOnStart applies pending schema migrations during New.
	MigrateOnStart bool
}

func (c *Config) defaults() {
	if c.MaxConns == 0 {
		c.MaxConns = 25
	}
	if c.MinConns == 0 {
		c.MinConns = 5
	}
	if c.MaxConnLifetime == 0 {
		c.MaxConnLifetime = 5 * time.Minute
	}
}
