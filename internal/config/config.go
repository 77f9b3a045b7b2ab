package config

import "time"

// Config is the root configuration for a feed daemon instance.
type Config struct {
	Instance InstanceConfig `yaml:"instance"`
	Feed     FeedConfig     `yaml:"feed"`
	Database DatabaseConfig `yaml:"database"`
	Server   ServerConfig   `yaml:"server"`
	Session  SessionConfig  `yaml:"session"`
}

// InstanceConfig identifies this daemon.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// FeedConfig holds upstream tick-source settings.
type FeedConfig struct {
	WSURL          string        `yaml:"ws_url"`
	APIToken       string        `yaml:"api_token"` // Appended as ?token= query parameter
	ReconnectDelay time.Duration `yaml:"reconnect_delay"`
	StartupJitter  time.Duration `yaml:"startup_jitter"` // Upper bound for first-connect jitter
	PingTimeout    time.Duration `yaml:"ping_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	BufferSize     int           `yaml:"buffer_size"`
}

// DatabaseConfig holds the ledger database connection.
type DatabaseConfig struct {
	Postgres DBConfig `yaml:"postgres"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// ServerConfig holds HTTP transport settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// SessionConfig holds downstream subscription settings.
type SessionConfig struct {
	// ThrottleWindow is the minimum interval between successive deliveries
	// for the same symbol on a holdings session.
	ThrottleWindow time.Duration `yaml:"throttle_window"`
}
