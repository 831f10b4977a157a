package config

import "time"

// Config is the root configuration shared by the monitor and pushgate
// binaries. Each binary reads the sections it needs.
type Config struct {
	Instance  InstanceConfig  `yaml:"instance"`
	Database  DBConfig        `yaml:"database"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Queue     QueueConfig     `yaml:"queue"`
	Gateway   GatewayConfig   `yaml:"gateway"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// InstanceConfig identifies this process.
type InstanceConfig struct {
	ID string `yaml:"id"`
}

// DBConfig holds the Postgres connection backing sources, snapshots,
// connections, and the event queue.
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

// FetchConfig holds outbound HTTP fetch settings.
type FetchConfig struct {
	Timeout      time.Duration `yaml:"timeout"`        // Per-request timeout
	SheetsAPIURL string        `yaml:"sheets_api_url"` // Spreadsheet values API base
}

// SchedulerConfig holds poll scheduler settings.
type SchedulerConfig struct {
	TickInterval        time.Duration `yaml:"tick_interval"`         // Global scheduling tick
	Concurrency         int           `yaml:"concurrency"`           // Max sources polled at once
	DefaultPollInterval time.Duration `yaml:"default_poll_interval"` // For sources without one
}

// QueueConfig holds event queue settings.
type QueueConfig struct {
	Channel      string        `yaml:"channel"`       // LISTEN/NOTIFY channel name
	BatchSize    int           `yaml:"batch_size"`    // Max records claimed per wake
	PollInterval time.Duration `yaml:"poll_interval"` // Fallback poll when notifies are missed
}

// GatewayConfig holds websocket gateway settings.
type GatewayConfig struct {
	Port          int           `yaml:"port"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`  // Per-push write deadline
	ConnectionTTL time.Duration `yaml:"connection_ttl"` // Directory record TTL
}

// MetricsConfig holds the health/metrics listener settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
