package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultDBPort              = 5432
	DefaultDBSSLMode           = "prefer"
	DefaultMaxConns            = 10
	DefaultMinConns            = 2
	DefaultFetchTimeout        = 10 * time.Second
	DefaultSheetsAPIURL        = "https://sheets.googleapis.com/v4/spreadsheets"
	DefaultTickInterval        = 5 * time.Minute
	DefaultConcurrency         = 10
	DefaultPollInterval        = 5 * time.Minute
	DefaultQueueChannel        = "sourcewatch_events"
	DefaultQueueBatchSize      = 100
	DefaultQueuePollInterval   = 30 * time.Second
	DefaultGatewayPort         = 8081
	DefaultGatewayWriteTimeout = 10 * time.Second
	DefaultConnectionTTL       = 24 * time.Hour
	DefaultMetricsPort         = 9090
	DefaultMetricsPath         = "/metrics"
)

func (c *Config) applyDefaults() {
	// Database defaults
	if c.Database.Port == 0 {
		c.Database.Port = DefaultDBPort
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = DefaultDBSSLMode
	}
	if c.Database.MaxConns == 0 {
		c.Database.MaxConns = DefaultMaxConns
	}
	if c.Database.MinConns == 0 {
		c.Database.MinConns = DefaultMinConns
	}

	// Fetch defaults
	if c.Fetch.Timeout == 0 {
		c.Fetch.Timeout = DefaultFetchTimeout
	}
	if c.Fetch.SheetsAPIURL == "" {
		c.Fetch.SheetsAPIURL = DefaultSheetsAPIURL
	}

	// Scheduler defaults
	if c.Scheduler.TickInterval == 0 {
		c.Scheduler.TickInterval = DefaultTickInterval
	}
	if c.Scheduler.Concurrency == 0 {
		c.Scheduler.Concurrency = DefaultConcurrency
	}
	if c.Scheduler.DefaultPollInterval == 0 {
		c.Scheduler.DefaultPollInterval = DefaultPollInterval
	}

	// Queue defaults
	if c.Queue.Channel == "" {
		c.Queue.Channel = DefaultQueueChannel
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = DefaultQueueBatchSize
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = DefaultQueuePollInterval
	}

	// Gateway defaults
	if c.Gateway.Port == 0 {
		c.Gateway.Port = DefaultGatewayPort
	}
	if c.Gateway.WriteTimeout == 0 {
		c.Gateway.WriteTimeout = DefaultGatewayWriteTimeout
	}
	if c.Gateway.ConnectionTTL == 0 {
		c.Gateway.ConnectionTTL = DefaultConnectionTTL
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}
