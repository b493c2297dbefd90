package eventlog

import (
	"fmt"
	"strings"
	"time"

	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/validation"
)

// SQLConfig holds the SQL event log configuration.
type SQLConfig struct {
	// DSN is the SQLite data source, e.g. "file:events.db?_journal_mode=WAL".
	// Ignored when a dialector is supplied with WithDialector.
	DSN string `yaml:"dsn" mapstructure:"dsn"`

	// Table is the name of the table entries are stored in.
	Table string `yaml:"table" mapstructure:"table" validate:"required"`

	// MaxOpenConns sets the maximum number of open connections to the database.
	MaxOpenConns int `yaml:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`

	// MaxIdleConns sets the maximum number of idle connections in the pool.
	MaxIdleConns int `yaml:"max_idle_conns" mapstructure:"max_idle_conns" validate:"gte=0"`

	// ConnMaxLifetime is the maximum time a connection may be reused (e.g. "1h").
	ConnMaxLifetime string `yaml:"conn_max_lifetime" mapstructure:"conn_max_lifetime"`

	// PollInterval is how often a waiting reader queries for entries
	// appended by other processes (e.g. "500ms").
	PollInterval string `yaml:"poll_interval" mapstructure:"poll_interval"`

	// BatchSize is the maximum number of rows fetched per query.
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=0"`

	// SlowQueryThreshold is the duration above which queries are logged as slow (e.g. "200ms").
	SlowQueryThreshold string `yaml:"slow_query_threshold" mapstructure:"slow_query_threshold"`

	// LogLevel sets GORM's log level: silent, error, warn or info.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=silent error warn info"`

	// Retry configures connection attempts on Start.
	Retry resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *SQLConfig) ApplyDefaults() {
	if c.Table == "" {
		c.Table = "stream_events"
	}
	if c.MaxOpenConns <= 0 {
		c.MaxOpenConns = 10
	}
	if c.MaxIdleConns <= 0 {
		c.MaxIdleConns = 2
	}
	if c.ConnMaxLifetime == "" {
		c.ConnMaxLifetime = "1h"
	}
	if c.PollInterval == "" {
		c.PollInterval = "500ms"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.SlowQueryThreshold == "" {
		c.SlowQueryThreshold = "200ms"
	}
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	c.Retry.ApplyDefaults()
}

// Validate checks that fields are present and parseable.
func (c *SQLConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	if !validTableName(c.Table) {
		return fmt.Errorf("invalid table name %q: use letters, digits and underscores", c.Table)
	}
	if c.MaxIdleConns > c.MaxOpenConns {
		return fmt.Errorf("max_idle_conns (%d) must be <= max_open_conns (%d)", c.MaxIdleConns, c.MaxOpenConns)
	}
	for name, value := range map[string]string{
		"conn_max_lifetime":    c.ConnMaxLifetime,
		"poll_interval":        c.PollInterval,
		"slow_query_threshold": c.SlowQueryThreshold,
	} {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
		if name == "poll_interval" && d <= 0 {
			return fmt.Errorf("poll_interval must be > 0")
		}
	}
	return nil
}

func validTableName(name string) bool {
	return strings.IndexFunc(name, func(r rune) bool {
		return r != '_' && (r < 'a' || r > 'z') && (r < 'A' || r > 'Z') && (r < '0' || r > '9')
	}) < 0
}

func (c *SQLConfig) durations() (lifetime, poll, slow time.Duration) {
	lifetime, _ = time.ParseDuration(c.ConnMaxLifetime)
	poll, _ = time.ParseDuration(c.PollInterval)
	slow, _ = time.ParseDuration(c.SlowQueryThreshold)
	return lifetime, poll, slow
}
