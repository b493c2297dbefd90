package main

import (
	"fmt"
	"time"

	"github.com/kbukum/eventstream/config"
	"github.com/kbukum/eventstream/consumer"
	"github.com/kbukum/eventstream/eventlog"
	"github.com/kbukum/eventstream/observability"
	"github.com/kbukum/eventstream/producer"
	"github.com/kbukum/eventstream/server"
	"github.com/kbukum/eventstream/validation"
)

// Log backends.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
	BackendSQL    = "sql"
)

// Config is the eventstreamd configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server   server.Config              `yaml:"server" mapstructure:"server"`
	Producer producer.Config            `yaml:"producer" mapstructure:"producer"`
	Consumer consumer.Config            `yaml:"consumer" mapstructure:"consumer"`
	Log      LogConfig                  `yaml:"log" mapstructure:"log"`
	Demo     DemoConfig                 `yaml:"demo" mapstructure:"demo"`
	Tracer   observability.TracerConfig `yaml:"tracer" mapstructure:"tracer"`
	Meter    observability.MeterConfig  `yaml:"meter" mapstructure:"meter"`
}

// LogConfig selects the event log backend.
type LogConfig struct {
	Backend string               `yaml:"backend" mapstructure:"backend" validate:"oneof=memory redis sql"`
	Redis   eventlog.RedisConfig `yaml:"redis" mapstructure:"redis"`
	SQL     eventlog.SQLConfig   `yaml:"sql" mapstructure:"sql"`
}

// DemoConfig drives the built-in event generator.
type DemoConfig struct {
	// Interval between generated events. Zero disables the generator.
	Interval time.Duration `yaml:"interval" mapstructure:"interval" validate:"gte=0"`
}

// ApplyDefaults fills zero-valued fields of every section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Producer.ApplyDefaults()
	c.Consumer.ApplyDefaults()
	if c.Log.Backend == "" {
		c.Log.Backend = BackendMemory
	}
	switch c.Log.Backend {
	case BackendRedis:
		c.Log.Redis.ApplyDefaults()
	case BackendSQL:
		c.Log.SQL.ApplyDefaults()
	}

	c.Tracer.Inherit(c.Name, c.Version, c.Environment)
	c.Tracer.ApplyDefaults()
	c.Meter.Inherit(c.Name, c.Version, c.Environment)
	c.Meter.ApplyDefaults()
}

// Validate checks every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Producer.Validate(); err != nil {
		return fmt.Errorf("producer: %w", err)
	}
	if err := c.Consumer.Validate(); err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	if err := validation.Validate(&c.Log); err != nil {
		return fmt.Errorf("log: %w", err)
	}
	switch c.Log.Backend {
	case BackendRedis:
		if err := c.Log.Redis.Validate(); err != nil {
			return fmt.Errorf("log.redis: %w", err)
		}
	case BackendSQL:
		if c.Log.SQL.DSN == "" {
			return fmt.Errorf("log.sql: dsn is required")
		}
		if err := c.Log.SQL.Validate(); err != nil {
			return fmt.Errorf("log.sql: %w", err)
		}
	}
	if err := validation.Validate(&c.Demo); err != nil {
		return fmt.Errorf("demo: %w", err)
	}
	if err := validation.Validate(&c.Tracer); err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	if err := validation.Validate(&c.Meter); err != nil {
		return fmt.Errorf("meter: %w", err)
	}
	return nil
}
