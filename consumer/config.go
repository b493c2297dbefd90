package consumer

import (
	"time"

	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/validation"
	"github.com/kbukum/eventstream/wire"
)

const (
	defaultInitialBackoff = 250 * time.Millisecond
	defaultMaxBackoff     = 30 * time.Second
	defaultJitter         = 0.2
	// Browsers wait a few seconds when a stream ends without a retry hint.
	defaultReconnectDelay = time.Second
)

// Config configures HTTPConnector.
type Config struct {
	// LastEventIDParam is the query parameter that carries the resumption id.
	LastEventIDParam string `yaml:"last_event_id_param" mapstructure:"last_event_id_param" validate:"required,excludesall=&=#?"`
	// Backoff shapes the wait between consecutive failed attempts.
	// MaxAttempts is ignored; callers cap attempts themselves.
	Backoff resilience.RetryConfig `yaml:"backoff" mapstructure:"backoff"`
	// ReconnectDelay is the wait before reconnecting when the producer sent
	// no retry hint, and the floor for backoff. A negative value reconnects
	// immediately.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay"`
	// Headers are sent with every connection request.
	Headers map[string]string `yaml:"headers" mapstructure:"headers"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.LastEventIDParam == "" {
		c.LastEventIDParam = wire.DefaultLastEventIDParam
	}
	if c.Backoff.InitialBackoff <= 0 {
		c.Backoff.InitialBackoff = defaultInitialBackoff
	}
	if c.Backoff.MaxBackoff <= 0 {
		c.Backoff.MaxBackoff = defaultMaxBackoff
	}
	if c.Backoff.Jitter == 0 {
		c.Backoff.Jitter = defaultJitter
	}
	if c.ReconnectDelay == 0 {
		c.ReconnectDelay = defaultReconnectDelay
	}
	c.Backoff.ApplyDefaults()
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
