package eventlog

import (
	"fmt"
	"time"

	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/validation"
)

// RedisConfig holds the Redis Streams event log configuration.
type RedisConfig struct {
	// Addr is the Redis server address (host:port).
	Addr string `yaml:"addr" mapstructure:"addr" validate:"required,hostname_port"`

	// Password is the Redis server password.
	Password string `yaml:"password" mapstructure:"password"`

	// DB is the Redis database number.
	DB int `yaml:"db" mapstructure:"db" validate:"gte=0"`

	// PoolSize is the maximum number of socket connections. Every blocked
	// reader holds one.
	PoolSize int `yaml:"pool_size" mapstructure:"pool_size" validate:"gte=0"`

	// MinIdleConns is the minimum number of idle connections.
	MinIdleConns int `yaml:"min_idle_conns" mapstructure:"min_idle_conns" validate:"gte=0"`

	// DialTimeout is the timeout for establishing new connections (e.g. "5s").
	DialTimeout string `yaml:"dial_timeout" mapstructure:"dial_timeout"`

	// WriteTimeout is the timeout for socket writes (e.g. "3s").
	WriteTimeout string `yaml:"write_timeout" mapstructure:"write_timeout"`

	// Stream is the key of the Redis Stream.
	Stream string `yaml:"stream" mapstructure:"stream" validate:"required"`

	// MaxLen trims the stream to roughly this many entries on append. 0 keeps everything.
	MaxLen int64 `yaml:"max_len" mapstructure:"max_len" validate:"gte=0"`

	// BlockTimeout is how long one XREAD waits before it is re-issued (e.g. "5s").
	// It also bounds how long a cancelled read may take to return.
	BlockTimeout string `yaml:"block_timeout" mapstructure:"block_timeout"`

	// BatchSize is the maximum number of entries fetched per XREAD.
	BatchSize int64 `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=0"`

	// Retry configures retries of failed appends.
	Retry resilience.RetryConfig `yaml:"retry" mapstructure:"retry"`
}

// ApplyDefaults sets sensible defaults for zero-valued fields.
func (c *RedisConfig) ApplyDefaults() {
	if c.PoolSize <= 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns <= 0 {
		c.MinIdleConns = 2
	}
	if c.DialTimeout == "" {
		c.DialTimeout = "5s"
	}
	if c.WriteTimeout == "" {
		c.WriteTimeout = "3s"
	}
	if c.Stream == "" {
		c.Stream = "eventstream:events"
	}
	if c.BlockTimeout == "" {
		c.BlockTimeout = "5s"
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	c.Retry.ApplyDefaults()
}

// Validate checks that required fields are present and parseable.
func (c *RedisConfig) Validate() error {
	if err := validation.Validate(c); err != nil {
		return err
	}
	for name, value := range map[string]string{
		"dial_timeout":  c.DialTimeout,
		"write_timeout": c.WriteTimeout,
		"block_timeout": c.BlockTimeout,
	} {
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("invalid %s %q: %w", name, value, err)
		}
	}
	return nil
}

func (c *RedisConfig) durations() (dial, write, block time.Duration) {
	dial, _ = time.ParseDuration(c.DialTimeout)
	write, _ = time.ParseDuration(c.WriteTimeout)
	block, _ = time.ParseDuration(c.BlockTimeout)
	return dial, write, block
}
