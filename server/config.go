package server

import (
	"time"

	"github.com/kbukum/eventstream/server/middleware"
	"github.com/kbukum/eventstream/validation"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string `yaml:"host" mapstructure:"host"`
	Port int    `yaml:"port" mapstructure:"port" validate:"gte=0,lte=65535"`
	// ReadTimeout bounds reading the request. WriteTimeout applies to plain
	// responses only; event streams clear their write deadline.
	ReadTimeout     time.Duration         `yaml:"read_timeout" mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration         `yaml:"write_timeout" mapstructure:"write_timeout" validate:"gte=0"`
	IdleTimeout     time.Duration         `yaml:"idle_timeout" mapstructure:"idle_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration         `yaml:"shutdown_timeout" mapstructure:"shutdown_timeout" validate:"gte=0"`
	CORS            middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 15 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 5 * time.Second
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Accept", "Cache-Control", "Last-Event-ID"}
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = 10 * time.Minute
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
