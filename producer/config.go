package producer

import (
	"time"

	"github.com/kbukum/eventstream/validation"
	"github.com/kbukum/eventstream/wire"
)

// Config holds producer settings loaded from configuration.
type Config struct {
	// HeartbeatInterval is the idle time before a ping is written.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval" mapstructure:"heartbeat_interval" validate:"gte=0"`
	// DisableHeartbeat turns pings off entirely.
	DisableHeartbeat bool `yaml:"disable_heartbeat" mapstructure:"disable_heartbeat"`
	// DrainTimeout is the emit-and-end wait for sources without readiness reporting.
	DrainTimeout time.Duration `yaml:"drain_timeout" mapstructure:"drain_timeout" validate:"gte=0"`
	// ReconnectDelay is advertised to consumers in the connected frame. Zero omits it.
	ReconnectDelay time.Duration `yaml:"reconnect_delay" mapstructure:"reconnect_delay" validate:"gte=0"`
	// EmitAndEndImmediately closes each stream once the ready values are written.
	EmitAndEndImmediately bool `yaml:"emit_and_end_immediately" mapstructure:"emit_and_end_immediately"`
	// LastEventIDParam is the query parameter checked when the header is absent.
	LastEventIDParam string `yaml:"last_event_id_param" mapstructure:"last_event_id_param" validate:"required,excludesall=&=#?"`
}

// ApplyDefaults fills zero-valued fields.
func (c *Config) ApplyDefaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = DefaultHeartbeat
	}
	if c.DrainTimeout == 0 {
		c.DrainTimeout = DefaultDrainTimeout
	}
	if c.LastEventIDParam == "" {
		c.LastEventIDParam = wire.DefaultLastEventIDParam
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	return validation.Validate(c)
}
