package bootstrap

import (
	"github.com/kbukum/eventstream/config"
)

// Config is the interface constraint for application configuration types.
// Any struct that embeds config.ServiceConfig (value embedding) satisfies it
// through promoted methods, provided it does not shadow them.
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Producer producer.Config `yaml:"producer" mapstructure:"producer"`
//	}
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
