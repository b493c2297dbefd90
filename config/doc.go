// Package config loads service configuration with Viper.
//
// LoadConfig looks for config.yml and .env next to the service's cmd
// directory (or in ./config, or the working directory), reads the YAML,
// then overlays environment variables: EVENTLOG_REDIS_ADDR sets
// eventlog.redis.addr.
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Producer producer.Config `yaml:"producer" mapstructure:"producer"`
//	}
//	var cfg Config
//	err := config.LoadConfig("eventstreamd", &cfg)
package config
