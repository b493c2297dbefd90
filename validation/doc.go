// Package validation checks configuration structs and request inputs and
// reports failures as *errors.AppError with per-field details.
//
// # Struct Tag Validation
//
// Config structs carry `validate` tags; field names in messages come from
// the mapstructure (or json) tag so they match the keys in config.yml:
//
//	type Config struct {
//	    HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval" validate:"gte=0"`
//	}
//	err := validation.Validate(cfg)
//
// # Programmatic Validation
//
//	v := validation.New()
//	v.Numeric("last_event_id", id)
//	if appErr := v.Validate(); appErr != nil { ... }
package validation
