package validation

import (
	stderrors "errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"unicode"

	"github.com/go-playground/validator/v10"

	"github.com/kbukum/eventstream/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())

		// config keys read better than Go field names in error messages
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			for _, tag := range []string{"mapstructure", "json"} {
				name := strings.SplitN(fld.Tag.Get(tag), ",", 2)[0]
				if name != "" && name != "-" {
					return name
				}
			}
			return toSnakeCase(fld.Name)
		})
	})
	return validate
}

// Validate checks s against its `validate` tags. Failures come back as one
// INVALID_INPUT error naming each field by its config key.
func Validate(s any) error {
	err := getValidator().Struct(s)
	if err == nil {
		return nil
	}
	var failed validator.ValidationErrors
	if !stderrors.As(err, &failed) {
		return errors.Validation("validation failed").WithCause(err)
	}

	v := New()
	for _, fe := range failed {
		v.AddError(toSnakeCase(fe.Field()), describe(fe))
	}
	return v.Validate()
}

// messages maps a validator tag to its message; %s is the tag parameter.
var messages = map[string]string{
	"required":      "is required",
	"min":           "must be at least %s",
	"max":           "must be at most %s",
	"gte":           "must be greater than or equal to %s",
	"lte":           "must be less than or equal to %s",
	"gt":            "must be greater than %s",
	"url":           "must be a valid URL",
	"hostname_port": "must be a host:port address",
	"oneof":         "must be one of: %s",
	"excludesall":   "must not contain any of: %s",
}

func describe(fe validator.FieldError) string {
	msg, ok := messages[fe.Tag()]
	if !ok {
		return "is invalid"
	}
	if strings.Contains(msg, "%s") {
		return fmt.Sprintf(msg, fe.Param())
	}
	return msg
}

// toSnakeCase lower-cases s with an underscore before each inner capital.
// snake_case input passes through unchanged.
func toSnakeCase(s string) string {
	var b strings.Builder
	for i, r := range s {
		if unicode.IsUpper(r) {
			if i > 0 {
				b.WriteByte('_')
			}
			r = unicode.ToLower(r)
		}
		b.WriteRune(r)
	}
	return b.String()
}
