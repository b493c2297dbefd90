package validation

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kbukum/eventstream/errors"
)

// Validator collects field errors for values that do not come from a
// tagged struct, such as resume ids taken off a request.
type Validator struct {
	errors []FieldError
}

// FieldError is one failed check.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func New() *Validator {
	return &Validator{}
}

func (v *Validator) AddError(field, message string) {
	v.errors = append(v.errors, FieldError{Field: field, Message: message})
}

func (v *Validator) HasErrors() bool { return len(v.errors) > 0 }

func (v *Validator) Errors() []FieldError { return v.errors }

// Validate returns nil when every check passed, else one INVALID_INPUT
// error listing all of them.
func (v *Validator) Validate() *errors.AppError {
	if !v.HasErrors() {
		return nil
	}
	messages := make([]string, len(v.errors))
	for i, e := range v.errors {
		messages[i] = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	return errors.InvalidInput("", strings.Join(messages, "; ")).
		WithDetail("fields", v.errors)
}

// Numeric checks that a non-empty value is a non-negative decimal integer.
func (v *Validator) Numeric(field, value string) *Validator {
	if value == "" {
		return v
	}
	if _, err := strconv.ParseUint(value, 10, 64); err != nil {
		v.AddError(field, "must be a non-negative integer")
	}
	return v
}

// StreamID checks that a non-empty value has the <ms>[-<seq>] shape of a
// Redis stream entry id.
func (v *Validator) StreamID(field, value string) *Validator {
	if value == "" {
		return v
	}
	ms, seq, found := strings.Cut(value, "-")
	if _, err := strconv.ParseUint(ms, 10, 64); err != nil {
		v.AddError(field, "must be a stream id such as 1700000000000-0")
		return v
	}
	if found {
		if _, err := strconv.ParseUint(seq, 10, 64); err != nil {
			v.AddError(field, "must be a stream id such as 1700000000000-0")
		}
	}
	return v
}
