package errors

import "fmt"

// AppError is an error with a code, a message and optional details. Its
// JSON form is what travels in an error frame.
type AppError struct {
	Code      ErrorCode      `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`

	// HTTPStatus overrides the status derived from Code. Not serialized.
	HTTPStatus int `json:"-"`
	// Cause stays in the process.
	Cause error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (cause: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

// Status is the HTTP status to answer with: HTTPStatus when set, else the
// one registered for Code. Errors read off the wire have no HTTPStatus.
func (e *AppError) Status() int {
	if e.HTTPStatus != 0 {
		return e.HTTPStatus
	}
	return HTTPStatusFor(e.Code)
}

// WithCause sets Cause and returns e.
func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// WithDetails merges details into e and returns e.
func (e *AppError) WithDetails(details map[string]any) *AppError {
	for k, v := range details {
		e.WithDetail(k, v)
	}
	return e
}

// WithDetail sets one detail and returns e.
func (e *AppError) WithDetail(key string, value any) *AppError {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

// New builds an AppError whose retryability follows code.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message, Retryable: IsRetryableCode(code)}
}

func ServiceUnavailable(service string) *AppError {
	return New(ErrCodeServiceUnavailable, fmt.Sprintf("The %s is temporarily unavailable.", service)).
		WithDetail("service", service)
}

func ConnectionFailed(target string) *AppError {
	return New(ErrCodeConnectionFailed, fmt.Sprintf("Unable to connect to %s.", target)).
		WithDetail("target", target)
}

func Timeout(operation string) *AppError {
	return New(ErrCodeTimeout, "The operation took too long.").WithDetail("operation", operation)
}

// SourceFailed wraps a producer source failure. The cause's text becomes
// the message, since the cause itself is not serialized.
func SourceFailed(cause error) *AppError {
	msg := "The event source failed."
	if cause != nil {
		msg = cause.Error()
	}
	return New(ErrCodeSourceFailed, msg).WithCause(cause)
}

func SerializationFailed(cause error) *AppError {
	msg := "The payload could not be serialized."
	if cause != nil {
		msg = "The payload could not be serialized: " + cause.Error()
	}
	return New(ErrCodeSerializationFailed, msg).WithCause(cause)
}

func MalformedFrame(reason string) *AppError {
	return New(ErrCodeMalformedFrame, "Malformed frame: "+reason)
}

func StreamClosed() *AppError {
	return New(ErrCodeStreamClosed, "The stream is closed.")
}

// InvalidInput reports a bad value. field may be empty when the problem
// is not tied to one field.
func InvalidInput(field, reason string) *AppError {
	e := New(ErrCodeInvalidInput, "Invalid input: "+reason)
	if field != "" {
		e.WithDetail("field", field)
	}
	return e
}

// Validation reports struct validation failures under INVALID_INPUT.
func Validation(message string) *AppError {
	return New(ErrCodeInvalidInput, message)
}

func InvalidFormat(field, expectedFormat string) *AppError {
	return New(ErrCodeInvalidFormat, fmt.Sprintf("Invalid format for %s. Expected: %s", field, expectedFormat)).
		WithDetails(map[string]any{"field": field, "expected_format": expectedFormat})
}

func NotFound(resource string) *AppError {
	return New(ErrCodeNotFound, resource+" not found.").WithDetail("resource", resource)
}

// Internal hides cause behind a generic message.
func Internal(cause error) *AppError {
	return New(ErrCodeInternal, "An unexpected error occurred.").WithCause(cause)
}

// StorageError reports an event log backend failure. It is retryable.
func StorageError(backend string, cause error) *AppError {
	return New(ErrCodeStorageError, fmt.Sprintf("The %s event log failed.", backend)).
		WithDetail("backend", backend).
		WithCause(cause)
}
