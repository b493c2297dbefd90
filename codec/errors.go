package codec

import (
	"bytes"
	"encoding/json"

	"github.com/kbukum/eventstream/errors"
)

// ErrorKey is the top-level key that marks a data payload as a serialized
// error. Application payloads must not use it.
const ErrorKey = "serialized-error"

type errorPayload struct {
	Err *errors.AppError `json:"serialized-error"`
}

// EncodeError returns the data payload for err. Errors that are not already
// an AppError become SOURCE_FAILED with the error's text as message.
func EncodeError(err error) ([]byte, error) {
	appErr := errors.FromError(err)
	if appErr == nil {
		appErr = errors.Internal(nil)
	}
	return json.Marshal(errorPayload{Err: appErr})
}

// DecodeError reports whether data is a serialized error payload and, if so,
// returns the error it carries. A payload that is not a JSON object, or lacks
// ErrorKey, returns ok=false with no error.
func DecodeError(data []byte) (*errors.AppError, bool, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, false, nil
	}
	var probe map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &probe); err != nil {
		return nil, false, nil
	}
	raw, ok := probe[ErrorKey]
	if !ok {
		return nil, false, nil
	}
	var appErr errors.AppError
	if err := json.Unmarshal(raw, &appErr); err != nil {
		return nil, true, err
	}
	return &appErr, true, nil
}
