package errors

import "net/http"

// ErrorCode is the machine-readable part of an AppError. It is what a
// consumer branches on after reading a serialized error.
type ErrorCode string

const (
	ErrCodeServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
	ErrCodeConnectionFailed   ErrorCode = "CONNECTION_FAILED"
	ErrCodeTimeout            ErrorCode = "TIMEOUT"

	// ErrCodeSourceFailed is a producer's upstream sequence failing.
	ErrCodeSourceFailed        ErrorCode = "SOURCE_FAILED"
	ErrCodeSerializationFailed ErrorCode = "SERIALIZATION_FAILED"
	// ErrCodeMalformedFrame is a frame whose payload could not be decoded.
	ErrCodeMalformedFrame ErrorCode = "MALFORMED_FRAME"
	ErrCodeStreamClosed   ErrorCode = "STREAM_CLOSED"

	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeInvalidFormat ErrorCode = "INVALID_FORMAT"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"

	ErrCodeInternal ErrorCode = "INTERNAL_ERROR"
	// ErrCodeStorageError is an event log backend failing.
	ErrCodeStorageError ErrorCode = "STORAGE_ERROR"
)

type codeInfo struct {
	status    int
	retryable bool
}

var codes = map[ErrorCode]codeInfo{
	ErrCodeServiceUnavailable:  {http.StatusServiceUnavailable, true},
	ErrCodeConnectionFailed:    {http.StatusServiceUnavailable, true},
	ErrCodeTimeout:             {http.StatusGatewayTimeout, true},
	ErrCodeSourceFailed:        {http.StatusInternalServerError, false},
	ErrCodeSerializationFailed: {http.StatusInternalServerError, false},
	ErrCodeMalformedFrame:      {http.StatusBadGateway, false},
	ErrCodeStreamClosed:        {http.StatusGone, false},
	ErrCodeInvalidInput:        {http.StatusBadRequest, false},
	ErrCodeInvalidFormat:       {http.StatusBadRequest, false},
	ErrCodeNotFound:            {http.StatusNotFound, false},
	ErrCodeInternal:            {http.StatusInternalServerError, false},
	ErrCodeStorageError:        {http.StatusInternalServerError, true},
}

// IsRetryableCode reports whether retrying after code can succeed. Unknown
// codes, such as ones defined by a newer producer, are not retryable.
func IsRetryableCode(code ErrorCode) bool {
	return codes[code].retryable
}

// HTTPStatusFor returns the status a server answers with for code, 500 for
// unknown codes.
func HTTPStatusFor(code ErrorCode) int {
	if info, ok := codes[code]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}
