package errors

import (
	stderrors "errors"
	"fmt"
)

// IsAppError checks if an error is an AppError.
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// AsAppError converts an error to an AppError if possible.
func AsAppError(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// FromError returns err as an AppError, wrapping anything else as SOURCE_FAILED.
// Returns nil for a nil error.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}
	if appErr, ok := AsAppError(err); ok {
		return appErr
	}
	return SourceFailed(err)
}

// Equal reports whether two errors have the same serialized form.
// Cause and HTTPStatus are not part of that form and are ignored.
func Equal(a, b *AppError) bool {
	if a == nil || b == nil {
		return a == b
	}
	if a.Code != b.Code || a.Message != b.Message || a.Retryable != b.Retryable {
		return false
	}
	if len(a.Details) != len(b.Details) {
		return false
	}
	for k, av := range a.Details {
		bv, ok := b.Details[k]
		if !ok || fmt.Sprint(av) != fmt.Sprint(bv) {
			return false
		}
	}
	return true
}
