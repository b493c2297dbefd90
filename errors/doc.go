// Package errors provides the structured error type shared by both halves of
// an event stream.
//
// An AppError is what a producer puts on the wire when its source fails and
// what a consumer hands back in a serialized-error item. Its JSON form (code,
// message, retryable, details) is the serialized form of an error; the Cause
// and HTTPStatus fields never leave the process.
//
// Each code carries a default HTTP status and a retryable flag; see
// HTTPStatusFor and AppError.Status.
package errors
