// Package wire encodes and parses the text event-stream line protocol.
//
// A frame is a block of "field: value" lines terminated by a blank line:
//
//	event: connected
//	data: {"n":1}
//	id: 42
//
// Lines starting with ":" are comments; the producer uses ": ping" as a
// heartbeat. Line endings may be LF, CRLF or a lone CR.
package wire
