package wire

import (
	"strconv"
	"strings"
	"time"

	"github.com/kbukum/eventstream/errors"
)

// Protocol constants.
const (
	// EventConnected marks the first frame of every stream.
	EventConnected = "connected"
	// PingComment is the body of the heartbeat comment line.
	PingComment = "ping"

	FieldEvent = "event"
	FieldData  = "data"
	FieldID    = "id"
	FieldRetry = "retry"

	// HeaderLastEventID carries the resumption id on reconnect.
	HeaderLastEventID = "Last-Event-ID"
	// DefaultLastEventIDParam is the query parameter that mirrors HeaderLastEventID.
	DefaultLastEventIDParam = "lastEventId"
	// ContentType is the media type of an event stream response.
	ContentType = "text/event-stream"
)

// Frame is one dispatched event.
type Frame struct {
	// Event is the event type. Empty for plain data frames.
	Event string
	// Data is the payload. Multi-line data is joined with "\n".
	Data string
	// ID is the resumption id. Empty when the frame carries none.
	ID string
	// Retry is the reconnection delay advertised by the producer.
	Retry time.Duration
}

// AppendFrame appends the encoded form of f to dst.
// Each line of f.Data becomes its own data line, and the id line follows the data.
func AppendFrame(dst []byte, f Frame) ([]byte, error) {
	if strings.ContainsAny(f.Event, "\r\n") {
		return dst, errors.InvalidFormat(FieldEvent, "single line")
	}
	if strings.ContainsAny(f.ID, "\r\n\x00") {
		return dst, errors.InvalidFormat(FieldID, "single line without NUL")
	}
	if f.Event != "" {
		dst = appendField(dst, FieldEvent, f.Event)
	}
	if f.Retry > 0 {
		dst = appendField(dst, FieldRetry, strconv.FormatInt(f.Retry.Milliseconds(), 10))
	}
	data := f.Data
	for {
		i := strings.IndexAny(data, "\r\n")
		if i < 0 {
			dst = appendField(dst, FieldData, data)
			break
		}
		dst = appendField(dst, FieldData, data[:i])
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			i++
		}
		data = data[i+1:]
	}
	if f.ID != "" {
		dst = appendField(dst, FieldID, f.ID)
	}
	return append(dst, '\n'), nil
}

// AppendPing appends a heartbeat comment to dst.
func AppendPing(dst []byte) []byte {
	dst = append(dst, ": "...)
	dst = append(dst, PingComment...)
	return append(dst, '\n', '\n')
}

func appendField(dst []byte, field, value string) []byte {
	dst = append(dst, field...)
	if value == "" {
		dst = append(dst, ':')
	} else {
		dst = append(dst, ": "...)
		dst = append(dst, value...)
	}
	return append(dst, '\n')
}
