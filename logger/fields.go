package logger

// Field keys shared across packages.
const (
	FieldComponent   = "component"
	FieldRequestID   = "request_id"
	FieldStreamID    = "stream_id"
	FieldSourceID    = "source_id"
	FieldEventID     = "event_id"
	FieldLastEventID = "last_event_id"
	FieldAttempt     = "attempt"
	FieldURL         = "url"
	FieldError       = "error"
	FieldDuration    = "duration_ms"
)

// Fields pairs up alternating keys and values. Non-string keys and a
// trailing key without a value are dropped.
//
//	log.Debug("frame written", logger.Fields(logger.FieldEventID, id))
func Fields(kvs ...any) map[string]any {
	m := make(map[string]any, len(kvs)/2)
	for i := 0; i+1 < len(kvs); i += 2 {
		if key, ok := kvs[i].(string); ok {
			m[key] = kvs[i+1]
		}
	}
	return m
}

// ErrorFields tags err with the stream it happened on.
func ErrorFields(streamID string, err error) map[string]any {
	return MergeWithError(Fields(FieldStreamID, streamID), err)
}

// MergeWithError sets the error field on fields, allocating if nil.
func MergeWithError(fields map[string]any, err error) map[string]any {
	if fields == nil {
		fields = make(map[string]any, 1)
	}
	fields[FieldError] = err.Error()
	return fields
}
