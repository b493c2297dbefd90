package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/kbukum/eventstream/logger"
)

// probePaths are polled by orchestrators and not worth a log line each.
var probePaths = map[string]bool{
	"/health": true,
	"/alive":  true,
	"/ready":  true,
}

// RequestLogger writes one line per request when the handler returns. For
// an event stream that is when the stream ends, so the line also carries
// the bytes sent and the Last-Event-ID the client resumed from.
func RequestLogger(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if probePaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := newStatusWriter(w)
			next.ServeHTTP(sw, r)

			fields := logger.Fields(
				"method", r.Method,
				"path", r.URL.Path,
				"status", sw.status,
				logger.FieldDuration, time.Since(start).Milliseconds(),
			)
			if id := r.Header.Get(HeaderRequestID); id != "" {
				fields[logger.FieldRequestID] = id
			}
			if isEventStream(sw.Header()) {
				fields["stream"] = true
				fields["bytes"] = sw.bytes
				if id := r.Header.Get("Last-Event-ID"); id != "" {
					fields[logger.FieldLastEventID] = id
				}
			}

			switch {
			case sw.status >= http.StatusInternalServerError:
				log.Error("request finished", fields)
			case sw.status >= http.StatusBadRequest:
				log.Warn("request finished", fields)
			default:
				log.Debug("request finished", fields)
			}
		})
	}
}

func isEventStream(h http.Header) bool {
	return strings.HasPrefix(h.Get("Content-Type"), "text/event-stream")
}
