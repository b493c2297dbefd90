package middleware

import (
	"encoding/json"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
)

// Recovery turns a handler panic into a logged INTERNAL_ERROR response.
// Once a response has started, as with an open event stream, no status can
// be sent any more and the connection is aborted instead.
func Recovery(log *logger.Logger) Middleware {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sw := newStatusWriter(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				log.Error("handler panicked", logger.Fields(
					"panic", fmt.Sprint(v),
					"stack", string(debug.Stack()),
					"method", r.Method,
					"path", r.URL.Path,
					"started", sw.wroteHeader,
					logger.FieldRequestID, r.Header.Get(HeaderRequestID),
				))
				if sw.wroteHeader {
					panic(http.ErrAbortHandler)
				}
				appErr := errors.Internal(fmt.Errorf("panic: %v", v))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(appErr.Status())
				_ = json.NewEncoder(w).Encode(map[string]any{"error": appErr})
			}()
			next.ServeHTTP(sw, r)
		})
	}
}
