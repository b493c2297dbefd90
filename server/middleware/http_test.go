package middleware_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/server/middleware"
)

func jsonLogger(buf *bytes.Buffer) *logger.Logger {
	return logger.NewWithWriter(&logger.Config{Level: "debug", Format: "json"}, "test", buf)
}

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("log line is not JSON: %v (%q)", err, buf.String())
	}
	return entry
}

func TestRecovery(t *testing.T) {
	tests := []struct {
		name     string
		handler  http.HandlerFunc
		wantCode int
		wantBody string
	}{
		{
			name: "no panic",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("ok"))
			},
			wantCode: http.StatusOK,
			wantBody: "ok",
		},
		{
			name:     "panic before writing",
			handler:  func(http.ResponseWriter, *http.Request) { panic("nil map") },
			wantCode: http.StatusInternalServerError,
			wantBody: `"code":"INTERNAL_ERROR"`,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			rr := httptest.NewRecorder()
			middleware.Recovery(jsonLogger(&buf))(tc.handler).ServeHTTP(rr, httptest.NewRequest("GET", "/events", http.NoBody))

			if rr.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tc.wantCode)
			}
			if !strings.Contains(rr.Body.String(), tc.wantBody) {
				t.Errorf("body %q does not contain %q", rr.Body.String(), tc.wantBody)
			}
			if strings.Contains(rr.Body.String(), "nil map") {
				t.Error("panic value leaked into the response")
			}
			if tc.wantCode == http.StatusInternalServerError && lastLine(t, &buf)["panic"] != "nil map" {
				t.Errorf("expected the panic to be logged, got %q", buf.String())
			}
		})
	}
}

func TestRecovery_AbortsStartedStream(t *testing.T) {
	var buf bytes.Buffer
	handler := middleware.Recovery(jsonLogger(&buf))(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte("event: connected\ndata:\n\n"))
		panic("source exploded")
	}))

	defer func() {
		if r := recover(); r != http.ErrAbortHandler {
			t.Fatalf("expected http.ErrAbortHandler, got %v", r)
		}
		if lastLine(t, &buf)["started"] != true {
			t.Errorf("expected started=true in %q", buf.String())
		}
	}()
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/events", http.NoBody))
}

func TestRequestID(t *testing.T) {
	tests := []struct {
		name     string
		incoming string
	}{
		{"generated", ""},
		{"reused", "req-from-proxy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			handler := middleware.RequestID()(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
				seen = middleware.RequestIDFrom(r.Context())
				if r.Header.Get(middleware.HeaderRequestID) != seen {
					t.Error("request header and context disagree")
				}
			}))
			req := httptest.NewRequest("GET", "/events", http.NoBody)
			if tc.incoming != "" {
				req.Header.Set(middleware.HeaderRequestID, tc.incoming)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			got := rr.Header().Get(middleware.HeaderRequestID)
			if got == "" || got != seen {
				t.Errorf("response id %q, handler saw %q", got, seen)
			}
			if tc.incoming != "" && got != tc.incoming {
				t.Errorf("expected %q to be reused, got %q", tc.incoming, got)
			}
		})
	}
	if middleware.RequestIDFrom(httptest.NewRequest("GET", "/", http.NoBody).Context()) != "" {
		t.Error("expected empty id outside the middleware")
	}
}

func TestCORS(t *testing.T) {
	cfg := &middleware.CORSConfig{
		AllowedOrigins:   []string{"https://app.example.com", "https://*.example.org"},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Last-Event-ID"},
		AllowCredentials: true,
		MaxAge:           10 * time.Minute,
	}
	tests := []struct {
		name        string
		method      string
		origin      string
		preflight   bool
		wantOrigin  string
		wantCode    int
		wantHeaders string
	}{
		{"exact origin", "GET", "https://app.example.com", false, "https://app.example.com", http.StatusOK, ""},
		{"wildcard subdomain", "GET", "https://eu.example.org", false, "https://eu.example.org", http.StatusOK, ""},
		{"bare wildcard host", "GET", "https://.example.org", false, "", http.StatusOK, ""},
		{"other scheme", "GET", "http://eu.example.org", false, "", http.StatusOK, ""},
		{"disallowed", "GET", "https://evil.com", false, "", http.StatusOK, ""},
		{"no origin", "GET", "", false, "", http.StatusOK, ""},
		{"preflight", "OPTIONS", "https://app.example.com", true, "https://app.example.com", http.StatusNoContent, "Accept, Last-Event-ID"},
		{"plain options", "OPTIONS", "https://app.example.com", false, "https://app.example.com", http.StatusOK, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			handler := middleware.CORS(cfg)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			}))
			req := httptest.NewRequest(tc.method, "/events", http.NoBody)
			if tc.origin != "" {
				req.Header.Set("Origin", tc.origin)
			}
			if tc.preflight {
				req.Header.Set("Access-Control-Request-Method", "GET")
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tc.wantCode {
				t.Errorf("code = %d, want %d", rr.Code, tc.wantCode)
			}
			h := rr.Header()
			if got := h.Get("Access-Control-Allow-Origin"); got != tc.wantOrigin {
				t.Errorf("allow origin = %q, want %q", got, tc.wantOrigin)
			}
			if got := h.Get("Access-Control-Allow-Headers"); got != tc.wantHeaders {
				t.Errorf("allow headers = %q, want %q", got, tc.wantHeaders)
			}
			if tc.wantOrigin != "" && h.Get("Access-Control-Allow-Credentials") != "true" {
				t.Error("expected credentials to be allowed")
			}
			if tc.preflight && h.Get("Access-Control-Max-Age") != "600" {
				t.Errorf("max age = %q", h.Get("Access-Control-Max-Age"))
			}
			if tc.origin != "" && h.Get("Vary") != "Origin" {
				t.Errorf("expected Vary: Origin, got %q", h.Get("Vary"))
			}
		})
	}
}

func TestCORS_AnyOrigin(t *testing.T) {
	handler := middleware.CORS(&middleware.CORSConfig{AllowedOrigins: []string{"*"}})(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest("GET", "/events", http.NoBody)
	req.Header.Set("Origin", "https://anywhere.test")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://anywhere.test" {
		t.Errorf("expected the origin echoed back, got %q", got)
	}
}

func TestRequestLogger(t *testing.T) {
	tests := []struct {
		name       string
		path       string
		lastID     string
		handler    http.HandlerFunc
		wantLevel  string
		wantFields map[string]any
	}{
		{
			name: "client error",
			path: "/missing",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			wantLevel:  "warn",
			wantFields: map[string]any{"status": float64(404), "request_id": "req-1"},
		},
		{
			name: "server error",
			path: "/events",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			wantLevel:  "error",
			wantFields: map[string]any{"status": float64(503)},
		},
		{
			name:   "resumed stream",
			path:   "/events",
			lastID: "41",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "text/event-stream")
				_, _ = w.Write([]byte(": ping\n\n"))
			},
			wantLevel: "debug",
			wantFields: map[string]any{
				"status":                float64(200),
				"stream":                true,
				"bytes":                 float64(len(": ping\n\n")),
				logger.FieldLastEventID: "41",
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var buf bytes.Buffer
			req := httptest.NewRequest("GET", tc.path, http.NoBody)
			req.Header.Set(middleware.HeaderRequestID, "req-1")
			if tc.lastID != "" {
				req.Header.Set("Last-Event-ID", tc.lastID)
			}
			middleware.RequestLogger(jsonLogger(&buf))(tc.handler).ServeHTTP(httptest.NewRecorder(), req)

			entry := lastLine(t, &buf)
			if entry["level"] != tc.wantLevel {
				t.Errorf("level = %v, want %s", entry["level"], tc.wantLevel)
			}
			for k, v := range tc.wantFields {
				if entry[k] != v {
					t.Errorf("%s = %v, want %v", k, entry[k], v)
				}
			}
		})
	}
}

func TestRequestLogger_SkipsProbes(t *testing.T) {
	for _, path := range []string{"/health", "/alive", "/ready"} {
		var buf bytes.Buffer
		called := false
		handler := middleware.RequestLogger(jsonLogger(&buf))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			called = true
		}))
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, http.NoBody))
		if buf.Len() != 0 || !called {
			t.Errorf("%s: logged %q, handler called %v", path, buf.String(), called)
		}
	}
}

func TestChain_OutermostFirst(t *testing.T) {
	var journal []string
	tag := func(name string) middleware.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				journal = append(journal, name+">")
				next.ServeHTTP(w, r)
				journal = append(journal, "<"+name)
			})
		}
	}
	handler := middleware.Chain(tag("recovery"), tag("logger"))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		journal = append(journal, "handler")
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/", http.NoBody))

	if got := strings.Join(journal, " "); got != "recovery> logger> handler <logger <recovery" {
		t.Errorf("journal = %s", got)
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func TestStatusWriter_FlushReachesConnection(t *testing.T) {
	fr := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	handler := middleware.Chain(
		middleware.Recovery(logger.Nop()),
		middleware.RequestLogger(logger.Nop()),
	)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.(http.Flusher).Flush()
		if err := http.NewResponseController(w).Flush(); err != nil {
			t.Errorf("flush through middleware: %v", err)
		}
	}))

	handler.ServeHTTP(fr, httptest.NewRequest("GET", "/events", http.NoBody))

	if fr.flushes != 2 {
		t.Errorf("expected 2 flushes to reach the writer, got %d", fr.flushes)
	}
}
