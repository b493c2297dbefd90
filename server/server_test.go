package server

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/logger"
)

func testServer(t *testing.T, checker func(context.Context) []component.Health) *Server {
	t.Helper()
	cfg := Config{Host: "127.0.0.1"}
	cfg.ApplyDefaults()
	cfg.Port = 0
	s := New(cfg, logger.Nop())
	s.ApplyDefaults("eventstreamd", "1.2.3", checker)
	return s
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.Port != 8080 || cfg.ShutdownTimeout != 5*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}

	cfg.Port = 70000
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for port out of range")
	}
}

func TestHealthEndpoint(t *testing.T) {
	tests := []struct {
		name       string
		health     []component.Health
		wantCode   int
		wantStatus string
	}{
		{"healthy", []component.Health{{Name: "eventlog", Status: component.StatusHealthy}}, http.StatusOK, "healthy"},
		{"degraded", []component.Health{{Name: "eventlog", Status: component.StatusDegraded}}, http.StatusOK, "degraded"},
		{"unhealthy", []component.Health{
			{Name: "http-server", Status: component.StatusHealthy},
			{Name: "eventlog", Status: component.StatusUnhealthy, Message: "ping failed"},
		}, http.StatusServiceUnavailable, "unhealthy"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s := testServer(t, func(context.Context) []component.Health { return tc.health })
			rr := httptest.NewRecorder()
			s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/health", http.NoBody))

			if rr.Code != tc.wantCode {
				t.Fatalf("expected %d, got %d", tc.wantCode, rr.Code)
			}
			var body struct {
				Status     string             `json:"status"`
				Service    string             `json:"service"`
				Components []component.Health `json:"components"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid JSON: %v", err)
			}
			if body.Status != tc.wantStatus {
				t.Errorf("expected status %q, got %q", tc.wantStatus, body.Status)
			}
			if body.Service != "eventstreamd" {
				t.Errorf("expected service eventstreamd, got %q", body.Service)
			}
			if len(body.Components) != len(tc.health) {
				t.Errorf("expected %d components, got %d", len(tc.health), len(body.Components))
			}
		})
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := testServer(t, func(context.Context) []component.Health {
		return []component.Health{{Name: "eventlog", Status: component.StatusUnhealthy}}
	})
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/ready", http.NoBody))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rr.Code)
	}
	var body struct {
		Status    string   `json:"status"`
		WaitingOn []string `json:"waiting_on"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Status != "not_ready" || len(body.WaitingOn) != 1 || body.WaitingOn[0] != "eventlog" {
		t.Errorf("unexpected readiness body %+v", body)
	}

	rr = httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/alive", http.NoBody))
	if rr.Code != http.StatusOK {
		t.Errorf("liveness should not depend on components, got %d", rr.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := testServer(t, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/info", http.NoBody))

	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body["version"] != "1.2.3" {
		t.Errorf("expected version 1.2.3, got %v", body["version"])
	}
	build, ok := body["build"].(map[string]any)
	if !ok || build["go_version"] == "" {
		t.Errorf("expected build info, got %v", body["build"])
	}
}

func TestNoRoute(t *testing.T) {
	s := testServer(t, nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/nope", http.NoBody))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	var body struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if body.Error.Code != "NOT_FOUND" {
		t.Errorf("expected NOT_FOUND, got %q", body.Error.Code)
	}
	if rr.Header().Get("X-Request-Id") == "" {
		t.Error("expected request id header from middleware")
	}
}

func TestHandleMountsNextToGin(t *testing.T) {
	s := testServer(t, nil)
	s.Handle("/raw/", http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, httptest.NewRequest("GET", "/raw/x", http.NoBody))
	if rr.Code != http.StatusTeapot {
		t.Fatalf("expected 418, got %d", rr.Code)
	}
}

func TestStopEndsOpenStreams(t *testing.T) {
	s := testServer(t, nil)
	ended := make(chan struct{})
	s.GinEngine().GET("/events", func(c *gin.Context) {
		c.Header("Content-Type", "text/event-stream")
		c.Status(http.StatusOK)
		_, _ = c.Writer.Write([]byte(": ping\n\n"))
		c.Writer.Flush()
		<-c.Request.Context().Done()
		close(ended)
	})

	sc := NewComponent(s)
	if h := sc.Health(context.Background()); h.Status != component.StatusUnhealthy {
		t.Fatalf("expected unhealthy before start, got %s", h.Status)
	}
	if err := sc.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if h := sc.Health(context.Background()); h.Status != component.StatusHealthy {
		t.Fatalf("expected healthy after start, got %s", h.Status)
	}

	resp, err := http.Get("http://" + s.Addr() + "/events")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	line, err := bufio.NewReader(resp.Body).ReadString('\n')
	if err != nil || line != ": ping\n" {
		t.Fatalf("expected ping line, got %q (%v)", line, err)
	}

	start := time.Now()
	if err := sc.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	select {
	case <-ended:
	case <-time.After(time.Second):
		t.Fatal("stream handler did not observe shutdown")
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("shutdown took %v", elapsed)
	}
}

func TestRoutesOrder(t *testing.T) {
	s := testServer(t, nil)
	s.GinEngine().GET("/events", func(c *gin.Context) {})

	routes := NewComponent(s).Routes()
	if len(routes) == 0 || routes[0].Path != "/events" {
		t.Fatalf("expected /events first, got %+v", routes)
	}
	if last := routes[len(routes)-1]; !systemPaths[last.Path] {
		t.Errorf("expected a system route last, got %s", last.Path)
	}
}

func TestHandlerName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"github.com/kbukum/eventstream/server/endpoint.Health.func1", "Health"},
		{"github.com/kbukum/eventstream/producer.(*Handler[...]).Gin.func1", "Handler[...].Gin"},
		{"main.(*api).list-fm", "api.list"},
	}
	for _, tc := range tests {
		if got := handlerName(tc.in); got != tc.want {
			t.Errorf("handlerName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
