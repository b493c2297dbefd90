package producer

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/wire"
)

// sliceSource serves ids 1..n and resumes strictly after lastEventID.
func sliceSource(n int) SourceFunc[int] {
	return func(_ context.Context, lastEventID string) (pipeline.Iterator[tracked.Envelope[int]], error) {
		after := 0
		if lastEventID != "" {
			v, err := strconv.Atoi(lastEventID)
			if err != nil {
				return nil, errors.InvalidInput("last_event_id", "must be numeric")
			}
			after = v
		}
		var items []int
		for i := after + 1; i <= n; i++ {
			items = append(items, i)
		}
		return tracked.Sequence(pipeline.FromSlice(items).Iter(context.Background()), strconv.Itoa), nil
	}
}

func parseBody(t *testing.T, body string) []wire.Frame {
	t.Helper()
	r := wire.NewReader(strings.NewReader(body))
	var out []wire.Frame
	for {
		f, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatal(err)
		}
		out = append(out, f)
	}
}

func emitAndEndConfig() Config {
	return Config{EmitAndEndImmediately: true, DisableHeartbeat: true}
}

func TestHandler_Headers(t *testing.T) {
	h := NewHandler(sliceSource(1), codec.JSON[int](), emitAndEndConfig(), quiet())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != wire.ContentType {
		t.Errorf("Content-Type = %q", ct)
	}
	if cc := rec.Header().Get("Cache-Control"); cc != "no-cache" {
		t.Errorf("Cache-Control = %q", cc)
	}
	if !rec.Flushed {
		t.Error("expected response to be flushed")
	}
}

func TestHandler_Resumption(t *testing.T) {
	h := NewHandler(sliceSource(5), codec.JSON[int](), emitAndEndConfig(), quiet())

	tests := []struct {
		name    string
		target  string
		header  string
		wantIDs []string
	}{
		{"fresh", "/events", "", []string{"1", "2", "3", "4", "5"}},
		{"header", "/events", "3", []string{"4", "5"}},
		{"query param", "/events?lastEventId=4", "", []string{"5"}},
		{"header wins over query", "/events?lastEventId=1", "4", []string{"5"}},
		{"caught up", "/events", "5", nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				req.Header.Set(wire.HeaderLastEventID, tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			frames := parseBody(t, rec.Body.String())
			if len(frames) == 0 || frames[0].Event != wire.EventConnected {
				t.Fatalf("expected connected first, got %+v", frames)
			}
			var ids []string
			for _, f := range frames[1:] {
				ids = append(ids, f.ID)
			}
			if strings.Join(ids, ",") != strings.Join(tc.wantIDs, ",") {
				t.Errorf("ids = %v, want %v", ids, tc.wantIDs)
			}
		})
	}
}

func TestHandler_SourceFuncError(t *testing.T) {
	h := NewHandler(sliceSource(5), codec.JSON[int](), emitAndEndConfig(), quiet())
	req := httptest.NewRequest(http.MethodGet, "/events?lastEventId=abc", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	frames := parseBody(t, rec.Body.String())
	if len(frames) != 2 || frames[0].Event != wire.EventConnected {
		t.Fatalf("expected connected + error, got %+v", frames)
	}
	appErr, ok, _ := codec.DecodeError([]byte(frames[1].Data))
	if !ok || appErr.Code != errors.ErrCodeInvalidInput {
		t.Errorf("expected INVALID_INPUT error frame, got %+v", appErr)
	}
}

func TestHandler_CustomParam(t *testing.T) {
	cfg := emitAndEndConfig()
	cfg.LastEventIDParam = "cursor"
	h := NewHandler(sliceSource(3), codec.JSON[int](), cfg, quiet())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/events?cursor=2&lastEventId=0", nil))
	frames := parseBody(t, rec.Body.String())
	if len(frames) != 2 || frames[1].ID != "3" {
		t.Errorf("expected resume after 2, got %+v", frames)
	}
}

func TestHandler_Gin(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/events", NewHandler(sliceSource(2), codec.JSON[int](), emitAndEndConfig(), quiet()).Gin())

	srv := httptest.NewServer(router)
	defer srv.Close()

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/events", nil)
	req.Header.Set(wire.HeaderLastEventID, "1")
	resp, err := srv.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	frames := parseBody(t, string(body))
	if len(frames) != 2 || frames[1].ID != "2" || frames[1].Data != "2" {
		t.Errorf("unexpected frames %+v", frames)
	}
}

func TestHandler_ClientDisconnect(t *testing.T) {
	block := func(ctx context.Context, _ string) (pipeline.Iterator[tracked.Envelope[int]], error) {
		return &scriptedIter{block: true}, nil
	}
	returned := make(chan struct{})
	h := NewHandler(block, codec.JSON[int](), Config{DisableHeartbeat: true}, quiet())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeHTTP(w, r)
		close(returned)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	first, err := wire.NewReader(resp.Body).Next()
	if err != nil || first.Event != wire.EventConnected {
		t.Fatalf("expected connected frame, got %+v %v", first, err)
	}
	resp.Body.Close()

	select {
	case <-returned:
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return after the client went away")
	}
}

func TestHTTPSink_CloseIdempotent(t *testing.T) {
	sink, err := NewHTTPSink(httptest.NewRecorder(), httptest.NewRequest("GET", "/events", http.NoBody))
	if err != nil {
		t.Fatal(err)
	}
	if err := sink.Write([]byte("data: 1\n\n")); err != nil {
		t.Fatal(err)
	}
	_ = sink.Close()
	_ = sink.Close()
	select {
	case <-sink.Done():
	default:
		t.Error("expected Done to be closed")
	}
	err = sink.Write([]byte("data: 2\n\n"))
	if appErr, ok := errors.AsAppError(err); !ok || appErr.Code != errors.ErrCodeStreamClosed {
		t.Errorf("expected STREAM_CLOSED after close, got %v", err)
	}
}

func TestHTTPSink_DoneWhenClientLeaves(t *testing.T) {
	ctx, leave := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/events", http.NoBody).WithContext(ctx)
	sink, err := NewHTTPSink(httptest.NewRecorder(), req)
	if err != nil {
		t.Fatal(err)
	}

	src := &scriptedIter{block: true}
	done := make(chan error, 1)
	go func() {
		done <- Stream(context.Background(), src, sink, codec.JSON[int](), WithHeartbeat(0), quiet())
	}()
	leave()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("expected nil when the client leaves, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stream did not notice the client leaving")
	}
	if src.closed.Load() != 1 {
		t.Error("expected source released")
	}
}

// plainWriter cannot flush and counts WriteHeader calls.
type plainWriter struct {
	header  http.Header
	body    strings.Builder
	status  int
	headers int
}

func (w *plainWriter) Header() http.Header { return w.header }

func (w *plainWriter) Write(p []byte) (int, error) {
	if w.headers == 0 {
		w.WriteHeader(http.StatusOK)
	}
	return w.body.Write(p)
}

func (w *plainWriter) WriteHeader(code int) {
	w.headers++
	if w.headers == 1 {
		w.status = code
	}
}

func TestHandler_StreamingUnsupported(t *testing.T) {
	w := &plainWriter{header: http.Header{}}
	h := NewHandler(sliceSource(3), codec.JSON[int](), emitAndEndConfig(), quiet())
	h.ServeHTTP(w, httptest.NewRequest("GET", "/events", http.NoBody))

	if w.status != http.StatusInternalServerError || w.headers != 1 {
		t.Errorf("status %d after %d WriteHeader calls, want one 500", w.status, w.headers)
	}
	if ct := w.header.Get("Content-Type"); strings.HasPrefix(ct, wire.ContentType) {
		t.Errorf("error response sent as %q", ct)
	}
	if strings.Contains(w.body.String(), "event:") {
		t.Errorf("stream frames written to an error response: %q", w.body.String())
	}

	if _, err := NewHTTPSink(w, httptest.NewRequest("GET", "/events", http.NoBody)); err == nil {
		t.Error("expected NewHTTPSink to refuse a writer that cannot flush")
	}
}

func TestLastEventID(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		param  string
		want   string
	}{
		{"none", "/e", "", "", ""},
		{"header", "/e", "9", "", "9"},
		{"default param", "/e?lastEventId=4", "", "", "4"},
		{"custom param", "/e?after=4", "", "after", "4"},
		{"custom param ignores default", "/e?lastEventId=4", "", "after", ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, tc.target, nil)
			if tc.header != "" {
				r.Header.Set(wire.HeaderLastEventID, tc.header)
			}
			if got := LastEventID(r, tc.param); got != tc.want {
				t.Errorf("LastEventID() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.HeartbeatInterval != DefaultHeartbeat || cfg.DrainTimeout != DefaultDrainTimeout {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.LastEventIDParam != wire.DefaultLastEventIDParam {
		t.Errorf("unexpected param %q", cfg.LastEventIDParam)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	bad := Config{HeartbeatInterval: -time.Second, LastEventIDParam: "a&b"}
	if err := bad.Validate(); err == nil {
		t.Error("expected validation error")
	}
}

func TestWithConfig(t *testing.T) {
	o := defaultOptions()
	WithConfig(Config{HeartbeatInterval: time.Second, DisableHeartbeat: true, ReconnectDelay: time.Minute, EmitAndEndImmediately: true})(&o)
	if o.heartbeat != 0 || o.reconnectDelay != time.Minute || !o.emitAndEnd || o.drainTimeout != DefaultDrainTimeout {
		t.Errorf("unexpected options %+v", o)
	}
}
