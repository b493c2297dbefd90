package consumer

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/producer"
	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/wire"
)

func fastConfig() Config {
	return Config{
		ReconnectDelay: time.Millisecond,
		Backoff: resilience.RetryConfig{
			InitialBackoff: time.Millisecond,
			MaxBackoff:     5 * time.Millisecond,
		},
	}
}

func httpSubscribe(t *testing.T, url string, conn *HTTPConnector, opts ...Option) *Subscription[int] {
	t.Helper()
	opts = append([]Option{WithLogger(logger.Nop())}, opts...)
	sub := Subscribe(context.Background(), StaticURL(url), conn, codec.JSON[int](), opts...)
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

// intLog is an append-only list served with producer.Handler.
type intLog struct {
	mu    sync.Mutex
	items []int
}

func (l *intLog) append(v int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, v)
}

func (l *intLog) source(_ context.Context, lastEventID string) (pipeline.Iterator[tracked.Envelope[int]], error) {
	after := 0
	if lastEventID != "" {
		v, err := strconv.Atoi(lastEventID)
		if err != nil {
			return nil, errors.InvalidInput("last_event_id", "must be numeric")
		}
		after = v
	}
	l.mu.Lock()
	var pending []int
	if after < len(l.items) {
		pending = append(pending, l.items[after:]...)
	}
	l.mu.Unlock()
	return tracked.Sequence(pipeline.FromSlice(pending).Iter(context.Background()), strconv.Itoa), nil
}

func TestHTTP_EmitAndEndResume(t *testing.T) {
	log := &intLog{}
	for i := 1; i <= 5; i++ {
		log.append(i)
	}
	h := producer.NewHandler(log.source, codec.JSON[int](), producer.Config{
		EmitAndEndImmediately: true,
		DisableHeartbeat:      true,
		ReconnectDelay:        5 * time.Millisecond,
	}, producer.WithLogger(logger.Nop()))
	srv := httptest.NewServer(h)
	defer srv.Close()

	conn := NewHTTPConnector(fastConfig(), srv.Client())
	sub := httpSubscribe(t, srv.URL, conn)

	var data []int
	var resumes []string
	for len(data) < 6 {
		item := next(t, sub)
		switch item.Kind {
		case ItemConnecting:
			if item.Connecting.Attempt > 1 {
				resumes = append(resumes, item.Connecting.LastEventID)
			}
		case ItemData:
			data = append(data, item.Data)
			if item.Data == 5 {
				log.append(6)
			}
		default:
			t.Fatalf("unexpected item %v %+v", item.Kind, item)
		}
	}

	for i, v := range data {
		if v != i+1 {
			t.Fatalf("data = %v, want 1..6 exactly once", data)
		}
	}
	if len(resumes) == 0 {
		t.Fatal("expected at least one reconnect")
	}
	for _, id := range resumes {
		if id != "5" {
			t.Errorf("reconnect resumed after %q, want 5", id)
		}
	}

	_ = sub.Close()
	if conn.Live() != 0 {
		t.Errorf("expected no live readers, got %d", conn.Live())
	}
}

func TestHTTP_HeartbeatsInvisible(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", wire.ContentType)
		flusher := w.(http.Flusher)
		write := func(s string) {
			_, _ = fmt.Fprint(w, s)
			flusher.Flush()
		}
		write("event: connected\ndata:\n\n")
		write(": ping\n\n: ping\n\n")
		// Two frames in a single write.
		write("data: 1\nid: 1\n\ndata: 2\nid: 2\n\n")
		write(": ping\r\n\r\n")
		write("data: 3\r\nid: 3\r\n\r\n")
		<-r.Context().Done()
	}))
	defer srv.Close()

	conn := NewHTTPConnector(fastConfig(), srv.Client())
	sub := httpSubscribe(t, srv.URL, conn)

	expectConnecting(t, sub)
	for want := 1; want <= 3; want++ {
		expectData(t, sub, want)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if item, ok, err := sub.Next(ctx); ok || err == nil {
		t.Errorf("expected nothing else to surface, got %v %+v", item.Kind, item)
	}

	_ = sub.Close()
	if conn.Live() != 0 {
		t.Errorf("expected no live readers, got %d", conn.Live())
	}
}

func TestHTTP_HalfParsedFrameNotDuplicated(t *testing.T) {
	var conns atomic.Int32
	var resumedAfter atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", wire.ContentType)
		flusher := w.(http.Flusher)
		switch conns.Add(1) {
		case 1:
			// The second frame is cut off before its terminating blank line.
			_, _ = fmt.Fprint(w, "event: connected\ndata:\n\ndata: 1\nid: 1\n\ndata: 2\nid: 2\n")
			flusher.Flush()
		default:
			resumedAfter.Store(r.Header.Get(wire.HeaderLastEventID) + "|" + r.URL.Query().Get(wire.DefaultLastEventIDParam))
			_, _ = fmt.Fprint(w, "event: connected\ndata:\n\ndata: 2\nid: 2\n\ndata: 3\nid: 3\n\n")
			flusher.Flush()
			<-r.Context().Done()
		}
	}))
	defer srv.Close()

	conn := NewHTTPConnector(fastConfig(), srv.Client())
	sub := httpSubscribe(t, srv.URL, conn)

	var data []int
	for len(data) < 3 {
		item := next(t, sub)
		if item.Kind == ItemData {
			data = append(data, item.Data)
		}
	}
	if data[0] != 1 || data[1] != 2 || data[2] != 3 {
		t.Errorf("data = %v, want [1 2 3]", data)
	}
	if got, _ := resumedAfter.Load().(string); got != "1|1" {
		t.Errorf("resumed with header|param %q, want 1|1", got)
	}
	_ = sub.Close()
}

func TestHTTP_NoListenerLeak(t *testing.T) {
	var served atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := served.Add(1)
		w.Header().Set("Content-Type", wire.ContentType)
		_, _ = fmt.Fprintf(w, "event: connected\ndata:\n\ndata: %d\nid: %d\n\n", n, n)
	}))
	defer srv.Close()

	conn := NewHTTPConnector(fastConfig(), srv.Client())
	sub := httpSubscribe(t, srv.URL, conn)

	const reconnects = 10
	attempts := 0
	for attempts <= reconnects {
		if item := next(t, sub); item.Kind == ItemConnecting {
			attempts++
		}
	}
	if live := conn.Live(); live > 1 {
		t.Errorf("expected at most the current reader alive, got %d", live)
	}

	_ = sub.Close()
	if conn.Live() != 0 {
		t.Errorf("expected no live readers after close, got %d", conn.Live())
	}
}

func TestHTTP_ErrorFrameRoundTrip(t *testing.T) {
	want := errors.InvalidInput("cursor", "expired")
	failing := func(context.Context, string) (pipeline.Iterator[tracked.Envelope[int]], error) {
		items := pipeline.FromSlice([]tracked.Envelope[int]{tracked.New("1", 1)})
		broken := pipeline.FromFunc(func(context.Context) pipeline.Iterator[tracked.Envelope[int]] {
			return &errIter{err: want}
		})
		return pipeline.Concat(items, broken).Iter(context.Background()), nil
	}
	h := producer.NewHandler(failing, codec.JSON[int](), producer.Config{DisableHeartbeat: true}, producer.WithLogger(logger.Nop()))
	srv := httptest.NewServer(h)
	defer srv.Close()

	sub := httpSubscribe(t, srv.URL, NewHTTPConnector(fastConfig(), srv.Client()))
	expectConnecting(t, sub)
	expectData(t, sub, 1)

	item := next(t, sub)
	if item.Kind != ItemSerializedError {
		t.Fatalf("expected serialized error, got %v %+v", item.Kind, item)
	}
	if !errors.Equal(item.Err, want) {
		t.Errorf("got %+v, want %+v", item.Err, want)
	}
	if item.Err.Retryable {
		t.Error("INVALID_INPUT should not be retryable")
	}
}

type errIter struct{ err error }

func (it *errIter) Next(context.Context) (tracked.Envelope[int], bool, error) {
	return tracked.Envelope[int]{}, false, it.err
}

func (it *errIter) Close() error { return nil }

func TestHTTPConnector_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		detail  string
	}{
		{
			name: "status",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "down", http.StatusServiceUnavailable)
			},
			detail: "status",
		},
		{
			name: "content type",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				_, _ = w.Write([]byte("{}"))
			},
			detail: "content_type",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(tc.handler)
			defer srv.Close()

			conn := NewHTTPConnector(fastConfig(), srv.Client())
			src, err := conn.Open(context.Background(), Request{URL: srv.URL, Attempt: 1, Consecutive: 1})
			if err == nil {
				_ = src.Close()
				t.Fatal("expected an error")
			}
			appErr, ok := errors.AsAppError(err)
			if !ok || appErr.Code != errors.ErrCodeConnectionFailed || !appErr.Retryable {
				t.Fatalf("expected retryable CONNECTION_FAILED, got %v", err)
			}
			if _, ok := appErr.Details[tc.detail]; !ok {
				t.Errorf("expected %s detail, got %v", tc.detail, appErr.Details)
			}
			if conn.Live() != 0 {
				t.Errorf("expected no reader, got %d", conn.Live())
			}
		})
	}
}

func TestHTTPConnector_RequestHeaders(t *testing.T) {
	got := make(chan *http.Request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r
		w.Header().Set("Content-Type", wire.ContentType+"; charset=utf-8")
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	cfg := fastConfig()
	cfg.LastEventIDParam = "cursor"
	cfg.Headers = map[string]string{"Authorization": "Bearer t"}
	conn := NewHTTPConnector(cfg, srv.Client())

	src, err := conn.Open(context.Background(), Request{URL: srv.URL + "/events?topic=a", LastEventID: "42", Attempt: 1, Consecutive: 1})
	if err != nil {
		t.Fatal(err)
	}
	r := <-got
	if r.Header.Get(wire.HeaderLastEventID) != "42" || r.URL.Query().Get("cursor") != "42" || r.URL.Query().Get("topic") != "a" {
		t.Errorf("unexpected request %v %v", r.Header, r.URL)
	}
	if r.Header.Get("Accept") != wire.ContentType || r.Header.Get("Authorization") != "Bearer t" {
		t.Errorf("unexpected headers %v", r.Header)
	}

	sig := <-src.Signals()
	if sig.Kind != SignalOpen {
		t.Errorf("expected open signal, got %v", sig.Kind)
	}
	if conn.Live() != 1 {
		t.Errorf("expected one reader, got %d", conn.Live())
	}
	_ = src.Close()
	_ = src.Close()
	if conn.Live() != 0 {
		t.Errorf("expected reader gone after close, got %d", conn.Live())
	}
}

func TestHTTPConnector_OpenCancelledDuringBackoff(t *testing.T) {
	conn := NewHTTPConnector(Config{Backoff: resilience.RetryConfig{InitialBackoff: time.Hour, MaxBackoff: time.Hour}}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := conn.Open(ctx, Request{URL: "http://127.0.0.1:1", Attempt: 3, Consecutive: 3})
	if err != context.DeadlineExceeded {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

func TestHTTPConnector_Delay(t *testing.T) {
	conn := NewHTTPConnector(Config{
		ReconnectDelay: 50 * time.Millisecond,
		Backoff: resilience.RetryConfig{
			InitialBackoff: 100 * time.Millisecond,
			MaxBackoff:     time.Second,
			BackoffFactor:  2,
			Jitter:         0.0001,
		},
	}, nil)

	tests := []struct {
		name     string
		req      Request
		min, max time.Duration
	}{
		{"first attempt", Request{Attempt: 1, Consecutive: 1, RetryHint: time.Minute}, 0, 0},
		{"after clean end", Request{Attempt: 4, Consecutive: 1}, 50 * time.Millisecond, 50 * time.Millisecond},
		{"after clean end with hint", Request{Attempt: 4, Consecutive: 1, RetryHint: 3 * time.Second}, 3 * time.Second, 3 * time.Second},
		{"second failure", Request{Attempt: 2, Consecutive: 2}, 99 * time.Millisecond, 101 * time.Millisecond},
		{"third failure", Request{Attempt: 3, Consecutive: 3}, 199 * time.Millisecond, 201 * time.Millisecond},
		{"capped", Request{Attempt: 20, Consecutive: 20}, time.Second, time.Second},
		{"hint wins", Request{Attempt: 2, Consecutive: 2, RetryHint: 2 * time.Second}, 2 * time.Second, 2 * time.Second},
		{"short hint beats floor", Request{Attempt: 2, Consecutive: 1, RetryHint: 10 * time.Millisecond}, 10 * time.Millisecond, 10 * time.Millisecond},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			d := conn.Delay(tc.req)
			if d < tc.min || d > tc.max {
				t.Errorf("Delay() = %v, want [%v, %v]", d, tc.min, tc.max)
			}
		})
	}

	immediate := NewHTTPConnector(Config{ReconnectDelay: -1}, nil)
	if d := immediate.Delay(Request{Attempt: 2, Consecutive: 1}); d != 0 {
		t.Errorf("negative ReconnectDelay should reconnect immediately, got %v", d)
	}
}

func TestHTTP_IdleEmitAndEndWithDefaults(t *testing.T) {
	h := producer.NewHandler((&intLog{}).source, codec.JSON[int](), producer.Config{EmitAndEndImmediately: true},
		producer.WithLogger(logger.Nop()))
	var requests atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		h.ServeHTTP(w, r)
	}))
	defer srv.Close()

	sub := httpSubscribe(t, srv.URL, NewHTTPConnector(Config{}, srv.Client()))
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	for {
		if _, _, err := sub.Next(ctx); err != nil {
			break
		}
	}

	if n := requests.Load(); n < 1 || n > 2 {
		t.Errorf("idle stream with default configs made %d requests in 300ms", n)
	}
}

func TestConfig(t *testing.T) {
	var cfg Config
	cfg.ApplyDefaults()
	if cfg.LastEventIDParam != wire.DefaultLastEventIDParam {
		t.Errorf("unexpected param %q", cfg.LastEventIDParam)
	}
	if cfg.ReconnectDelay != defaultReconnectDelay {
		t.Errorf("ReconnectDelay = %v", cfg.ReconnectDelay)
	}
	if cfg.Backoff.InitialBackoff != defaultInitialBackoff || cfg.Backoff.MaxBackoff != defaultMaxBackoff {
		t.Errorf("unexpected backoff %+v", cfg.Backoff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate: %v", err)
	}

	cfg.LastEventIDParam = "a=b"
	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error")
	}
}
