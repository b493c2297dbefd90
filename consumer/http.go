package consumer

import (
	"context"
	"io"
	"mime"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/wire"
)

// HTTPConnector opens event streams with HTTP GET requests.
type HTTPConnector struct {
	client *http.Client
	cfg    Config
	log    *logger.Logger
	live   atomic.Int64
}

// NewHTTPConnector creates a connector. A nil client uses one without a
// timeout; each connection is bounded by its context instead.
func NewHTTPConnector(cfg Config, client *http.Client) *HTTPConnector {
	cfg.ApplyDefaults()
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPConnector{
		client: client,
		cfg:    cfg,
		log:    logger.WithComponent("consumer.http"),
	}
}

// Live reports how many connections still have a running reader goroutine.
func (c *HTTPConnector) Live() int {
	return int(c.live.Load())
}

// Delay returns how long Open waits before the attempt described by req.
//
// The producer's retry hint, or ReconnectDelay when there is none, is the
// wait after a connection that reached the connected frame. Further
// consecutive attempts wait for the larger of that and the exponential
// backoff. The very first attempt does not wait.
func (c *HTTPConnector) Delay(req Request) time.Duration {
	if req.Attempt <= 1 {
		return 0
	}
	base := req.RetryHint
	if base <= 0 {
		base = max(c.cfg.ReconnectDelay, 0)
	}
	if req.Consecutive <= 1 {
		return base
	}
	return max(resilience.Backoff(req.Consecutive-1, c.cfg.Backoff), base)
}

// Open waits out the backoff for req and connects. The returned source
// outlives ctx once Open has returned; close it to end the connection.
func (c *HTTPConnector) Open(ctx context.Context, req Request) (EventSource, error) {
	if err := resilience.Wait(ctx, c.Delay(req)); err != nil {
		return nil, err
	}

	target, err := c.target(req)
	if err != nil {
		return nil, err
	}

	connCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	httpReq, err := http.NewRequestWithContext(connCtx, http.MethodGet, target, nil)
	if err != nil {
		cancel()
		return nil, errors.InvalidInput("url", err.Error())
	}
	httpReq.Header.Set("Accept", wire.ContentType)
	httpReq.Header.Set("Cache-Control", "no-cache")
	if req.LastEventID != "" {
		httpReq.Header.Set(wire.HeaderLastEventID, req.LastEventID)
	}
	for k, v := range c.cfg.Headers {
		httpReq.Header.Set(k, v)
	}

	// Abort the request, but not the established stream, if ctx ends first.
	stop := context.AfterFunc(ctx, cancel)
	resp, err := c.client.Do(httpReq)
	if !stop() {
		if err == nil {
			_ = resp.Body.Close()
		}
		cancel()
		return nil, ctx.Err()
	}
	if err != nil {
		cancel()
		return nil, errors.ConnectionFailed(req.URL).WithCause(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		_ = resp.Body.Close()
		cancel()
		return nil, errors.ConnectionFailed(req.URL).WithDetail("status", resp.StatusCode)
	}
	if mt, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type")); mt != wire.ContentType {
		_ = resp.Body.Close()
		cancel()
		return nil, errors.ConnectionFailed(req.URL).WithDetail("content_type", resp.Header.Get("Content-Type"))
	}

	src := &httpSource{
		id:      uuid.NewString(),
		url:     req.URL,
		signals: make(chan Signal),
		done:    make(chan struct{}),
		ctx:     connCtx,
		cancel:  cancel,
	}
	c.live.Add(1)
	go src.read(resp.Body, &c.live)

	c.log.Debug("connected", logger.Fields(
		logger.FieldSourceID, src.id,
		logger.FieldAttempt, req.Attempt,
		logger.FieldLastEventID, req.LastEventID,
	))
	return src, nil
}

func (c *HTTPConnector) target(req Request) (string, error) {
	u, err := url.Parse(req.URL)
	if err != nil {
		return "", errors.InvalidInput("url", err.Error())
	}
	if req.LastEventID != "" {
		q := u.Query()
		q.Set(c.cfg.LastEventIDParam, req.LastEventID)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// httpSource is one HTTP response body being read by a single goroutine.
type httpSource struct {
	id      string
	url     string
	signals chan Signal
	done    chan struct{}
	ctx     context.Context
	cancel  context.CancelFunc
	once    sync.Once
}

func (s *httpSource) ID() string             { return s.id }
func (s *httpSource) Signals() <-chan Signal { return s.signals }

// Close cancels the request and waits for the reader goroutine to exit.
func (s *httpSource) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

func (s *httpSource) read(body io.ReadCloser, live *atomic.Int64) {
	defer close(s.done)
	defer live.Add(-1)
	defer close(s.signals)
	defer body.Close()

	if !s.send(Signal{Kind: SignalOpen}) {
		return
	}
	r := wire.NewReader(body)
	for {
		f, err := r.Next()
		if err != nil {
			if s.ctx.Err() != nil {
				return
			}
			if err == io.EOF {
				err = errors.StreamClosed()
			} else {
				err = errors.ConnectionFailed(s.url).WithCause(err)
			}
			s.send(Signal{Kind: SignalError, Err: err})
			return
		}
		if !s.send(Signal{Kind: SignalMessage, Frame: f}) {
			return
		}
	}
}

func (s *httpSource) send(sig Signal) bool {
	select {
	case s.signals <- sig:
		return true
	case <-s.ctx.Done():
		return false
	}
}
