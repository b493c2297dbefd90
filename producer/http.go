package producer

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/observability"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/wire"
)

// HTTPSink streams frames to an http.ResponseWriter, flushing after every
// write. Done reports the client going away.
type HTTPSink struct {
	w      http.ResponseWriter
	rc     *http.ResponseController
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewHTTPSink writes the event-stream response headers for r and returns a
// sink. When w cannot flush it fails with INTERNAL_ERROR before anything is
// written, so the caller can still answer with an error status. A flush
// failing after the headers are out means the client is gone; that is
// STREAM_CLOSED.
func NewHTTPSink(w http.ResponseWriter, r *http.Request) (*HTTPSink, error) {
	if !canFlush(w) {
		return nil, errors.Internal(nil).WithDetail("reason", "streaming not supported")
	}
	rc := http.NewResponseController(w)

	// Long-lived responses must outlive the server's WriteTimeout.
	if err := rc.SetWriteDeadline(time.Time{}); err != nil {
		logger.Debug("could not disable write deadline", logger.Fields(logger.FieldError, err.Error()))
	}

	h := w.Header()
	h.Set("Content-Type", wire.ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)

	if err := rc.Flush(); err != nil {
		return nil, errors.StreamClosed().WithCause(err)
	}
	ctx, cancel := context.WithCancel(r.Context())
	return &HTTPSink{w: w, rc: rc, ctx: ctx, cancel: cancel}, nil
}

// canFlush reports whether w, or a writer it unwraps to, can flush.
func canFlush(w http.ResponseWriter) bool {
	for {
		switch t := w.(type) {
		case http.Flusher, interface{ FlushError() error }:
			return true
		case interface{ Unwrap() http.ResponseWriter }:
			w = t.Unwrap()
		default:
			return false
		}
	}
}

// Write writes p and flushes it to the client.
func (s *HTTPSink) Write(p []byte) error {
	if s.closed.Load() {
		return errors.StreamClosed()
	}
	if _, err := s.w.Write(p); err != nil {
		return err
	}
	return s.rc.Flush()
}

// Close marks the sink closed. The response itself ends when the handler
// returns. Safe to call more than once.
func (s *HTTPSink) Close() error {
	s.closed.Store(true)
	s.cancel()
	return nil
}

// Done is closed when the request's context ends, which net/http does once
// the client disconnects, or when the sink is closed.
func (s *HTTPSink) Done() <-chan struct{} { return s.ctx.Done() }

// SourceFunc opens the sequence to stream for one request, resuming strictly
// after lastEventID when it is not empty.
type SourceFunc[T any] func(ctx context.Context, lastEventID string) (pipeline.Iterator[tracked.Envelope[T]], error)

// Handler serves one event stream per HTTP request.
type Handler[T any] struct {
	source SourceFunc[T]
	codec  codec.Codec[T]
	cfg    Config
	opts   []Option
	log    *logger.Logger
}

// NewHandler creates a Handler. Extra options are applied after cfg.
func NewHandler[T any](source SourceFunc[T], c codec.Codec[T], cfg Config, opts ...Option) *Handler[T] {
	cfg.ApplyDefaults()
	return &Handler[T]{
		source: source,
		codec:  c,
		cfg:    cfg,
		opts:   opts,
		log:    logger.WithComponent("producer"),
	}
}

// ServeHTTP implements http.Handler.
func (h *Handler[T]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sink, err := NewHTTPSink(w, r)
	if err != nil {
		if appErr, ok := errors.AsAppError(err); ok && appErr.Code == errors.ErrCodeStreamClosed {
			h.log.Debug("client went away before the stream started", logger.Fields(logger.FieldError, err.Error()))
			return
		}
		h.log.Error("streaming not supported", logger.Fields(logger.FieldError, err.Error()))
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	ctx := r.Context()
	streamID := uuid.NewString()
	lastEventID := LastEventID(r, h.cfg.LastEventIDParam)
	observability.SetSpanAttribute(ctx, observability.AttrLastEventID, lastEventID)

	log := h.log.WithFields(logger.Fields(
		logger.FieldStreamID, streamID,
		logger.FieldLastEventID, lastEventID,
		"remote_addr", r.RemoteAddr,
	))
	log.Debug("client connected")

	src, err := h.source(ctx, lastEventID)
	if err != nil {
		src = failedSource[T](err)
	}

	opts := make([]Option, 0, len(h.opts)+3)
	opts = append(opts, WithConfig(h.cfg), WithStreamID(streamID), WithLogger(log))
	opts = append(opts, h.opts...)
	if err := Stream(ctx, src, sink, h.codec, opts...); err != nil {
		log.Debug("client went away", logger.Fields(logger.FieldError, err.Error()))
		return
	}
	log.Debug("stream finished")
}

// Gin adapts the handler to a gin route.
func (h *Handler[T]) Gin() gin.HandlerFunc {
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// LastEventID returns the resumption id of r: the Last-Event-ID header,
// or the param query parameter when the header is absent.
func LastEventID(r *http.Request, param string) string {
	if id := r.Header.Get(wire.HeaderLastEventID); id != "" {
		return id
	}
	if param == "" {
		param = wire.DefaultLastEventIDParam
	}
	return r.URL.Query().Get(param)
}

// failedSource yields err on the first pull.
func failedSource[T any](err error) pipeline.Iterator[tracked.Envelope[T]] {
	return &errIter[T]{err: err}
}

type errIter[T any] struct{ err error }

func (it *errIter[T]) Next(context.Context) (tracked.Envelope[T], bool, error) {
	return tracked.Envelope[T]{}, false, it.err
}

func (it *errIter[T]) TryNext(ctx context.Context) (tracked.Envelope[T], bool, error) {
	return it.Next(ctx)
}

func (it *errIter[T]) Close() error { return nil }
