package consumer

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/observability"
	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/wire"
)

// Subscription is a reconnecting stream of items. It implements
// pipeline.Iterator[Item[T]].
//
// Next must be called from one goroutine at a time. State, LastEventID and
// Close are safe to call from any goroutine.
type Subscription[T any] struct {
	url   URLFunc
	conn  Connector
	codec codec.Codec[T]
	o     options

	ctx    context.Context
	cancel context.CancelFunc
	stop   func() bool
	once   sync.Once

	state atomic.Int32

	mu          sync.Mutex
	src         EventSource
	lastEventID string

	// Owned by the goroutine calling Next.
	attempt     int
	consecutive int
	retryHint   time.Duration
	cause       error
	dialing     bool
	dialURL     string
	urlErr      error

	opened atomic.Bool
}

// Subscribe starts a subscription. No connection is made until the first
// call to Next. Cancelling ctx closes the subscription.
func Subscribe[T any](ctx context.Context, url URLFunc, conn Connector, c codec.Codec[T], opts ...Option) *Subscription[T] {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.WithComponent("consumer")
	}

	s := &Subscription[T]{
		url:         url,
		conn:        conn,
		codec:       c,
		o:           o,
		lastEventID: o.lastEventID,
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.stop = context.AfterFunc(s.ctx, func() { _ = s.Close() })
	return s
}

// State returns the current connection state.
func (s *Subscription[T]) State() State {
	return State(s.state.Load())
}

// LastEventID returns the most recent resumption id received.
func (s *Subscription[T]) LastEventID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastEventID
}

// Next returns the next item. It returns (zero, false, nil) once the
// subscription is closed, and ctx.Err() if ctx ends first.
func (s *Subscription[T]) Next(ctx context.Context) (Item[T], bool, error) {
	var zero Item[T]
	for {
		if s.State() == StateClosed {
			return zero, false, nil
		}
		if err := ctx.Err(); err != nil {
			return zero, false, err
		}

		src := s.current()
		if src == nil {
			if !s.dialing {
				return s.connecting(ctx), true, nil
			}
			s.dial(ctx)
			continue
		}

		select {
		case <-ctx.Done():
			return zero, false, ctx.Err()
		case <-s.ctx.Done():
			_ = s.Close()
		case sig, ok := <-src.Signals():
			if !ok {
				s.drop(src, errors.StreamClosed())
				continue
			}
			if item, emit := s.handle(src, sig); emit {
				return item, true, nil
			}
		}
	}
}

// All returns the remaining items as a range-over-func sequence. Leaving the
// loop early closes the subscription. Cancellation of ctx ends the sequence
// without an error.
func (s *Subscription[T]) All(ctx context.Context) iter.Seq2[Item[T], error] {
	return func(yield func(Item[T], error) bool) {
		defer s.Close()
		for {
			item, ok, err := s.Next(ctx)
			if err != nil {
				if ctx.Err() == nil {
					yield(Item[T]{}, err)
				}
				return
			}
			if !ok || !yield(item, nil) {
				return
			}
		}
	}
}

// Close closes the current connection and ends the subscription. It returns
// once the connection's goroutines are gone. Safe to call more than once.
func (s *Subscription[T]) Close() error {
	var err error
	s.once.Do(func() {
		s.stop()
		s.cancel()

		s.mu.Lock()
		s.state.Store(int32(StateClosed))
		src := s.src
		s.src = nil
		s.mu.Unlock()

		if src != nil {
			err = src.Close()
			if s.opened.Swap(false) {
				s.o.metrics.StreamClosed(context.Background(), observability.SideConsumer)
			}
		}
		s.o.log.Debug("subscription closed", logger.Fields(logger.FieldLastEventID, s.LastEventID()))
	})
	return err
}

func (s *Subscription[T]) current() EventSource {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.src
}

func (s *Subscription[T]) setState(st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if State(s.state.Load()) != StateClosed {
		s.state.Store(int32(st))
	}
}

// connecting starts a new attempt and returns its item.
func (s *Subscription[T]) connecting(ctx context.Context) Item[T] {
	s.attempt++
	s.consecutive++
	s.dialing = true
	s.dialURL, s.urlErr = s.url(ctx)
	s.setState(StateConnecting)

	ev := &ConnectingEvent{
		Attempt:     s.attempt,
		Consecutive: s.consecutive,
		LastEventID: s.LastEventID(),
		URL:         s.dialURL,
		Cause:       s.cause,
	}
	s.cause = nil

	if s.attempt > 1 {
		s.o.metrics.RecordReconnect(s.ctx)
	}
	s.o.log.Debug("connecting", logger.Fields(
		logger.FieldAttempt, ev.Attempt,
		logger.FieldLastEventID, ev.LastEventID,
		logger.FieldURL, ev.URL,
	))
	return Item[T]{Kind: ItemConnecting, Connecting: ev}
}

// dial opens the connection announced by the last connecting item.
func (s *Subscription[T]) dial(ctx context.Context) {
	s.dialing = false

	spanCtx, span := observability.StartSpan(ctx, observability.SpanStreamConnect)
	defer span.End()
	observability.SetSpanAttribute(spanCtx, observability.AttrAttempt, s.attempt)
	observability.SetSpanAttribute(spanCtx, observability.AttrLastEventID, s.LastEventID())

	openCtx, cancel := context.WithCancel(spanCtx)
	defer cancel()
	stop := context.AfterFunc(s.ctx, cancel)
	defer stop()

	req := Request{
		URL:         s.dialURL,
		LastEventID: s.LastEventID(),
		Attempt:     s.attempt,
		Consecutive: s.consecutive,
		RetryHint:   s.retryHint,
	}
	if s.urlErr != nil {
		observability.SetSpanError(spanCtx, s.urlErr)
		s.cause = s.urlErr
		_ = resilience.Wait(openCtx, s.delay(req))
		return
	}

	src, err := s.conn.Open(openCtx, req)
	if err != nil {
		observability.SetSpanError(spanCtx, err)
		s.o.log.Debug("connection attempt failed", logger.Fields(
			logger.FieldAttempt, s.attempt,
			logger.FieldError, err.Error(),
		))
		s.cause = err
		return
	}

	s.mu.Lock()
	if State(s.state.Load()) == StateClosed {
		s.mu.Unlock()
		_ = src.Close()
		return
	}
	s.src = src
	s.mu.Unlock()
	observability.SetSpanAttribute(spanCtx, observability.AttrStreamID, src.ID())
}

// delay is how long to wait before an attempt that bypasses the connector.
// Connectors that are not a Delayer get the default exponential backoff.
func (s *Subscription[T]) delay(req Request) time.Duration {
	if d, ok := s.conn.(Delayer); ok {
		return d.Delay(req)
	}
	if req.Consecutive <= 1 {
		return 0
	}
	return resilience.Backoff(req.Consecutive-1, resilience.RetryConfig{})
}

// drop releases src and records why it ended.
func (s *Subscription[T]) drop(src EventSource, cause error) {
	s.mu.Lock()
	if s.src != src {
		s.mu.Unlock()
		return
	}
	s.src = nil
	s.mu.Unlock()

	_ = src.Close()
	if s.opened.Swap(false) {
		s.o.metrics.StreamClosed(s.ctx, observability.SideConsumer)
	}
	if s.cause == nil {
		s.cause = cause
	}
	s.setState(StateConnecting)
	s.o.log.Debug("connection ended", logger.Fields(
		logger.FieldSourceID, src.ID(),
		logger.FieldError, errorText(cause),
	))
}

func (s *Subscription[T]) handle(src EventSource, sig Signal) (Item[T], bool) {
	switch sig.Kind {
	case SignalOpen:
		s.o.log.Debug("transport open", logger.Fields(logger.FieldSourceID, src.ID()))
		return Item[T]{}, false
	case SignalError:
		s.drop(src, sig.Err)
		return Item[T]{}, false
	case SignalMessage:
		return s.frame(src, sig.Frame)
	default:
		return Item[T]{}, false
	}
}

func (s *Subscription[T]) frame(src EventSource, f wire.Frame) (Item[T], bool) {
	if f.Event == wire.EventConnected {
		s.consecutive = 0
		if f.Retry > 0 {
			s.retryHint = f.Retry
		}
		if !s.opened.Swap(true) {
			s.o.metrics.StreamOpened(s.ctx, observability.SideConsumer)
		}
		s.setState(StateOpen)
		s.o.log.Debug("stream open", logger.Fields(logger.FieldSourceID, src.ID()))
		return Item[T]{}, false
	}

	if f.ID != "" {
		s.mu.Lock()
		s.lastEventID = f.ID
		s.mu.Unlock()
		if s.o.checkpoint != nil {
			s.o.checkpoint(f.ID)
		}
	}

	data := []byte(f.Data)
	if appErr, ok, err := codec.DecodeError(data); ok {
		if err != nil {
			return s.malformed(src, f, err), true
		}
		s.o.metrics.RecordError(s.ctx, observability.SideConsumer, string(appErr.Code))
		return Item[T]{Kind: ItemSerializedError, ID: f.ID, Source: src, Err: appErr}, true
	}

	v, err := s.codec.Deserialize(data)
	if err != nil {
		return s.malformed(src, f, err), true
	}
	s.o.metrics.RecordFrame(s.ctx, observability.SideConsumer)
	return Item[T]{Kind: ItemData, Data: v, ID: f.ID, Source: src}, true
}

func (s *Subscription[T]) malformed(src EventSource, f wire.Frame, err error) Item[T] {
	s.o.metrics.RecordMalformed(s.ctx)
	s.o.log.Warn("malformed frame", logger.Fields(
		logger.FieldEventID, f.ID,
		logger.FieldError, err.Error(),
	))
	return Item[T]{
		Kind:   ItemMalformed,
		ID:     f.ID,
		Source: src,
		Err:    errors.MalformedFrame(err.Error()).WithCause(err),
		Raw:    f.Data,
	}
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
