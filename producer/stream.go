package producer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/observability"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/wire"
)

// Sink is the writable end of a connection.
// Each Write carries exactly one complete frame or heartbeat. Write must not
// retain p after it returns.
type Sink interface {
	Write(p []byte) error
	Close() error
}

// DoneNotifier is implemented by sinks that can report the peer going away
// independently of a failed Write.
type DoneNotifier interface {
	Done() <-chan struct{}
}

type pullResult[T any] struct {
	env tracked.Envelope[T]
	ok  bool
	err error
}

type stream[T any] struct {
	src   pipeline.Iterator[tracked.Envelope[T]]
	sink  Sink
	codec codec.Codec[T]
	opts  options
	log   *logger.Logger
	buf   []byte
}

// Stream writes src to sink until the source ends, ctx is done, the peer
// goes away, or a value cannot be produced. The source and the sink are
// always closed before Stream returns.
//
// A failing source or serializer is reported to the peer as a final
// serialized-error frame and Stream returns nil. The only error returned is
// a failed sink write.
func Stream[T any](ctx context.Context, src pipeline.Iterator[tracked.Envelope[T]], sink Sink, c codec.Codec[T], opts ...Option) error {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.streamID == "" {
		o.streamID = uuid.NewString()
	}
	if o.log == nil {
		o.log = logger.WithComponent("producer")
	}

	s := &stream[T]{
		src:   src,
		sink:  sink,
		codec: c,
		opts:  o,
		log:   o.log.WithFields(logger.Fields(logger.FieldStreamID, o.streamID)),
	}

	ctx, span := observability.StartSpan(ctx, observability.SpanStreamServe)
	defer span.End()
	observability.SetSpanAttribute(ctx, observability.AttrStreamID, o.streamID)
	observability.SetSpanAttribute(ctx, observability.AttrSide, observability.SideProducer)

	o.metrics.StreamOpened(ctx, observability.SideProducer)
	defer o.metrics.StreamClosed(context.WithoutCancel(ctx), observability.SideProducer)

	err := s.run(ctx)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return err
}

func (s *stream[T]) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	defer func() {
		cancel()
		wg.Wait()
		if err := s.src.Close(); err != nil {
			s.log.Debug("source close failed", logger.ErrorFields(s.opts.streamID, err))
		}
		_ = s.sink.Close()
	}()

	if err := s.writeFrame(wire.Frame{Event: wire.EventConnected, Retry: s.opts.reconnectDelay}); err != nil {
		return err
	}
	s.log.Debug("stream connected")

	if s.opts.emitAndEnd {
		if poller, ok := s.src.(pipeline.Poller[tracked.Envelope[T]]); ok {
			return s.drainPoller(ctx, poller)
		}
	}

	pull := make(chan struct{})
	results := make(chan pullResult[T])
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.pump(ctx, pull, results)
	}()

	if s.opts.emitAndEnd {
		return s.drainPump(ctx, pull, results)
	}
	return s.loop(ctx, pull, results)
}

// pump pulls one value from the source per request on pull.
func (s *stream[T]) pump(ctx context.Context, pull <-chan struct{}, results chan<- pullResult[T]) {
	for {
		select {
		case <-pull:
		case <-ctx.Done():
			return
		}
		env, ok, err := s.src.Next(ctx)
		select {
		case results <- pullResult[T]{env: env, ok: ok, err: err}:
		case <-ctx.Done():
			return
		}
		if err != nil || !ok {
			return
		}
	}
}

func (s *stream[T]) loop(ctx context.Context, pull chan<- struct{}, results <-chan pullResult[T]) error {
	var idle <-chan time.Time
	var timer *time.Timer
	if s.opts.heartbeat > 0 {
		timer = time.NewTimer(s.opts.heartbeat)
		defer timer.Stop()
		idle = timer.C
	}
	resetIdle := func() {
		if timer != nil {
			timer.Reset(s.opts.heartbeat)
		}
	}

	peerGone := s.peerDone()
	requested := false
	for {
		if !requested {
			select {
			case pull <- struct{}{}:
				requested = true
			case <-ctx.Done():
				s.log.Debug("stream cancelled")
				return nil
			case <-peerGone:
				s.log.Debug("peer closed the stream")
				return nil
			}
		}

		select {
		case <-ctx.Done():
			s.log.Debug("stream cancelled")
			return nil

		case <-peerGone:
			s.log.Debug("peer closed the stream")
			return nil

		case r := <-results:
			requested = false
			done, err := s.handle(ctx, r)
			if done || err != nil {
				return err
			}
			resetIdle()

		case <-idle:
			s.buf = wire.AppendPing(s.buf[:0])
			if err := s.write(s.buf); err != nil {
				return err
			}
			s.opts.metrics.RecordHeartbeat(ctx)
			resetIdle()
		}
	}
}

// drainPoller writes every value the source reports ready, then ends.
func (s *stream[T]) drainPoller(ctx context.Context, poller pipeline.Poller[tracked.Envelope[T]]) error {
	for ctx.Err() == nil {
		env, ok, err := poller.TryNext(ctx)
		if done, werr := s.handle(ctx, pullResult[T]{env: env, ok: ok, err: err}); done || werr != nil {
			return werr
		}
	}
	return nil
}

// drainPump writes values until none arrives within the drain timeout.
func (s *stream[T]) drainPump(ctx context.Context, pull chan<- struct{}, results <-chan pullResult[T]) error {
	timer := time.NewTimer(s.opts.drainTimeout)
	defer timer.Stop()
	for {
		select {
		case pull <- struct{}{}:
		case <-ctx.Done():
			return nil
		}
		timer.Reset(s.opts.drainTimeout)
		select {
		case r := <-results:
			if done, err := s.handle(ctx, r); done || err != nil {
				return err
			}
		case <-timer.C:
			s.log.Debug("no value ready, ending stream")
			return nil
		case <-ctx.Done():
			return nil
		}
	}
}

// handle writes one pull result. done reports that the stream has ended.
func (s *stream[T]) handle(ctx context.Context, r pullResult[T]) (done bool, err error) {
	if r.err != nil {
		if ctx.Err() != nil {
			return true, nil
		}
		return true, s.fail(ctx, r.err)
	}
	if !r.ok {
		s.log.Debug("source exhausted")
		return true, nil
	}

	data, serr := s.codec.Serialize(r.env.Data)
	if serr != nil {
		return true, s.fail(ctx, errors.SerializationFailed(serr))
	}
	frame := wire.Frame{Data: string(data), ID: r.env.ID}
	buf, ferr := wire.AppendFrame(s.buf[:0], frame)
	if ferr != nil {
		return true, s.fail(ctx, ferr)
	}
	s.buf = buf
	if err := s.write(buf); err != nil {
		return true, err
	}
	s.opts.metrics.RecordFrame(ctx, observability.SideProducer)
	if r.env.Tracked() {
		s.log.Debug("frame written", logger.Fields(logger.FieldEventID, r.env.ID))
	}
	return false, nil
}

// fail writes cause as the final serialized-error frame.
func (s *stream[T]) fail(ctx context.Context, cause error) error {
	appErr := errors.FromError(cause)
	s.log.Warn("stream ended with error", logger.MergeWithError(
		logger.Fields("code", string(appErr.Code)), cause))
	s.opts.metrics.RecordError(ctx, observability.SideProducer, string(appErr.Code))
	observability.SetSpanAttribute(ctx, observability.AttrErrorCode, string(appErr.Code))

	payload, err := codec.EncodeError(appErr)
	if err != nil {
		return nil
	}
	return s.writeFrame(wire.Frame{Data: string(payload)})
}

func (s *stream[T]) writeFrame(f wire.Frame) error {
	buf, err := wire.AppendFrame(s.buf[:0], f)
	if err != nil {
		return err
	}
	s.buf = buf
	return s.write(buf)
}

func (s *stream[T]) write(p []byte) error {
	if err := s.sink.Write(p); err != nil {
		s.log.Debug("sink write failed", logger.ErrorFields(s.opts.streamID, err))
		return err
	}
	return nil
}

func (s *stream[T]) peerDone() <-chan struct{} {
	if n, ok := s.sink.(DoneNotifier); ok {
		return n.Done()
	}
	return nil
}
