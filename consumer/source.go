package consumer

import (
	"context"
	"time"

	"github.com/kbukum/eventstream/wire"
)

// Request describes one connection attempt.
type Request struct {
	URL string
	// LastEventID is the resumption id. Empty on a fresh stream.
	LastEventID string
	// Attempt counts every attempt, starting at 1.
	Attempt int
	// Consecutive counts attempts since the last connected frame, starting at 1.
	Consecutive int
	// RetryHint is the reconnection delay last advertised by the producer.
	RetryHint time.Duration
}

// Connector opens event sources. Backoff between attempts is its concern.
type Connector interface {
	Open(ctx context.Context, req Request) (EventSource, error)
}

// Delayer is implemented by connectors that can say how long they would
// wait before the attempt req. A subscription waits that long before
// retrying an attempt that never reached Open, such as one whose URL could
// not be resolved.
type Delayer interface {
	Delay(req Request) time.Duration
}

var _ Delayer = (*HTTPConnector)(nil)

// SignalKind discriminates Signal.
type SignalKind int

const (
	// SignalOpen reports that the transport is established.
	SignalOpen SignalKind = iota + 1
	// SignalMessage carries one dispatched frame.
	SignalMessage
	// SignalError reports that the connection ended. It is the last signal.
	SignalError
)

// Signal is one notification from an EventSource.
type Signal struct {
	Kind  SignalKind
	Frame wire.Frame
	Err   error
}

// EventSource is one live connection.
//
// Signals is closed after the final signal. Close is idempotent and returns
// only once every goroutine owned by the source has exited.
type EventSource interface {
	ID() string
	Signals() <-chan Signal
	Close() error
}

// URLFunc resolves the address of the stream before each attempt.
type URLFunc func(ctx context.Context) (string, error)

// StaticURL returns a URLFunc that always resolves to u.
func StaticURL(u string) URLFunc {
	return func(context.Context) (string, error) { return u, nil }
}
