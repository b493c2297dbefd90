package producer

import (
	"time"

	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/observability"
)

const (
	// DefaultHeartbeat is how long the stream may stay idle before a ping.
	DefaultHeartbeat = 15 * time.Second
	// DefaultDrainTimeout bounds how long emit-and-end mode waits for a
	// source that cannot report readiness.
	DefaultDrainTimeout = 25 * time.Millisecond
)

type options struct {
	heartbeat      time.Duration
	emitAndEnd     bool
	drainTimeout   time.Duration
	reconnectDelay time.Duration
	streamID       string
	log            *logger.Logger
	metrics        *observability.StreamMetrics
}

func defaultOptions() options {
	return options{
		heartbeat:    DefaultHeartbeat,
		drainTimeout: DefaultDrainTimeout,
	}
}

// Option configures Stream.
type Option func(*options)

// WithHeartbeat sets the idle interval between pings. Zero disables pings.
func WithHeartbeat(d time.Duration) Option {
	return func(o *options) { o.heartbeat = d }
}

// WithEmitAndEndImmediately makes the stream write whatever the source has
// ready right now and then close, instead of waiting for more.
func WithEmitAndEndImmediately(enabled bool) Option {
	return func(o *options) { o.emitAndEnd = enabled }
}

// WithDrainTimeout sets how long emit-and-end mode waits for the next value
// from a source that does not implement pipeline.Poller.
func WithDrainTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.drainTimeout = d
		}
	}
}

// WithReconnectDelay advertises a reconnection delay to the consumer with a
// retry field on the connected frame. Zero omits the field.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) { o.reconnectDelay = d }
}

// WithStreamID sets the id used in logs and spans. A random UUID is used otherwise.
func WithStreamID(id string) Option {
	return func(o *options) { o.streamID = id }
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// WithMetrics records stream metrics. A nil value disables recording.
func WithMetrics(m *observability.StreamMetrics) Option {
	return func(o *options) { o.metrics = m }
}

// WithConfig applies the timing settings from cfg.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		cfg.ApplyDefaults()
		o.heartbeat = cfg.HeartbeatInterval
		if cfg.DisableHeartbeat {
			o.heartbeat = 0
		}
		o.drainTimeout = cfg.DrainTimeout
		o.reconnectDelay = cfg.ReconnectDelay
		o.emitAndEnd = cfg.EmitAndEndImmediately
	}
}
