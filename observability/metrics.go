package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Meter returns a named meter from the global provider.
func Meter(name string) metric.Meter {
	return otel.Meter(name)
}

// StreamMetrics holds the instruments producers and consumers record to.
// Every method is a no-op on a nil *StreamMetrics.
type StreamMetrics struct {
	frames     metric.Int64Counter
	heartbeats metric.Int64Counter
	errors     metric.Int64Counter
	reconnects metric.Int64Counter
	malformed  metric.Int64Counter
	active     metric.Int64UpDownCounter
}

// NewStreamMetrics creates the stream instruments on meter.
func NewStreamMetrics(meter metric.Meter) (*StreamMetrics, error) {
	m := &StreamMetrics{}
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.frames, "stream.frames", "Data frames written or received"},
		{&m.heartbeats, "stream.heartbeats", "Heartbeat comments written"},
		{&m.errors, "stream.errors", "Serialized error frames by code"},
		{&m.reconnects, "stream.reconnects", "Consumer connection attempts after the first"},
		{&m.malformed, "stream.malformed", "Frames whose payload could not be decoded"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("creating %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	active, err := meter.Int64UpDownCounter("stream.active", metric.WithDescription("Currently open streams"))
	if err != nil {
		return nil, fmt.Errorf("creating stream.active gauge: %w", err)
	}
	m.active = active
	return m, nil
}

func side(s string) metric.AddOption {
	return metric.WithAttributes(attribute.String(AttrSide, s))
}

func (m *StreamMetrics) StreamOpened(ctx context.Context, s string) {
	if m != nil {
		m.active.Add(ctx, 1, side(s))
	}
}

func (m *StreamMetrics) StreamClosed(ctx context.Context, s string) {
	if m != nil {
		m.active.Add(ctx, -1, side(s))
	}
}

func (m *StreamMetrics) RecordFrame(ctx context.Context, s string) {
	if m != nil {
		m.frames.Add(ctx, 1, side(s))
	}
}

func (m *StreamMetrics) RecordHeartbeat(ctx context.Context) {
	if m != nil {
		m.heartbeats.Add(ctx, 1)
	}
}

// RecordError counts one error frame, labelled with its code.
func (m *StreamMetrics) RecordError(ctx context.Context, s, code string) {
	if m != nil {
		m.errors.Add(ctx, 1, metric.WithAttributes(
			attribute.String(AttrSide, s),
			attribute.String(AttrErrorCode, code),
		))
	}
}

func (m *StreamMetrics) RecordReconnect(ctx context.Context) {
	if m != nil {
		m.reconnects.Add(ctx, 1)
	}
}

func (m *StreamMetrics) RecordMalformed(ctx context.Context) {
	if m != nil {
		m.malformed.Add(ctx, 1)
	}
}
