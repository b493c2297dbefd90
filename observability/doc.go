// Package observability wires OpenTelemetry tracing and metrics into the
// stream producer and consumer.
//
// Each served stream gets a stream.serve span and each consumer
// connection attempt a stream.connect span. StreamMetrics counts frames,
// heartbeats, error frames, reconnects and malformed payloads per side.
//
//	tp, err := observability.InitTracer(ctx, &cfg.Tracer)
//	defer tp.Shutdown(ctx)
//
//	metrics, err := observability.NewStreamMetrics(observability.Meter("eventstreamd"))
//	producer.Stream(ctx, src, sink, c, producer.WithMetrics(metrics))
//
// Every StreamMetrics method accepts a nil receiver, so metrics stay
// optional.
package observability
