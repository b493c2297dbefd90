// Package producer writes a lazy sequence of values to a byte sink using the
// event-stream line protocol.
//
// Every stream starts with a "connected" frame. Each value becomes one data
// frame (followed by an id line when the value is a tracked envelope), and a
// ": ping" comment is written whenever the source has been idle for the
// heartbeat interval. If the source fails, the error is written as a final
// serialized-error frame and the sink is closed; Stream does not return it.
//
//	h := producer.NewHandler(func(ctx context.Context, lastEventID string) (pipeline.Iterator[tracked.Envelope[Tick]], error) {
//	    return log.Read(ctx, lastEventID)
//	}, codec.JSON[Tick](), cfg)
//	router.GET("/events", h.Gin())
package producer
