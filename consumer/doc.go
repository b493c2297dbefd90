// Package consumer reads an event stream over a reconnecting connection and
// turns it back into a lazy sequence of typed items.
//
// A Subscription owns the reconnection state: the last resumption id it has
// seen, the attempt counters, and the current EventSource. Every connection
// attempt surfaces as an ItemConnecting item; the producer's "connected"
// frame moves the subscription to StateOpen without emitting anything, and
// heartbeats never surface at all.
//
// Transport details live behind Connector. HTTPConnector speaks the protocol
// over plain HTTP, sending the resumption id both as the Last-Event-ID header
// and as a query parameter, and waits with exponential backoff between
// consecutive failed attempts.
//
// # Usage
//
//	conn := consumer.NewHTTPConnector(consumer.Config{}, nil)
//	sub := consumer.Subscribe(ctx, consumer.StaticURL("http://localhost:8080/events"), conn, codec.JSON[Tick]())
//	for item, err := range sub.All(ctx) {
//	    if err != nil {
//	        return err
//	    }
//	    switch item.Kind {
//	    case consumer.ItemConnecting:
//	        if item.Connecting.Consecutive > 10 {
//	            return item.Connecting.Cause
//	        }
//	    case consumer.ItemData:
//	        handle(item.Data)
//	    case consumer.ItemSerializedError:
//	        log.Warn(item.Err.Message)
//	    case consumer.ItemMalformed:
//	        log.Warn("skipping frame", logger.Fields("raw", item.Raw))
//	    }
//	}
package consumer
