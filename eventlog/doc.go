// Package eventlog provides append-only logs that a producer can stream from
// and resume into.
//
// Read returns an iterator over the entries after a given id that keeps
// waiting for new appends once the existing ones are consumed. Every
// implementation also reports readiness through pipeline.Poller, so an
// emit-and-end producer can flush exactly the stored backlog.
//
//	log := eventlog.NewMemory[Tick]()
//	h := producer.NewHandler(func(ctx context.Context, lastEventID string) (pipeline.Iterator[tracked.Envelope[Tick]], error) {
//	    return log.Read(ctx, lastEventID)
//	}, codec.JSON[Tick](), cfg)
//
// Redis stores entries in a Redis Stream; its ids are Redis stream ids.
// SQL stores entries in a database table through GORM (SQLite unless
// another dialector is supplied); its ids are the table's row ids.
package eventlog
