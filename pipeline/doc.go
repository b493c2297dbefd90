// Package pipeline defines the pull-based Iterator that both ends of an
// event stream are built on.
//
// A producer pulls its source one value at a time, so a slow client slows
// the source down without explicit flow control. An Iterator may also
// implement Poller to say whether a value is ready right now; emit-and-end
// producers use it to flush what is available and then finish.
//
//	it := pipeline.FromSlice([]int{1, 2, 3}).Iter(ctx)
//	defer it.Close()
//	for {
//	    v, ok, err := it.Next(ctx)
//	    if err != nil || !ok {
//	        break
//	    }
//	    use(v)
//	}
package pipeline
