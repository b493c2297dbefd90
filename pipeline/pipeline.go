package pipeline

import "context"

// Iterator is pull-based access to a sequence of values.
type Iterator[T any] interface {
	// Next blocks until a value is available. It returns (zero, false, nil)
	// once the sequence is exhausted.
	Next(ctx context.Context) (T, bool, error)
	// Close releases the iterator and any reader blocked in Next.
	Close() error
}

// Poller is implemented by iterators that can report a value without
// blocking. ok=false means nothing is ready now, or the iterator is
// exhausted; callers that need to tell the two apart call Next.
type Poller[T any] interface {
	TryNext(ctx context.Context) (T, bool, error)
}

// Pipeline is a lazy factory for an Iterator. Nothing is pulled until Iter
// or Collect is called.
type Pipeline[T any] struct {
	create func(ctx context.Context) Iterator[T]
}

// From wraps an existing iterator. The iterator is shared, so the pipeline
// can only be consumed once.
func From[T any](it Iterator[T]) *Pipeline[T] {
	return FromFunc(func(context.Context) Iterator[T] { return it })
}

// FromSlice yields items in order. Its iterator implements Poller.
func FromSlice[T any](items []T) *Pipeline[T] {
	return FromFunc(func(context.Context) Iterator[T] { return &sliceIter[T]{items: items} })
}

// FromFunc builds the iterator with fn each time the pipeline is consumed.
func FromFunc[T any](fn func(ctx context.Context) Iterator[T]) *Pipeline[T] {
	return &Pipeline[T]{create: fn}
}

// Concat yields every value of each pipeline in turn. An error from one
// part ends the whole sequence.
func Concat[T any](parts ...*Pipeline[T]) *Pipeline[T] {
	return FromFunc(func(ctx context.Context) Iterator[T] {
		iters := make([]Iterator[T], len(parts))
		for i, p := range parts {
			iters[i] = p.create(ctx)
		}
		return &concatIter[T]{iters: iters}
	})
}

// Iter creates the iterator. The caller must Close it.
func (p *Pipeline[T]) Iter(ctx context.Context) Iterator[T] {
	return p.create(ctx)
}

// Collect pulls every value. On error it returns the values read so far.
func Collect[T any](ctx context.Context, p *Pipeline[T]) ([]T, error) {
	it := p.create(ctx)
	defer it.Close()

	var out []T
	for {
		v, ok, err := it.Next(ctx)
		if err != nil || !ok {
			return out, err
		}
		out = append(out, v)
	}
}

type sliceIter[T any] struct {
	items []T
	pos   int
}

func (it *sliceIter[T]) Next(context.Context) (T, bool, error) {
	if it.pos >= len(it.items) {
		var zero T
		return zero, false, nil
	}
	it.pos++
	return it.items[it.pos-1], true, nil
}

func (it *sliceIter[T]) TryNext(ctx context.Context) (T, bool, error) { return it.Next(ctx) }

func (it *sliceIter[T]) Close() error { return nil }

type concatIter[T any] struct {
	iters []Iterator[T]
	pos   int
}

func (it *concatIter[T]) Next(ctx context.Context) (T, bool, error) {
	for ; it.pos < len(it.iters); it.pos++ {
		v, ok, err := it.iters[it.pos].Next(ctx)
		if err != nil || ok {
			return v, ok, err
		}
	}
	var zero T
	return zero, false, nil
}

// Close closes every part and returns the first error.
func (it *concatIter[T]) Close() error {
	var first error
	for _, sub := range it.iters {
		if err := sub.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
