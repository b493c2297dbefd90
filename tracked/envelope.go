package tracked

import (
	"context"

	"github.com/kbukum/eventstream/pipeline"
)

// Envelope pairs a value with an optional resumption id.
type Envelope[T any] struct {
	ID   string `json:"id,omitempty"`
	Data T      `json:"data"`
}

// New returns an envelope carrying id.
func New[T any](id string, data T) Envelope[T] {
	return Envelope[T]{ID: id, Data: data}
}

// Value returns an envelope without an id.
func Value[T any](data T) Envelope[T] {
	return Envelope[T]{Data: data}
}

// Tracked reports whether the envelope carries a resumption id.
func (e Envelope[T]) Tracked() bool { return e.ID != "" }

// Values wraps each bare value from it in an untracked envelope.
// The result implements pipeline.Poller when it does.
func Values[T any](it pipeline.Iterator[T]) pipeline.Iterator[Envelope[T]] {
	return Sequence(it, nil)
}

// Sequence wraps each value from it in an envelope whose id is fn(value).
// A nil fn, or fn returning "", leaves the envelope untracked.
func Sequence[T any](it pipeline.Iterator[T], fn func(T) string) pipeline.Iterator[Envelope[T]] {
	w := &wrapIter[T]{source: it, id: fn}
	if p, ok := it.(pipeline.Poller[T]); ok {
		return &pollWrapIter[T]{wrapIter: w, poller: p}
	}
	return w
}

type wrapIter[T any] struct {
	source pipeline.Iterator[T]
	id     func(T) string
}

func (it *wrapIter[T]) wrap(v T, ok bool, err error) (Envelope[T], bool, error) {
	if err != nil || !ok {
		return Envelope[T]{}, false, err
	}
	e := Envelope[T]{Data: v}
	if it.id != nil {
		e.ID = it.id(v)
	}
	return e, true, nil
}

func (it *wrapIter[T]) Next(ctx context.Context) (Envelope[T], bool, error) {
	return it.wrap(it.source.Next(ctx))
}

func (it *wrapIter[T]) Close() error { return it.source.Close() }

type pollWrapIter[T any] struct {
	*wrapIter[T]
	poller pipeline.Poller[T]
}

func (it *pollWrapIter[T]) TryNext(ctx context.Context) (Envelope[T], bool, error) {
	return it.wrap(it.poller.TryNext(ctx))
}
