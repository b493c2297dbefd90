package eventlog

import (
	"context"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/validation"
)

// Memory is an in-process Log. Ids are "1", "2", ... in append order.
type Memory[T any] struct {
	mu      sync.Mutex
	entries []T
	notify  chan struct{}
	waiters atomic.Int64
}

var _ Log[int] = (*Memory[int])(nil)

// NewMemory creates an empty log.
func NewMemory[T any]() *Memory[T] {
	return &Memory[T]{notify: make(chan struct{})}
}

// Append stores v and wakes every waiting reader.
func (m *Memory[T]) Append(_ context.Context, v T) (string, error) {
	m.mu.Lock()
	m.entries = append(m.entries, v)
	id := len(m.entries)
	close(m.notify)
	m.notify = make(chan struct{})
	m.mu.Unlock()
	return strconv.Itoa(id), nil
}

// Len returns the number of entries.
func (m *Memory[T]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Waiters returns how many readers are blocked waiting for an append.
func (m *Memory[T]) Waiters() int {
	return int(m.waiters.Load())
}

// Read returns the entries after afterID. afterID must be empty or the id
// of an existing entry.
func (m *Memory[T]) Read(_ context.Context, afterID string) (pipeline.Iterator[tracked.Envelope[T]], error) {
	if err := validation.New().Numeric("after_id", afterID).Validate(); err != nil {
		return nil, err
	}
	next := 0
	if afterID != "" {
		n, _ := strconv.Atoi(afterID)
		if n > m.Len() {
			return nil, errors.InvalidInput("after_id", "unknown event id "+afterID)
		}
		next = n
	}
	return &memoryIter[T]{m: m, next: next, done: make(chan struct{})}, nil
}

// at returns entry i, or the channel closed by the next append.
func (m *Memory[T]) at(i int) (T, bool, <-chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if i < len(m.entries) {
		return m.entries[i], true, nil
	}
	var zero T
	return zero, false, m.notify
}

type memoryIter[T any] struct {
	m    *Memory[T]
	next int
	done chan struct{}
	once sync.Once
}

func (it *memoryIter[T]) Next(ctx context.Context) (tracked.Envelope[T], bool, error) {
	for {
		if it.closed() {
			return tracked.Envelope[T]{}, false, nil
		}
		if v, ok := it.poll(); ok {
			return v, true, nil
		}
		_, ok, wait := it.m.at(it.next)
		if ok {
			continue
		}

		it.m.waiters.Add(1)
		select {
		case <-wait:
			it.m.waiters.Add(-1)
		case <-ctx.Done():
			it.m.waiters.Add(-1)
			return tracked.Envelope[T]{}, false, ctx.Err()
		case <-it.done:
			it.m.waiters.Add(-1)
			return tracked.Envelope[T]{}, false, nil
		}
	}
}

func (it *memoryIter[T]) TryNext(_ context.Context) (tracked.Envelope[T], bool, error) {
	v, ok := it.poll()
	return v, ok, nil
}

// poll returns the next stored entry without waiting.
func (it *memoryIter[T]) poll() (tracked.Envelope[T], bool) {
	if it.closed() {
		return tracked.Envelope[T]{}, false
	}
	v, ok, _ := it.m.at(it.next)
	if !ok {
		return tracked.Envelope[T]{}, false
	}
	it.next++
	return tracked.New(strconv.Itoa(it.next), v), true
}

func (it *memoryIter[T]) closed() bool {
	select {
	case <-it.done:
		return true
	default:
		return false
	}
}

// Close releases a reader blocked in Next.
func (it *memoryIter[T]) Close() error {
	it.once.Do(func() { close(it.done) })
	return nil
}
