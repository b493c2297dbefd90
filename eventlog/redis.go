package eventlog

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/validation"
)

const (
	redisBackend   = "redis"
	redisFieldData = "data"
)

// Redis is a Log stored in a Redis Stream. It is a component.Component:
// Start connects and Stop closes the connection pool.
type Redis[T any] struct {
	cfg   RedisConfig
	codec codec.Codec[T]
	log   *logger.Logger

	mu     sync.RWMutex
	rdb    *goredis.Client
	block  time.Duration
	closed bool
}

var (
	_ Log[int]              = (*Redis[int])(nil)
	_ component.Component   = (*Redis[int])(nil)
	_ component.Describable = (*Redis[int])(nil)
)

// NewRedis creates a Redis log. No connection is made until Start.
func NewRedis[T any](cfg RedisConfig, c codec.Codec[T], log *logger.Logger) *Redis[T] {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &Redis[T]{
		cfg:   cfg,
		codec: c,
		log:   log.WithComponent("eventlog.redis"),
	}
}

// Name returns the component name.
func (r *Redis[T]) Name() string { return "eventlog" }

// Start creates the client and verifies connectivity.
func (r *Redis[T]) Start(ctx context.Context) error {
	if err := r.cfg.Validate(); err != nil {
		return fmt.Errorf("redis event log config: %w", err)
	}

	dial, write, block := r.cfg.durations()
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         r.cfg.Addr,
		Password:     r.cfg.Password,
		DB:           r.cfg.DB,
		PoolSize:     r.cfg.PoolSize,
		MinIdleConns: r.cfg.MinIdleConns,
		DialTimeout:  dial,
		WriteTimeout: write,
	})

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return errors.StorageError(redisBackend, err)
	}

	r.mu.Lock()
	r.rdb = rdb
	r.block = block
	r.closed = false
	r.mu.Unlock()

	r.log.Info("Redis event log started", logger.Fields(
		"addr", r.cfg.Addr,
		"stream", r.cfg.Stream,
		"max_len", r.cfg.MaxLen,
	))
	return nil
}

// Stop closes the connection pool. Safe to call multiple times.
func (r *Redis[T]) Stop(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rdb == nil || r.closed {
		return nil
	}
	r.closed = true
	r.log.Info("Closing Redis event log")
	return r.rdb.Close()
}

// Health pings Redis.
func (r *Redis[T]) Health(ctx context.Context) component.Health {
	rdb, err := r.client()
	if err != nil {
		return component.Health{Name: r.Name(), Status: component.StatusUnhealthy, Message: "redis not initialized"}
	}
	if err := rdb.Ping(ctx).Err(); err != nil {
		return component.Health{Name: r.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return component.Health{Name: r.Name(), Status: component.StatusHealthy}
}

// Describe returns a summary for the startup log.
func (r *Redis[T]) Describe() component.Description {
	return component.Description{
		Name:    "Redis event log",
		Type:    "eventlog",
		Details: fmt.Sprintf("%s db=%d stream=%s", r.cfg.Addr, r.cfg.DB, r.cfg.Stream),
	}
}

func (r *Redis[T]) client() (*goredis.Client, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.rdb == nil || r.closed {
		return nil, errors.ServiceUnavailable("redis event log")
	}
	return r.rdb, nil
}

// Append adds v to the stream with XADD, retrying transient failures.
func (r *Redis[T]) Append(ctx context.Context, v T) (string, error) {
	rdb, err := r.client()
	if err != nil {
		return "", err
	}
	data, err := r.codec.Serialize(v)
	if err != nil {
		return "", errors.SerializationFailed(err)
	}

	args := &goredis.XAddArgs{
		Stream: r.cfg.Stream,
		Values: map[string]interface{}{redisFieldData: data},
	}
	if r.cfg.MaxLen > 0 {
		args.MaxLen = r.cfg.MaxLen
		args.Approx = true
	}

	retry := r.cfg.Retry
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		r.log.Warn("XADD failed, retrying", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"backoff", backoff.String(),
		))
	}
	id, err := resilience.Retry(ctx, retry, func() (string, error) {
		return rdb.XAdd(ctx, args).Result()
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.StorageError(redisBackend, err)
	}
	return id, nil
}

// Read returns the entries after afterID, a Redis stream id. The iterator
// blocks in XREAD for at most BlockTimeout at a time and re-issues it until
// ctx is done or the iterator is closed.
func (r *Redis[T]) Read(_ context.Context, afterID string) (pipeline.Iterator[tracked.Envelope[T]], error) {
	rdb, err := r.client()
	if err != nil {
		return nil, err
	}
	if err := validation.New().StreamID("after_id", afterID).Validate(); err != nil {
		return nil, err
	}
	if afterID == "" {
		afterID = "0-0"
	}

	r.mu.RLock()
	block := r.block
	r.mu.RUnlock()

	return &redisIter[T]{
		r:     r,
		rdb:   rdb,
		last:  afterID,
		block: block,
		done:  make(chan struct{}),
	}, nil
}

type redisIter[T any] struct {
	r     *Redis[T]
	rdb   *goredis.Client
	last  string
	block time.Duration
	buf   []goredis.XMessage
	done  chan struct{}
	once  sync.Once
}

func (it *redisIter[T]) Next(ctx context.Context) (tracked.Envelope[T], bool, error) {
	// Closing the iterator cancels the XREAD in flight.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-it.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	for len(it.buf) == 0 {
		if it.closed() {
			return tracked.Envelope[T]{}, false, nil
		}
		if err := it.fetch(ctx, it.block); err != nil {
			if it.closed() {
				return tracked.Envelope[T]{}, false, nil
			}
			return tracked.Envelope[T]{}, false, err
		}
	}
	return it.pop()
}

func (it *redisIter[T]) TryNext(ctx context.Context) (tracked.Envelope[T], bool, error) {
	if it.closed() {
		return tracked.Envelope[T]{}, false, nil
	}
	if len(it.buf) == 0 {
		if err := it.fetch(ctx, -1); err != nil {
			return tracked.Envelope[T]{}, false, err
		}
		if len(it.buf) == 0 {
			return tracked.Envelope[T]{}, false, nil
		}
	}
	return it.pop()
}

// fetch reads the next batch after it.last. A negative block does not wait.
func (it *redisIter[T]) fetch(ctx context.Context, block time.Duration) error {
	streams, err := it.rdb.XRead(ctx, &goredis.XReadArgs{
		Streams: []string{it.r.cfg.Stream, it.last},
		Count:   it.r.cfg.BatchSize,
		Block:   block,
	}).Result()
	if stderrors.Is(err, goredis.Nil) {
		return nil
	}
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.StorageError(redisBackend, err)
	}
	for _, s := range streams {
		it.buf = append(it.buf, s.Messages...)
	}
	return nil
}

func (it *redisIter[T]) pop() (tracked.Envelope[T], bool, error) {
	msg := it.buf[0]
	it.buf = it.buf[1:]
	it.last = msg.ID

	raw, ok := msg.Values[redisFieldData].(string)
	if !ok {
		return tracked.Envelope[T]{}, false, errors.StorageError(redisBackend,
			fmt.Errorf("entry %s has no %q field", msg.ID, redisFieldData))
	}
	v, err := it.r.codec.Deserialize([]byte(raw))
	if err != nil {
		return tracked.Envelope[T]{}, false, errors.SerializationFailed(err).WithDetail("id", msg.ID)
	}
	return tracked.New(msg.ID, v), true, nil
}

func (it *redisIter[T]) closed() bool {
	select {
	case <-it.done:
		return true
	default:
		return false
	}
}

// Close interrupts a blocked Next. The client stays open; it belongs to Redis.
func (it *redisIter[T]) Close() error {
	it.once.Do(func() { close(it.done) })
	return nil
}
