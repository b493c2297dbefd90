package eventlog

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/pipeline"
	"github.com/kbukum/eventstream/resilience"
	"github.com/kbukum/eventstream/tracked"
	"github.com/kbukum/eventstream/validation"
)

const sqlBackend = "sql"

// sqlEntry is one stored event.
type sqlEntry struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Data      []byte `gorm:"not null"`
	CreatedAt time.Time
}

// SQL is a Log stored in a database table through GORM. Ids are the
// table's auto-increment keys. It is a component.Component: Start connects
// and migrates the table, Stop closes the connection pool.
//
// Readers wake as soon as an append goes through the same SQL, and poll
// every PollInterval for appends made by other processes.
type SQL[T any] struct {
	cfg       SQLConfig
	codec     codec.Codec[T]
	log       *logger.Logger
	dialector gorm.Dialector

	mu     sync.RWMutex
	db     *gorm.DB
	poll   time.Duration
	closed bool
	notify chan struct{}
}

var (
	_ Log[int]              = (*SQL[int])(nil)
	_ component.Component   = (*SQL[int])(nil)
	_ component.Describable = (*SQL[int])(nil)
)

// NewSQL creates a SQL log. No connection is made until Start.
func NewSQL[T any](cfg SQLConfig, c codec.Codec[T], log *logger.Logger) *SQL[T] {
	cfg.ApplyDefaults()
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	return &SQL[T]{
		cfg:    cfg,
		codec:  c,
		log:    log.WithComponent("eventlog.sql"),
		notify: make(chan struct{}),
	}
}

// WithDialector replaces the SQLite driver, e.g. with a PostgreSQL dialector.
func (s *SQL[T]) WithDialector(d gorm.Dialector) *SQL[T] {
	s.dialector = d
	return s
}

// Name returns the component name.
func (s *SQL[T]) Name() string { return "eventlog" }

// Start opens the database, retrying failed attempts, and creates the
// table if it does not exist.
func (s *SQL[T]) Start(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return fmt.Errorf("sql event log config: %w", err)
	}
	dialector := s.dialector
	if dialector == nil {
		if s.cfg.DSN == "" {
			return fmt.Errorf("sql event log config: dsn is required")
		}
		dialector = sqlite.Open(s.cfg.DSN)
	}

	lifetime, poll, slow := s.cfg.durations()
	gormCfg := &gorm.Config{
		Logger: newGormLogger(s.log, slow, parseGormLevel(s.cfg.LogLevel)),
	}

	retry := s.cfg.Retry
	retry.OnRetry = func(attempt int, err error, backoff time.Duration) {
		s.log.Warn("Database connection attempt failed, retrying", logger.Fields(
			logger.FieldAttempt, attempt,
			logger.FieldError, err.Error(),
			"backoff", backoff.String(),
		))
	}
	db, err := resilience.Retry(ctx, retry, func() (*gorm.DB, error) {
		db, err := gorm.Open(dialector, gormCfg)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.StorageError(sqlBackend, err)
	}

	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(s.cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(s.cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(lifetime)

	if err := db.WithContext(ctx).Table(s.cfg.Table).AutoMigrate(&sqlEntry{}); err != nil {
		_ = sqlDB.Close()
		return errors.StorageError(sqlBackend, fmt.Errorf("migrate %s: %w", s.cfg.Table, err))
	}

	s.mu.Lock()
	s.db = db
	s.poll = poll
	s.closed = false
	s.mu.Unlock()

	s.log.Info("SQL event log started", logger.Fields(
		"driver", dialector.Name(),
		"table", s.cfg.Table,
		"poll_interval", s.cfg.PollInterval,
	))
	return nil
}

// Stop closes the connection pool. Safe to call multiple times.
func (s *SQL[T]) Stop(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil || s.closed {
		return nil
	}
	s.closed = true
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	s.log.Info("Closing SQL event log")
	return sqlDB.Close()
}

// Health pings the database.
func (s *SQL[T]) Health(ctx context.Context) component.Health {
	db, err := s.conn()
	if err != nil {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: "database not initialized"}
	}
	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		return component.Health{Name: s.Name(), Status: component.StatusUnhealthy, Message: fmt.Sprintf("ping failed: %v", err)}
	}
	return component.Health{Name: s.Name(), Status: component.StatusHealthy}
}

// Describe returns a summary for the startup log.
func (s *SQL[T]) Describe() component.Description {
	driver := "sqlite"
	if s.dialector != nil {
		driver = s.dialector.Name()
	}
	return component.Description{
		Name:    "SQL event log",
		Type:    "eventlog",
		Details: fmt.Sprintf("%s table=%s pool=%d/%d", driver, s.cfg.Table, s.cfg.MaxOpenConns, s.cfg.MaxIdleConns),
	}
}

func (s *SQL[T]) conn() (*gorm.DB, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil || s.closed {
		return nil, errors.ServiceUnavailable("sql event log")
	}
	return s.db, nil
}

// waitChan returns the channel closed by the next local append.
func (s *SQL[T]) waitChan() <-chan struct{} {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.notify
}

func (s *SQL[T]) wake() {
	s.mu.Lock()
	close(s.notify)
	s.notify = make(chan struct{})
	s.mu.Unlock()
}

// Append inserts v and wakes local readers.
func (s *SQL[T]) Append(ctx context.Context, v T) (string, error) {
	db, err := s.conn()
	if err != nil {
		return "", err
	}
	data, err := s.codec.Serialize(v)
	if err != nil {
		return "", errors.SerializationFailed(err)
	}

	entry := sqlEntry{Data: data}
	if err := db.WithContext(ctx).Table(s.cfg.Table).Create(&entry).Error; err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", errors.StorageError(sqlBackend, err)
	}
	s.wake()
	return strconv.FormatInt(entry.ID, 10), nil
}

// Read returns the entries whose id is greater than afterID. Ids of
// deleted rows are valid resumption points.
func (s *SQL[T]) Read(_ context.Context, afterID string) (pipeline.Iterator[tracked.Envelope[T]], error) {
	if err := validation.New().Numeric("after_id", afterID).Validate(); err != nil {
		return nil, err
	}
	db, err := s.conn()
	if err != nil {
		return nil, err
	}
	var last int64
	if afterID != "" {
		last, _ = strconv.ParseInt(afterID, 10, 64)
	}

	s.mu.RLock()
	poll := s.poll
	s.mu.RUnlock()

	return &sqlIter[T]{
		s:    s,
		db:   db,
		last: last,
		poll: poll,
		done: make(chan struct{}),
	}, nil
}

type sqlIter[T any] struct {
	s    *SQL[T]
	db   *gorm.DB
	last int64
	poll time.Duration
	buf  []sqlEntry
	done chan struct{}
	once sync.Once
}

func (it *sqlIter[T]) Next(ctx context.Context) (tracked.Envelope[T], bool, error) {
	for len(it.buf) == 0 {
		if it.closed() {
			return tracked.Envelope[T]{}, false, nil
		}
		// Taken before the query so an append racing with it is not missed.
		wait := it.s.waitChan()
		if err := it.fetch(ctx); err != nil {
			if it.closed() {
				return tracked.Envelope[T]{}, false, nil
			}
			return tracked.Envelope[T]{}, false, err
		}
		if len(it.buf) > 0 {
			break
		}

		timer := time.NewTimer(it.poll)
		select {
		case <-wait:
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return tracked.Envelope[T]{}, false, ctx.Err()
		case <-it.done:
			timer.Stop()
			return tracked.Envelope[T]{}, false, nil
		}
		timer.Stop()
	}
	return it.pop()
}

func (it *sqlIter[T]) TryNext(ctx context.Context) (tracked.Envelope[T], bool, error) {
	if it.closed() {
		return tracked.Envelope[T]{}, false, nil
	}
	if len(it.buf) == 0 {
		if err := it.fetch(ctx); err != nil {
			return tracked.Envelope[T]{}, false, err
		}
		if len(it.buf) == 0 {
			return tracked.Envelope[T]{}, false, nil
		}
	}
	return it.pop()
}

func (it *sqlIter[T]) fetch(ctx context.Context) error {
	var rows []sqlEntry
	err := it.db.WithContext(ctx).
		Table(it.s.cfg.Table).
		Where("id > ?", it.last).
		Order("id").
		Limit(it.s.cfg.BatchSize).
		Find(&rows).Error
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return errors.StorageError(sqlBackend, err)
	}
	it.buf = rows
	return nil
}

func (it *sqlIter[T]) pop() (tracked.Envelope[T], bool, error) {
	entry := it.buf[0]
	it.buf = it.buf[1:]
	it.last = entry.ID

	id := strconv.FormatInt(entry.ID, 10)
	v, err := it.s.codec.Deserialize(entry.Data)
	if err != nil {
		return tracked.Envelope[T]{}, false, errors.SerializationFailed(err).WithDetail("id", id)
	}
	return tracked.New(id, v), true, nil
}

func (it *sqlIter[T]) closed() bool {
	select {
	case <-it.done:
		return true
	default:
		return false
	}
}

// Close releases a reader waiting in Next.
func (it *sqlIter[T]) Close() error {
	it.once.Do(func() { close(it.done) })
	return nil
}
