package main

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/eventlog"
	"github.com/kbukum/eventstream/logger"
)

// demo appends a counter event to the log every interval.
type demo struct {
	events   eventlog.Log[Event]
	interval time.Duration
	log      *logger.Logger

	seq      atomic.Int64
	failures atomic.Int64

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

var _ component.Component = (*demo)(nil)

func newDemo(events eventlog.Log[Event], cfg DemoConfig, log *logger.Logger) *demo {
	return &demo{events: events, interval: cfg.Interval, log: log.WithComponent("demo")}
}

func (d *demo) Name() string { return "demo" }

func (d *demo) Start(_ context.Context) error {
	if d.interval <= 0 {
		d.log.Info("Demo generator disabled")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	d.mu.Lock()
	d.cancel = cancel
	d.done = make(chan struct{})
	done := d.done
	d.mu.Unlock()

	go d.run(ctx, done)
	d.log.Info("Demo generator started", logger.Fields("interval", d.interval.String()))
	return nil
}

func (d *demo) run(ctx context.Context, done chan struct{}) {
	defer close(done)
	t := time.NewTicker(d.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			seq := d.seq.Add(1)
			id, err := d.events.Append(ctx, Event{Seq: seq, Message: fmt.Sprintf("tick %d", seq), At: now.UTC()})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				d.failures.Add(1)
				d.log.Warn("Demo append failed", logger.Fields(logger.FieldError, err.Error()))
				continue
			}
			d.failures.Store(0)
			d.log.Debug("Demo event appended", logger.Fields(logger.FieldEventID, id))
		}
	}
}

func (d *demo) Stop(_ context.Context) error {
	d.mu.Lock()
	cancel, done := d.cancel, d.done
	d.cancel = nil
	d.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	<-done
	return nil
}

// Health is degraded while appends keep failing.
func (d *demo) Health(_ context.Context) component.Health {
	if n := d.failures.Load(); n > 0 {
		return component.Health{
			Name:    d.Name(),
			Status:  component.StatusDegraded,
			Message: fmt.Sprintf("%d consecutive append failures", n),
		}
	}
	return component.Health{Name: d.Name(), Status: component.StatusHealthy}
}
