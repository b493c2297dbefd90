package component

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"time"

	"github.com/kbukum/eventstream/logger"
)

const defaultStopTimeout = 10 * time.Second

// Registry starts components in registration order and stops them in
// reverse. A failed start rolls back the components started before it.
type Registry struct {
	mu          sync.RWMutex
	order       []Component
	byName      map[string]Component
	running     map[string]bool
	log         *logger.Logger
	stopTimeout time.Duration
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithLogger sets the logger for lifecycle messages. The global logger is
// used otherwise.
func WithLogger(l *logger.Logger) RegistryOption {
	return func(r *Registry) { r.log = l }
}

// WithStopTimeout bounds each component's Stop call.
func WithStopTimeout(d time.Duration) RegistryOption {
	return func(r *Registry) {
		if d > 0 {
			r.stopTimeout = d
		}
	}
}

// NewRegistry creates an empty registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName:      make(map[string]Component),
		running:     make(map[string]bool),
		stopTimeout: defaultStopTimeout,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logger.GetGlobalLogger()
	}
	r.log = r.log.WithComponent("registry")
	return r
}

// Register appends c. Names must be unique.
func (r *Registry) Register(c Component) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := c.Name()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("component %s already registered", name)
	}
	r.order = append(r.order, c)
	r.byName[name] = c
	r.log.Debug("Component registered", logger.Fields(logger.FieldComponent, name))
	return nil
}

// StartAll starts every component that is not already running. If one
// fails, the ones this call started are stopped again before returning.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var started []Component
	for _, c := range r.order {
		name := c.Name()
		if r.running[name] {
			continue
		}
		if err := c.Start(ctx); err != nil {
			r.log.Error("Component start failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
			for i := len(started) - 1; i >= 0; i-- {
				_ = r.stopOne(context.Background(), started[i])
			}
			return fmt.Errorf("failed to start %s: %w", name, err)
		}
		r.running[name] = true
		started = append(started, c)

		fields := logger.Fields(logger.FieldComponent, name)
		if d, ok := c.(Describable); ok {
			desc := d.Describe()
			fields["type"] = desc.Type
			fields["details"] = desc.Details
		}
		r.log.Info("Component started", fields)
	}
	return nil
}

// StopAll stops running components in reverse registration order and joins
// their errors.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for i := len(r.order) - 1; i >= 0; i-- {
		c := r.order[i]
		if !r.running[c.Name()] {
			continue
		}
		if err := r.stopOne(ctx, c); err != nil {
			errs = append(errs, err)
		}
	}
	return stderrors.Join(errs...)
}

// stopOne must be called with mu held.
func (r *Registry) stopOne(ctx context.Context, c Component) error {
	name := c.Name()
	stopCtx, cancel := context.WithTimeout(ctx, r.stopTimeout)
	defer cancel()

	delete(r.running, name)
	if err := c.Stop(stopCtx); err != nil {
		r.log.Error("Component stop failed", logger.Fields(logger.FieldComponent, name, logger.FieldError, err.Error()))
		return fmt.Errorf("failed to stop %s: %w", name, err)
	}
	r.log.Info("Component stopped", logger.Fields(logger.FieldComponent, name))
	return nil
}

// HealthAll reports every component's health in registration order.
func (r *Registry) HealthAll(ctx context.Context) []Health {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Health, len(r.order))
	for i, c := range r.order {
		out[i] = c.Health(ctx)
	}
	return out
}

// Get returns the component registered under name, or nil.
func (r *Registry) Get(name string) Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.byName[name]
}

// All returns the components in registration order.
func (r *Registry) All() []Component {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Component(nil), r.order...)
}
