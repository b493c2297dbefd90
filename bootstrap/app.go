package bootstrap

import (
	"context"
	stderrors "errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/logger"
)

// Hook runs during startup or shutdown.
type Hook func(ctx context.Context) error

// App owns a service's components and runs them from start to shutdown.
type App[C Config] struct {
	Name       string
	Version    string
	Cfg        C
	Components *component.Registry
	Logger     *logger.Logger
	Summary    *Summary

	gracefulTimeout time.Duration
	onStart         []Hook
	onStop          []Hook
}

// NewApp applies defaults to cfg, validates it and sets up logging.
func NewApp[C Config](cfg C, opts ...Option) (*App[C], error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}
	o := options{gracefulTimeout: defaultGracefulTimeout}
	for _, opt := range opts {
		opt(&o)
	}

	base := cfg.GetServiceConfig()
	log := o.logger
	if log == nil {
		logger.Init(base.Logging)
		log = logger.GetGlobalLogger()
	}
	return &App[C]{
		Name:            base.Name,
		Version:         base.Version,
		Cfg:             cfg,
		Components:      component.NewRegistry(component.WithLogger(log)),
		Logger:          log,
		Summary:         NewSummary(base.Name, base.Version),
		gracefulTimeout: o.gracefulTimeout,
	}, nil
}

// RegisterComponent adds c to the registry. Components start in the order
// they are registered.
func (a *App[C]) RegisterComponent(c component.Component) error {
	return a.Components.Register(c)
}

// OnStart adds hooks that run after every component has started.
func (a *App[C]) OnStart(hooks ...Hook) { a.onStart = append(a.onStart, hooks...) }

// OnStop adds hooks that run before components are stopped, in the order
// they were added.
func (a *App[C]) OnStop(hooks ...Hook) { a.onStop = append(a.onStop, hooks...) }

// Run starts the app and blocks until SIGINT, SIGTERM or ctx is done, then
// shuts down.
func (a *App[C]) Run(ctx context.Context) error {
	return a.RunTask(ctx, func(ctx context.Context) error {
		a.Logger.Info("Application ready, waiting for shutdown signal")
		<-ctx.Done()
		return nil
	})
}

// RunTask starts the app, runs task with a context that is cancelled on
// SIGINT or SIGTERM, and shuts down when task returns. The task's error
// takes precedence over a shutdown error.
func (a *App[C]) RunTask(ctx context.Context, task func(ctx context.Context) error) error {
	if err := a.start(ctx); err != nil {
		_ = a.shutdown()
		return err
	}

	taskCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	taskErr := task(taskCtx)
	if taskCtx.Err() != nil && ctx.Err() == nil {
		a.Logger.Info("Received shutdown signal")
	}
	stop()

	stopErr := a.shutdown()
	if taskErr != nil {
		return taskErr
	}
	return stopErr
}

func (a *App[C]) start(ctx context.Context) error {
	begin := time.Now()
	a.Logger.Info("Starting application", logger.Fields("name", a.Name, "version", a.Version))

	if err := a.Components.StartAll(ctx); err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}
	for i, h := range a.onStart {
		if err := h(ctx); err != nil {
			return fmt.Errorf("start hook %d: %w", i, err)
		}
	}

	health := a.Components.HealthAll(ctx)
	if status := component.Overall(health); status != component.StatusHealthy {
		a.Logger.Warn("Ready check reported issues", logger.Fields("status", string(status)))
	}
	a.Summary.SetStartupDuration(time.Since(begin))
	a.Summary.DisplaySummary(ctx, a.Components, a.Logger)
	return nil
}

// shutdown runs every stop hook even if one fails, then stops components.
func (a *App[C]) shutdown() error {
	a.Logger.Info("Shutting down application", logger.Fields("timeout", a.gracefulTimeout.String()))
	ctx, cancel := context.WithTimeout(context.Background(), a.gracefulTimeout)
	defer cancel()

	var errs []error
	for i, h := range a.onStop {
		if err := h(ctx); err != nil {
			a.Logger.Error("Stop hook failed", logger.Fields("hook", i, logger.FieldError, err.Error()))
			errs = append(errs, err)
		}
	}
	if err := a.Components.StopAll(ctx); err != nil {
		errs = append(errs, err)
	}
	a.Logger.Info("Application shutdown complete")
	return stderrors.Join(errs...)
}
