package main

import (
	"context"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/kbukum/eventstream/bootstrap"
	"github.com/kbukum/eventstream/codec"
	"github.com/kbukum/eventstream/errors"
	"github.com/kbukum/eventstream/eventlog"
	"github.com/kbukum/eventstream/logger"
	"github.com/kbukum/eventstream/observability"
	"github.com/kbukum/eventstream/producer"
	"github.com/kbukum/eventstream/server"
	"github.com/kbukum/eventstream/validation"
)

func newServeCmd(root *rootOptions) *cobra.Command {
	var (
		port    int
		backend string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the event stream server",
		Long: `Serve GET /events as a resumable event stream backed by the configured
event log, and accept new events on POST /events.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Server.Port = port
			}
			if backend != "" {
				cfg.Log.Backend = backend
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	cmd.Flags().IntVarP(&port, "port", "p", 8080, "Port to listen on (overrides server.port)")
	cmd.Flags().StringVarP(&backend, "backend", "b", "", "Event log backend: memory, redis or sql (overrides log.backend)")
	return cmd
}

func runServe(ctx context.Context, cfg *Config) error {
	app, err := bootstrap.NewApp(cfg)
	if err != nil {
		return err
	}
	if err := setupTelemetry(ctx, app); err != nil {
		return err
	}
	if _, err := wireServe(app); err != nil {
		return err
	}
	return app.Run(ctx)
}

// setupTelemetry installs the OTLP tracer and meter providers when enabled
// and flushes them on shutdown.
func setupTelemetry(ctx context.Context, app *bootstrap.App[*Config]) error {
	cfg := app.Cfg
	if cfg.Tracer.Enabled {
		tp, err := observability.InitTracer(ctx, &cfg.Tracer)
		if err != nil {
			return fmt.Errorf("tracer: %w", err)
		}
		app.OnStop(tp.Shutdown)
	}
	if cfg.Meter.Enabled {
		mp, err := observability.InitMeter(ctx, &cfg.Meter)
		if err != nil {
			return fmt.Errorf("meter: %w", err)
		}
		app.OnStop(mp.Shutdown)
	}
	return nil
}

// wireServe registers the event log, the demo generator and the HTTP server
// with app, in that start order.
func wireServe(app *bootstrap.App[*Config]) (*server.Server, error) {
	cfg := app.Cfg

	metrics, err := observability.NewStreamMetrics(observability.Meter(serviceName))
	if err != nil {
		return nil, fmt.Errorf("stream metrics: %w", err)
	}

	events, err := newEventLog(app)
	if err != nil {
		return nil, err
	}
	if err := app.RegisterComponent(newDemo(events, cfg.Demo, app.Logger)); err != nil {
		return nil, err
	}

	srv := server.New(cfg.Server, app.Logger)
	srv.ApplyDefaults(cfg.Name, cfg.Version, app.Components.HealthAll)

	stream := producer.NewHandler(events.Read, codec.JSON[Event](), cfg.Producer,
		producer.WithMetrics(metrics),
	)
	api := &eventsAPI{events: events, log: app.Logger.WithComponent("api")}

	engine := srv.GinEngine()
	engine.GET("/events", stream.Gin())
	engine.POST("/events", api.append)

	if err := app.RegisterComponent(server.NewComponent(srv)); err != nil {
		return nil, err
	}
	return srv, nil
}

func newEventLog(app *bootstrap.App[*Config]) (eventlog.Log[Event], error) {
	switch app.Cfg.Log.Backend {
	case BackendRedis:
		r := eventlog.NewRedis(app.Cfg.Log.Redis, codec.JSON[Event](), app.Logger)
		if err := app.RegisterComponent(r); err != nil {
			return nil, err
		}
		return r, nil
	case BackendSQL:
		s := eventlog.NewSQL(app.Cfg.Log.SQL, codec.JSON[Event](), app.Logger)
		if err := app.RegisterComponent(s); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return eventlog.NewMemory[Event](), nil
	}
}

type eventsAPI struct {
	events eventlog.Log[Event]
	log    *logger.Logger
}

type appendResponse struct {
	ID string `json:"id"`
}

func (a *eventsAPI) append(c *gin.Context) {
	var ev Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		server.RespondWithError(c, errors.InvalidFormat("body", "JSON event").WithCause(err))
		return
	}
	if err := validation.Validate(&ev); err != nil {
		server.RespondWithError(c, err)
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	id, err := a.events.Append(c.Request.Context(), ev)
	if err != nil {
		a.log.Error("append failed", logger.Fields(logger.FieldError, err.Error()))
		server.RespondWithError(c, err)
		return
	}
	server.RespondOK(c, appendResponse{ID: id})
}
