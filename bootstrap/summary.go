package bootstrap

import (
	"context"
	"time"

	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/logger"
)

// InfrastructureInfo describes a started component.
type InfrastructureInfo struct {
	Name    string
	Type    string
	Details string
	Status  component.HealthStatus
	Message string
}

// RouteInfo represents a registered HTTP route.
type RouteInfo struct {
	Method  string
	Path    string
	Handler string
}

// Summary collects what the application started and logs it once ready.
type Summary struct {
	serviceName     string
	version         string
	startupDuration time.Duration
	infrastructure  []InfrastructureInfo
	routes          []RouteInfo
}

// NewSummary creates a new bootstrap summary tracker.
func NewSummary(serviceName, version string) *Summary {
	return &Summary{serviceName: serviceName, version: version}
}

// SetStartupDuration records the total startup time.
func (s *Summary) SetStartupDuration(d time.Duration) {
	s.startupDuration = d
}

// TrackRoute records an HTTP route.
func (s *Summary) TrackRoute(method, path, handler string) {
	s.routes = append(s.routes, RouteInfo{Method: method, Path: path, Handler: handler})
}

// collect gathers descriptions, health and routes from the registry.
func (s *Summary) collect(ctx context.Context, registry *component.Registry) {
	if registry == nil {
		return
	}
	health := make(map[string]component.Health)
	for _, h := range registry.HealthAll(ctx) {
		health[h.Name] = h
	}
	for _, c := range registry.All() {
		info := InfrastructureInfo{Name: c.Name()}
		if d, ok := c.(component.Describable); ok {
			desc := d.Describe()
			if desc.Name != "" {
				info.Name = desc.Name
			}
			info.Type = desc.Type
			info.Details = desc.Details
		}
		if h, ok := health[c.Name()]; ok {
			info.Status = h.Status
			info.Message = h.Message
		}
		s.infrastructure = append(s.infrastructure, info)

		if rp, ok := c.(component.RouteProvider); ok {
			for _, r := range rp.Routes() {
				s.TrackRoute(r.Method, r.Path, r.Handler)
			}
		}
	}
}

// DisplaySummary logs the startup summary, one line per component and route.
func (s *Summary) DisplaySummary(ctx context.Context, registry *component.Registry, log *logger.Logger) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	s.collect(ctx, registry)

	log.Info("Service started", logger.Fields(
		"service", s.serviceName,
		"version", s.version,
		"startup_ms", s.startupDuration.Milliseconds(),
		"components", len(s.infrastructure),
		"routes", len(s.routes),
	))
	for _, inf := range s.infrastructure {
		fields := logger.Fields("name", inf.Name, "type", inf.Type, "details", inf.Details, "status", string(inf.Status))
		if inf.Message != "" {
			fields["message"] = inf.Message
		}
		if inf.Status == component.StatusHealthy {
			log.Info("Component", fields)
		} else {
			log.Warn("Component", fields)
		}
	}
	for _, r := range s.routes {
		log.Info("Route", logger.Fields("method", r.Method, "path", r.Path, "handler", r.Handler))
	}
}
