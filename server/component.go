package server

import (
	"cmp"
	"context"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/eventstream/component"
)

const componentName = "http-server"

var (
	_ component.Component     = (*ServerComponent)(nil)
	_ component.Describable   = (*ServerComponent)(nil)
	_ component.RouteProvider = (*ServerComponent)(nil)
)

// systemPaths are the routes RegisterDefaultEndpoints adds.
var systemPaths = map[string]bool{
	"/health": true,
	"/alive":  true,
	"/ready":  true,
	"/info":   true,
}

// ServerComponent registers a Server with a component.Registry.
type ServerComponent struct {
	server *Server
}

func NewComponent(s *Server) *ServerComponent {
	return &ServerComponent{server: s}
}

func (sc *ServerComponent) Name() string { return componentName }

func (sc *ServerComponent) Start(ctx context.Context) error { return sc.server.Start(ctx) }

func (sc *ServerComponent) Stop(ctx context.Context) error { return sc.server.Stop(ctx) }

// Health is unhealthy until the listener is bound.
func (sc *ServerComponent) Health(context.Context) component.Health {
	h := component.Health{Name: componentName, Status: component.StatusHealthy}
	sc.server.mu.Lock()
	if sc.server.listener == nil {
		h.Status = component.StatusUnhealthy
		h.Message = "not listening on " + sc.server.httpServer.Addr
	}
	sc.server.mu.Unlock()
	return h
}

func (sc *ServerComponent) Describe() component.Description {
	details := sc.server.Addr() + " http/1.1+h2c"
	if origins := sc.server.config.CORS.AllowedOrigins; len(origins) > 0 {
		details += " cors=" + strings.Join(origins, ",")
	}
	return component.Description{Name: "HTTP Server", Type: "server", Details: details}
}

// Routes lists the Gin routes by path, with the system probes last.
func (sc *ServerComponent) Routes() []component.Route {
	ginRoutes := sc.server.engine.Routes()
	slices.SortFunc(ginRoutes, func(a, b gin.RouteInfo) int {
		if sa, sb := systemPaths[a.Path], systemPaths[b.Path]; sa != sb {
			if sa {
				return 1
			}
			return -1
		}
		return cmp.Or(cmp.Compare(a.Path, b.Path), cmp.Compare(a.Method, b.Method))
	})

	routes := make([]component.Route, len(ginRoutes))
	for i, r := range ginRoutes {
		routes[i] = component.Route{Method: r.Method, Path: r.Path, Handler: handlerName(r.Handler)}
	}
	return routes
}

// handlerName trims Gin's handler name to type and method, e.g.
// "github.com/x/y/producer.(*Handler[...]).Gin.func1" to "Handler[...].Gin".
func handlerName(full string) string {
	name := strings.TrimSuffix(full, "-fm")
	name = name[strings.LastIndex(name, "/")+1:]
	name = strings.NewReplacer("(*", "", ")", "").Replace(name)

	parts := strings.Split(name, ".")
	for len(parts) > 1 && strings.HasPrefix(parts[len(parts)-1], "func") {
		parts = parts[:len(parts)-1]
	}
	if len(parts) > 1 {
		parts = parts[1:]
	}
	return strings.Join(parts, ".")
}
