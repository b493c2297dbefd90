package component

import "context"

// HealthStatus represents the health state of a component.
type HealthStatus string

const (
	StatusHealthy   HealthStatus = "healthy"
	StatusUnhealthy HealthStatus = "unhealthy"
	StatusDegraded  HealthStatus = "degraded"
)

// Health holds health information for a component.
type Health struct {
	Name    string       `json:"name"`
	Status  HealthStatus `json:"status"`
	Message string       `json:"message,omitempty"`
}

// Component represents a lifecycle-managed piece of infrastructure.
type Component interface {
	// Name returns the unique name of the component for registration.
	Name() string

	// Start initializes and starts the component.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the component and releases resources.
	Stop(ctx context.Context) error

	// Health returns the current health status of the component.
	Health(ctx context.Context) Health
}

// Description holds summary information logged at startup.
type Description struct {
	// Name is the human-readable display name. If empty, Name() is used.
	Name string
	// Type categorizes the component: "eventlog", "server".
	Type string
	// Details is a one-liner such as "localhost:6379 stream=events".
	Details string
}

// Describable is optionally implemented by components that report how they
// are configured.
type Describable interface {
	Describe() Description
}

// Overall folds component health into one status: any unhealthy component
// makes the whole unhealthy, otherwise any degraded one degrades it.
func Overall(results []Health) HealthStatus {
	status := StatusHealthy
	for _, h := range results {
		switch h.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded:
			status = StatusDegraded
		}
	}
	return status
}

// Route is an HTTP route exposed by a component.
type Route struct {
	Method  string
	Path    string
	Handler string
}

// RouteProvider is optionally implemented by components that serve HTTP
// routes, so the startup summary can list them.
type RouteProvider interface {
	Routes() []Route
}
