// Package endpoint holds the gin handlers every eventstream server exposes
// next to its streams: health, liveness, readiness and build info.
package endpoint

import (
	"context"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/kbukum/eventstream/component"
	"github.com/kbukum/eventstream/version"
)

// HealthChecker reports the health of registered components.
type HealthChecker func(ctx context.Context) []component.Health

var startTime = time.Now()

// respond writes body with the service name and a UTC timestamp added.
func respond(c *gin.Context, code int, service string, body gin.H) {
	body["service"] = service
	body["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	c.JSON(code, body)
}

func check(c *gin.Context, checker HealthChecker) []component.Health {
	if checker == nil {
		return nil
	}
	return checker(c.Request.Context())
}

// Health lists every component's status. Only an unhealthy component
// turns the response into a 503; a degraded one still answers 200.
func Health(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		components := check(c, checker)
		status := component.Overall(components)
		code := http.StatusOK
		if status == component.StatusUnhealthy {
			code = http.StatusServiceUnavailable
		}
		respond(c, code, serviceName, gin.H{"status": status, "components": components})
	}
}

// Liveness answers 200 while the process can serve HTTP at all.
func Liveness(serviceName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		respond(c, http.StatusOK, serviceName, gin.H{"status": "alive"})
	}
}

// Readiness answers 503 while any component is unhealthy and names the
// components holding it back.
func Readiness(serviceName string, checker HealthChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		var waiting []string
		for _, h := range check(c, checker) {
			if h.Status == component.StatusUnhealthy {
				waiting = append(waiting, h.Name)
			}
		}
		if len(waiting) > 0 {
			respond(c, http.StatusServiceUnavailable, serviceName, gin.H{"status": "not_ready", "waiting_on": waiting})
			return
		}
		respond(c, http.StatusOK, serviceName, gin.H{"status": "ready"})
	}
}

// Info reports the configured version, how the binary was built and a few
// runtime figures.
func Info(serviceName, serviceVersion string) gin.HandlerFunc {
	build := version.Get()
	return func(c *gin.Context) {
		respond(c, http.StatusOK, serviceName, gin.H{
			"version":    serviceVersion,
			"build":      build,
			"goroutines": runtime.NumGoroutine(),
			"uptime":     time.Since(startTime).Round(time.Second).String(),
		})
	}
}
