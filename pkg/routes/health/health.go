// Package health exposes liveness, readiness, and dependency health
// endpoints consumed by container orchestrators and load balancers.
package health

import (
	"context"
	"errors"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
)

const probeTimeout = 5 * time.Second

// Pinger is the slice of the Redis client the checker needs.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckResult reports the outcome of a single dependency probe.
type CheckResult struct {
	Status  string `json:"status"`
	Latency string `json:"latency,omitempty"`
	Message string `json:"message,omitempty"`
}

// HealthStatus is the aggregate body returned by the health endpoint.
type HealthStatus struct {
	Status  string                  `json:"status"`
	Version string                  `json:"version"`
	Checks  map[string]*CheckResult `json:"checks"`
}

// Checker probes the service's backing dependencies and tracks readiness.
type Checker struct {
	db      *sqlx.DB
	redis   Pinger
	version string
	ready   atomic.Bool
}

func NewChecker(db *sqlx.DB, redis Pinger, version string) *Checker {
	return &Checker{db: db, redis: redis, version: version}
}

// SetReady flips the readiness gate. The startup sequence calls this once
// all dependencies have come up, and again on shutdown.
func (c *Checker) SetReady(ready bool) {
	c.ready.Store(ready)
}

func (c *Checker) RegisterRoutes(e *echo.Echo) {
	e.GET("/api/v1/health", c.Health)
	e.GET("/api/v1/health/live", c.Live)
	e.GET("/api/v1/health/ready", c.Ready)
}

// Live always succeeds while the process can serve requests.
func (c *Checker) Live(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports whether startup has completed.
func (c *Checker) Ready(ctx echo.Context) error {
	if !c.ready.Load() {
		return ctx.JSON(http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
	}
	return ctx.JSON(http.StatusOK, map[string]string{"status": "ready"})
}

type probe struct {
	name string
	ping func(ctx context.Context) error
}

func (c *Checker) probes() []probe {
	ps := []probe{{name: "database", ping: c.pingDatabase}}
	if c.redis != nil {
		ps = append(ps, probe{name: "redis", ping: c.redis.Ping})
	}
	return ps
}

func (c *Checker) pingDatabase(ctx context.Context) error {
	if c.db == nil {
		return errors.New("database not configured")
	}
	return c.db.PingContext(ctx)
}

func runProbe(ctx context.Context, p probe) *CheckResult {
	start := time.Now()
	if err := p.ping(ctx); err != nil {
		return &CheckResult{Status: "unhealthy", Message: err.Error()}
	}
	return &CheckResult{Status: "healthy", Latency: time.Since(start).String()}
}

// Health probes every dependency and returns 503 if any probe fails.
func (c *Checker) Health(ctx echo.Context) error {
	reqCtx, cancel := context.WithTimeout(ctx.Request().Context(), probeTimeout)
	defer cancel()

	status := HealthStatus{
		Status:  "healthy",
		Version: c.version,
		Checks:  make(map[string]*CheckResult),
	}

	for _, p := range c.probes() {
		result := runProbe(reqCtx, p)
		status.Checks[p.name] = result
		if result.Status != "healthy" {
			status.Status = "unhealthy"
		}
	}

	code := http.StatusOK
	if status.Status != "healthy" {
		code = http.StatusServiceUnavailable
	}
	return ctx.JSON(code, status)
}
