package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
)

// BreakerSource reports per-host circuit breaker states of the fetch client
type BreakerSource interface {
	BreakerStates() map[string]string
}

// SandboxSummary counts live sandbox resources
type SandboxSummary struct {
	Instances     int `json:"instances"`
	PendingTimers int `json:"pending_timers"`
	Shortcuts     int `json:"shortcuts"`
	Listeners     int `json:"listeners"`
	Sockets       int `json:"sockets"`
}

// SystemSnapshot represents a snapshot of every subsystem
type SystemSnapshot struct {
	Timestamp time.Time            `json:"timestamp"`
	HTTP      *monitoring.Snapshot `json:"http,omitempty"`
	Apps      types.Stats          `json:"apps"`
	Sandbox   SandboxSummary       `json:"sandbox"`
	Registry  types.RegistryStats  `json:"registry"`
	FS        types.FSStats        `json:"fs"`
	Bus       bus.Stats            `json:"bus"`
	Breakers  map[string]string    `json:"fetch_breakers,omitempty"`
}

// Snapshot collects a SystemSnapshot. Store read failures are logged and
// leave the matching section empty.
func (h *Handlers) Snapshot(ctx context.Context) SystemSnapshot {
	snap := SystemSnapshot{
		Timestamp: time.Now(),
		Apps:      h.apps.Stats(),
		Bus:       h.bus.Stats(),
	}
	if h.metrics != nil && h.metrics.metrics != nil {
		s := h.metrics.metrics.Snapshot()
		snap.HTTP = &s
	}

	instances := h.host.List()
	snap.Sandbox = SandboxSummary{
		Instances:     len(instances),
		PendingTimers: h.host.PendingTimers(),
		Shortcuts:     len(h.host.Shortcuts()),
	}
	for _, info := range instances {
		snap.Sandbox.Listeners += info.Resources.Listeners
		snap.Sandbox.Sockets += info.Sockets
	}

	var err error
	if snap.Registry, err = h.registry.Stats(ctx); err != nil {
		h.logger.Warn("registry stats unavailable", zap.Error(err))
	}
	if snap.FS, err = h.fs.Stats(ctx); err != nil {
		h.logger.Warn("fs stats unavailable", zap.Error(err))
	}
	if h.breakers != nil {
		snap.Breakers = h.breakers.BreakerStates()
	}
	return snap
}

// SystemStats returns the aggregated snapshot
func (h *Handlers) SystemStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"stats":   h.Snapshot(c.Request.Context()),
	})
}
