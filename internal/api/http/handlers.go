package http

import (
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/app"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/notify"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/settings"
	"github.com/GriffinCanCode/WebOS/backend/internal/providers/vfs"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// Version is reported by the root endpoint
const Version = "1.0.0"

var errInvalidLimit = errors.New("limit must be a non-negative integer")

// Deps are the services the handlers expose
type Deps struct {
	Apps     *app.Manager
	Host     *sandbox.Host
	Registry *registry.Manager
	Settings *settings.Store
	Notify   *notify.Center
	Bus      *bus.Bus
	FS       *vfs.FS
	Breakers BreakerSource
	Metrics  *HandlerMetrics
	Logger   *zap.Logger
}

// Handlers contains all HTTP handlers
type Handlers struct {
	apps     *app.Manager
	host     *sandbox.Host
	registry *registry.Manager
	settings *settings.Store
	notify   *notify.Center
	bus      *bus.Bus
	fs       *vfs.FS
	breakers BreakerSource
	metrics  *HandlerMetrics
	bodies   *utils.JSONSizeValidator
	logger   *zap.Logger

	mu     sync.RWMutex
	locked bool
}

// NewHandlers creates a new handler set
func NewHandlers(deps Deps) *Handlers {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handlers{
		apps:     deps.Apps,
		host:     deps.Host,
		registry: deps.Registry,
		settings: deps.Settings,
		notify:   deps.Notify,
		bus:      deps.Bus,
		fs:       deps.FS,
		breakers: deps.Breakers,
		metrics:  deps.Metrics,
		bodies:   utils.DefaultJSONValidator(),
		logger:   logger.Named("http"),
	}
}

// Register attaches every REST route to r
func (h *Handlers) Register(r gin.IRouter) {
	r.GET("/", h.Root)
	r.GET("/health", h.Health)

	// Package registry
	r.GET("/registry/apps", h.ListRegistryApps)
	r.GET("/registry/apps/:id", h.GetRegistryApp)
	r.POST("/registry/apps", h.SaveRegistryApp)
	r.DELETE("/registry/apps/:id", h.DeleteRegistryApp)

	// Running apps
	r.GET("/apps", h.ListApps)
	r.GET("/apps/:id", h.GetApp)
	r.GET("/apps/:id/dom", h.RenderApp)
	r.GET("/apps/:id/console", h.AppConsole)
	r.GET("/apps/:id/settings", h.GetAppSettings)
	r.PUT("/apps/:id/settings/:key", h.SetAppSetting)
	r.POST("/apps/:id/window", h.UpdateWindowState)
	r.DELETE("/apps/:id", h.CloseApp)

	unlocked := r.Group("/apps", h.RequireUnlocked)
	unlocked.POST("/:id/open", h.OpenApp)
	unlocked.POST("/:id/focus", h.FocusApp)
	unlocked.POST("/:id/invoke/:fn", h.InvokeApp)
	unlocked.POST("/:id/events", h.DispatchEvent)

	// Notifications and bus
	r.GET("/notifications", h.ListNotifications)
	r.DELETE("/notifications", h.ClearNotifications)
	r.GET("/bus/rooms", h.ListRooms)
	r.GET("/bus/rooms/:room/messages", h.RoomMessages)
	r.POST("/bus/broadcast", h.Broadcast)

	// System
	r.GET("/system/stats", h.SystemStats)
	r.POST("/system/unload", h.Unload)
	r.PUT("/system/lock", h.Lock)
	r.POST("/system/unlock", h.Unlock)
}

// Root handles the liveness check
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "online",
		"service": "WebOS Service (Go)",
		"version": Version,
	})
}

// Health handles the detailed health check
func (h *Handlers) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"locked":      h.isLocked(),
		"app_manager": h.apps.Stats(),
		"sandbox": gin.H{
			"instances":      len(h.host.List()),
			"pending_timers": h.host.PendingTimers(),
			"shortcuts":      len(h.host.Shortcuts()),
		},
		"bus": h.bus.Stats(),
	})
}

// validID checks a path parameter and answers 400 when it is malformed
func validID(c *gin.Context, param string) (string, bool) {
	v := c.Param(param)
	if err := utils.ValidateID(v, param, true); err != nil {
		fail(c, http.StatusBadRequest, err)
		return "", false
	}
	return v, true
}

// fail answers with the error envelope
func fail(c *gin.Context, status int, err error) {
	c.JSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

// respondError maps a domain error to its status code
func (h *Handlers) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("path", c.FullPath()),
			zap.Int("status", status),
			zap.Error(err))
	}
	fail(c, status, err)
}

func statusFor(err error) int {
	var scriptErr *sandbox.ScriptError
	switch {
	case errors.Is(err, registry.ErrNotFound),
		errors.Is(err, settings.ErrNotFound),
		errors.Is(err, vfs.ErrNotFound),
		errors.Is(err, sandbox.ErrAppNotRunning),
		errors.Is(err, sandbox.ErrNotExposed),
		errors.Is(err, sandbox.ErrTargetNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrLocked):
		return http.StatusLocked
	case errors.Is(err, sandbox.ErrAlreadyRunning),
		errors.Is(err, sandbox.ErrWindowExists),
		errors.Is(err, vfs.ErrExists):
		return http.StatusConflict
	case errors.Is(err, registry.ErrInvalidManifest),
		errors.Is(err, settings.ErrInvalidKey),
		errors.Is(err, vfs.ErrInvalidPath),
		errors.Is(err, vfs.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, sandbox.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.As(err, &scriptErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, sandbox.ErrLoopStopped),
		errors.Is(err, bus.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
