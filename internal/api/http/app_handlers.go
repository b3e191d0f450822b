package http

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/sandbox"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// ListApps lists all running apps
func (h *Handlers) ListApps(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"apps":      h.apps.List(nil),
		"instances": h.host.List(),
		"stats":     h.apps.Stats(),
	})
}

// GetApp returns a running app with its sandbox instance
func (h *Handlers) GetApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	app, ok := h.apps.Get(id)
	if !ok {
		h.respondError(c, fmt.Errorf("%w: %s", sandbox.ErrAppNotRunning, id))
		return
	}
	info, _ := h.host.Instance(id)

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"app":      app,
		"instance": info,
	})
}

// OpenApp starts an installed package. A script error still opens the app
// and is reported in the response.
func (h *Handlers) OpenApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	done := h.metrics.TrackAppOperation("open")
	app, res, err := h.apps.Open(c.Request.Context(), id)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	resp := gin.H{
		"success":     true,
		"app":         app,
		"exposed":     res.Exposed,
		"duration_ms": res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		resp["script_error"] = res.Err.Error()
	}
	c.JSON(http.StatusOK, resp)
}

// FocusApp brings an app to the foreground
func (h *Handlers) FocusApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": h.apps.Focus(id),
		"app_id":  id,
	})
}

// UpdateWindowRequest carries new window geometry
type UpdateWindowRequest struct {
	Position  *types.WindowPosition `json:"position"`
	Size      *types.WindowSize     `json:"size"`
	Maximized bool                  `json:"maximized"`
}

// UpdateWindowState records and persists window geometry
func (h *Handlers) UpdateWindowState(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	var req UpdateWindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Size != nil && (req.Size.Width <= 0 || req.Size.Height <= 0) {
		fail(c, http.StatusBadRequest, fmt.Errorf("window size must be positive"))
		return
	}

	if err := h.apps.UpdateWindow(c.Request.Context(), id, req.Position, req.Size, req.Maximized); err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
	})
}

// CloseApp closes an app and returns what its cleanup released
func (h *Handlers) CloseApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	done := h.metrics.TrackAppOperation("close")
	report, closed, err := h.apps.Close(c.Request.Context(), id)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": closed,
		"app_id":  id,
		"report":  report,
	})
}

// InvokeRequest carries the arguments of an exposed function call
type InvokeRequest struct {
	Args []interface{} `json:"args"`
}

// InvokeApp calls a function the app exposed
func (h *Handlers) InvokeApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}
	fn := c.Param("fn")
	if err := utils.ValidateString(fn, "fn", 1, utils.MaxNameLength, true); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	var req InvokeRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}
	if err := utils.ValidatePayload(req.Args, 10); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.TrackSandboxOperation("invoke")
	result, err := h.host.Invoke(c.Request.Context(), id, fn, req.Args...)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
		"result":  result,
	})
}

// DispatchEvent fires a synthetic DOM event. An empty target means the
// app's own window.
func (h *Handlers) DispatchEvent(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}
	app, ok := h.apps.Get(id)
	if !ok {
		h.respondError(c, fmt.Errorf("%w: %s", sandbox.ErrAppNotRunning, id))
		return
	}

	var req sandbox.EventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Type == "" {
		fail(c, http.StatusBadRequest, fmt.Errorf("event type is required"))
		return
	}
	if req.Target == "" {
		req.Target = app.WindowID
	}

	done := h.metrics.TrackSandboxOperation("dispatch")
	notPrevented, err := h.host.DispatchEvent(c.Request.Context(), req)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":           true,
		"default_prevented": !notPrevented,
	})
}

// RenderApp returns the current markup of an app window
func (h *Handlers) RenderApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	markup, err := h.host.RenderWindow(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
		"html":    markup,
	})
}

// AppConsole returns the captured console output of an app
func (h *Handlers) AppConsole(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	entries, err := h.host.Console(id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
		"entries": entries,
	})
}

// GetAppSettings returns an app's defaults merged with stored values
func (h *Handlers) GetAppSettings(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	all, err := h.settings.AllAppSettings(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"app_id":   id,
		"settings": all,
	})
}

// SetSettingRequest carries a setting value
type SetSettingRequest struct {
	Value interface{} `json:"value"`
}

// SetAppSetting stores one setting
func (h *Handlers) SetAppSetting(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}
	key := c.Param("key")

	var req SetSettingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := utils.ValidatePayload(req.Value, 10); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.Track(serviceSettings, "set")
	err := h.settings.SetAppSetting(c.Request.Context(), id, key, req.Value)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
		"key":     key,
		"value":   req.Value,
	})
}
