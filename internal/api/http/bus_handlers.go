package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/WebOS/backend/internal/providers/bus"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

const (
	defaultHistoryLimit = 50
	maxBroadcastDepth   = 32
)

// ListNotifications returns notification history, optionally for one app
func (h *Handlers) ListNotifications(c *gin.Context) {
	appID := c.Query("app_id")
	if err := utils.ValidateID(appID, "app_id", false); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"notifications": h.notify.List(appID),
	})
}

// ClearNotifications drops notification history, optionally for one app
func (h *Handlers) ClearNotifications(c *gin.Context) {
	appID := c.Query("app_id")
	if err := utils.ValidateID(appID, "app_id", false); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"removed": h.notify.Clear(appID),
	})
}

// ListRooms returns every room with its member count
func (h *Handlers) ListRooms(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"rooms":   h.bus.Rooms(),
		"clients": h.bus.Clients(),
	})
}

// RoomMessages returns the recent history of a room
func (h *Handlers) RoomMessages(c *gin.Context) {
	room := c.Param("room")
	if err := utils.ValidateRoom(room); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	limit := defaultHistoryLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			fail(c, http.StatusBadRequest, errInvalidLimit)
			return
		}
		limit = n
	}

	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"room":     room,
		"messages": h.bus.History(room, limit),
	})
}

// BroadcastRequest is a message published by the shell
type BroadcastRequest struct {
	Room    string      `json:"room"`
	Event   string      `json:"event"`
	Payload interface{} `json:"payload"`
}

// Broadcast publishes a message from the system sender. An empty room
// reaches every client.
func (h *Handlers) Broadcast(c *gin.Context) {
	var req BroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.Room == "" {
		req.Room = bus.Global
	}
	if err := utils.ValidateRoom(req.Room); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := utils.ValidatePayload(req.Payload, maxBroadcastDepth); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}

	done := h.metrics.Track(serviceBus, "broadcast")
	msg, err := h.bus.Publish(req.Room, req.Event, req.Payload, "system")
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": msg,
	})
}
