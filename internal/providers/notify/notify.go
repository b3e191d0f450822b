// Package notify is the notification center. Notifications are kept in a
// bounded history and published on the bus so connected shells can show
// them.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/id"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// Room and event notifications are published under
const (
	Room  = "notifications"
	Event = "notification"
)

// DefaultHistory is the number of notifications kept
const DefaultHistory = 200

var ErrEmpty = errors.New("notification needs a title or message")

// Publisher is the slice of the bus the center needs
type Publisher interface {
	Publish(room, event string, payload interface{}, sender string) (types.Message, error)
}

// Metrics receives notification counts
type Metrics interface {
	NotificationSent(level string)
}

// Center implements capability.Notifier
type Center struct {
	bus     Publisher
	logger  *zap.Logger
	metrics Metrics
	limit   int
	now     func() time.Time

	mu      sync.RWMutex
	history []types.Notification
}

// New creates a center. bus and metrics may be nil.
func New(bus Publisher, logger *zap.Logger, metrics Metrics, limit int) *Center {
	if logger == nil {
		logger = zap.NewNop()
	}
	if limit <= 0 {
		limit = DefaultHistory
	}
	return &Center{
		bus:     bus,
		logger:  logger,
		metrics: metrics,
		limit:   limit,
		now:     time.Now,
	}
}

func validLevel(l types.NotificationLevel) types.NotificationLevel {
	switch l {
	case types.LevelInfo, types.LevelSuccess, types.LevelWarning, types.LevelError:
		return l
	default:
		return types.LevelInfo
	}
}

// Notify records n, assigning its id and time, and publishes it
func (c *Center) Notify(ctx context.Context, n types.Notification) (types.Notification, error) {
	if n.Title == "" && n.Message == "" {
		return n, ErrEmpty
	}
	if err := utils.ValidateMessage(n.Message); err != nil {
		return n, err
	}
	if err := ctx.Err(); err != nil {
		return n, err
	}

	n.ID = id.NewNotificationID().String()
	n.Level = validLevel(n.Level)
	n.CreatedAt = c.now()

	c.mu.Lock()
	c.history = append(c.history, n)
	if len(c.history) > c.limit {
		c.history = c.history[len(c.history)-c.limit:]
	}
	c.mu.Unlock()

	fields := []zap.Field{
		zap.String("id", n.ID),
		zap.String("app_id", n.AppID),
		zap.String("level", string(n.Level)),
		zap.String("title", n.Title),
	}
	switch n.Level {
	case types.LevelError:
		c.logger.Error("notification", fields...)
	case types.LevelWarning:
		c.logger.Warn("notification", fields...)
	default:
		c.logger.Info("notification", fields...)
	}

	if c.metrics != nil {
		c.metrics.NotificationSent(string(n.Level))
	}
	if c.bus != nil {
		sender := n.AppID
		if sender == "" {
			sender = "system"
		}
		if _, err := c.bus.Publish(Room, Event, n, sender); err != nil {
			c.logger.Warn("notification not published", zap.String("id", n.ID), zap.Error(err))
		}
	}
	return n, nil
}

// List returns history oldest first, filtered to appID when not empty
func (c *Center) List(appID string) []types.Notification {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]types.Notification, 0, len(c.history))
	for _, n := range c.history {
		if appID == "" || n.AppID == appID {
			out = append(out, n)
		}
	}
	return out
}

// Clear drops history for appID, or everything when appID is empty
func (c *Center) Clear(appID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if appID == "" {
		n := len(c.history)
		c.history = nil
		return n
	}
	kept := c.history[:0]
	removed := 0
	for _, n := range c.history {
		if n.AppID == appID {
			removed++
			continue
		}
		kept = append(kept, n)
	}
	c.history = kept
	return removed
}
