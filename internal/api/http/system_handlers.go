package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// Secure preference holding the lock-screen PIN
const (
	lockCategory = "lock"
	lockKey      = "pin"
	minPINLength = 4
	maxPINLength = 32
)

var (
	ErrLocked     = errors.New("desktop is locked")
	errNoPIN      = errors.New("no lock PIN is set")
	errWrongPIN   = errors.New("incorrect PIN")
	errPINMissing = errors.New("pin is required")
)

// LockRequest optionally sets a new PIN before locking
type LockRequest struct {
	PIN string `json:"pin"`
}

// UnlockRequest carries the PIN to check
type UnlockRequest struct {
	PIN string `json:"pin"`
}

func (h *Handlers) isLocked() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.locked
}

func (h *Handlers) setLocked(locked bool) {
	h.mu.Lock()
	h.locked = locked
	h.mu.Unlock()
}

// RequireUnlocked rejects requests that would run app code while the
// desktop is locked
func (h *Handlers) RequireUnlocked(c *gin.Context) {
	if h.isLocked() {
		fail(c, http.StatusLocked, ErrLocked)
		c.Abort()
		return
	}
	c.Next()
}

// Lock locks the desktop, storing a new PIN first when one is given. The
// PIN can only be changed while unlocked.
func (h *Handlers) Lock(c *gin.Context) {
	ctx := c.Request.Context()

	var req LockRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}

	if req.PIN != "" {
		if h.isLocked() {
			fail(c, http.StatusLocked, ErrLocked)
			return
		}
		if err := utils.ValidateString(req.PIN, "pin", minPINLength, maxPINLength, true); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
		if err := h.settings.SetSecure(ctx, lockCategory, lockKey, req.PIN); err != nil {
			h.respondError(c, err)
			return
		}
	} else {
		has, err := h.settings.HasSecure(ctx, lockCategory, lockKey)
		if err != nil {
			h.respondError(c, err)
			return
		}
		if !has {
			fail(c, http.StatusBadRequest, errNoPIN)
			return
		}
	}

	h.setLocked(true)
	h.logger.Info("desktop locked")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"locked":  true,
	})
}

// Unlock checks the PIN and unlocks the desktop
func (h *Handlers) Unlock(c *gin.Context) {
	var req UnlockRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if req.PIN == "" {
		fail(c, http.StatusBadRequest, errPINMissing)
		return
	}
	if !h.isLocked() {
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"locked":  false,
		})
		return
	}

	ok, err := h.settings.VerifySecure(c.Request.Context(), lockCategory, lockKey, req.PIN)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !ok {
		h.logger.Warn("unlock rejected")
		fail(c, http.StatusUnauthorized, errWrongPIN)
		return
	}

	h.setLocked(false)
	h.logger.Info("desktop unlocked")
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"locked":  false,
	})
}

// Unload closes every running app, as on page unload
func (h *Handlers) Unload(c *gin.Context) {
	done := h.metrics.Track(serviceSystem, "unload")
	reports, err := h.apps.Unload(c.Request.Context())
	done(err)
	if err != nil {
		// Reports of the apps that did close are still returned
		h.logger.Warn("unload finished with errors", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"reports": reports,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"closed":  len(reports),
		"reports": reports,
	})
}
