package http

import (
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/GriffinCanCode/WebOS/backend/internal/domain/registry"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/types"
	"github.com/GriffinCanCode/WebOS/backend/internal/shared/utils"
)

// ListRegistryApps lists installed packages. ?q= searches, ?category=
// filters.
func (h *Handlers) ListRegistryApps(c *gin.Context) {
	done := h.metrics.TrackRegistryOperation("list")
	ctx := c.Request.Context()

	category := c.Query("category")
	if err := utils.ValidateCategory(category, false); err != nil {
		done(err)
		fail(c, http.StatusBadRequest, err)
		return
	}

	var (
		apps []types.ManifestMetadata
		err  error
	)
	if q := c.Query("q"); q != "" {
		apps, err = h.registry.Search(ctx, q)
	} else {
		apps, err = h.registry.ListMetadata(ctx, category)
	}
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	stats, err := h.registry.Stats(ctx)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"apps":    apps,
		"stats":   stats,
	})
}

// GetRegistryApp returns a full package manifest
func (h *Handlers) GetRegistryApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	done := h.metrics.TrackRegistryOperation("get")
	pkg, err := h.registry.Get(c.Request.Context(), id)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app":     pkg,
	})
}

// SaveRegistryApp installs or replaces a package. The body is a manifest
// in JSON, YAML or TOML, chosen by Content-Type.
func (h *Handlers) SaveRegistryApp(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, utils.MaxJSONSize+1))
	if err != nil {
		fail(c, http.StatusBadRequest, err)
		return
	}
	if err := h.bodies.ValidateSize(body); err != nil {
		fail(c, http.StatusRequestEntityTooLarge, err)
		return
	}

	format := formatFor(c.ContentType())
	if format == registry.FormatJSON {
		if err := h.bodies.ValidateJSON(body); err != nil {
			fail(c, http.StatusBadRequest, err)
			return
		}
	}

	pkg, err := registry.Parse(body, format)
	if err != nil {
		h.respondError(c, err)
		return
	}

	done := h.metrics.TrackRegistryOperation("save")
	err = h.registry.Save(c.Request.Context(), pkg)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  pkg.ID,
		"app":     pkg.ToMetadata(),
	})
}

// DeleteRegistryApp uninstalls a package
func (h *Handlers) DeleteRegistryApp(c *gin.Context) {
	id, ok := validID(c, "id")
	if !ok {
		return
	}

	done := h.metrics.TrackRegistryOperation("delete")
	err := h.registry.Delete(c.Request.Context(), id)
	done(err)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"app_id":  id,
	})
}

func formatFor(contentType string) registry.Format {
	switch {
	case strings.Contains(contentType, "yaml"):
		return registry.FormatYAML
	case strings.Contains(contentType, "toml"):
		return registry.FormatTOML
	default:
		return registry.FormatJSON
	}
}
