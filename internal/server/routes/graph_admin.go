package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/graphvec/internal/queue"
	"github.com/OFFIS-RIT/graphvec/internal/server/middleware"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"

	"github.com/labstack/echo/v4"
	gonanoid "github.com/matoous/go-nanoid/v2"
)

// DeleteSnapshotHandler removes the persisted graph so that the next build
// extracts entities again. The served graph is not affected.
func DeleteSnapshotHandler(c echo.Context) error {
	app := c.(*middleware.AppContext).App
	if err := app.Service.Invalidate(c.Request().Context()); err != nil {
		logger.Error("[Server] Failed to invalidate snapshot", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Snapshot deleted"})
}

// RebuildHandler enqueues a rebuild for the worker.
func RebuildHandler(c echo.Context) error {
	type rebuildRequest struct {
		Force bool `json:"force"`
	}

	type rebuildResponse struct {
		Message       string `json:"message"`
		CorrelationID string `json:"correlation_id,omitempty"`
	}

	data := new(rebuildRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, rebuildResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	if app.Publisher == nil {
		return c.JSON(http.StatusServiceUnavailable, rebuildResponse{
			Message: "No build queue configured",
		})
	}

	id, err := gonanoid.New()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}
	err = app.Publisher.PublishBuild(c.Request().Context(), queue.BuildRequest{
		Force:         data.Force,
		CorrelationID: id,
	})
	if err != nil {
		logger.Error("[Server] Failed to enqueue rebuild", "err", err)
		return c.JSON(http.StatusInternalServerError, rebuildResponse{
			Message: "Internal server error",
		})
	}

	return c.JSON(http.StatusAccepted, rebuildResponse{
		Message:       "Rebuild queued",
		CorrelationID: id,
	})
}
