package server

import (
	"github.com/OFFIS-RIT/graphvec/internal/server/routes"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func RegisterRoutes(e *echo.Echo) {
	// Health check route
	e.GET("/health", func(c echo.Context) error {
		return c.String(200, "OK")
	})
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	apiRoutes := e.Group("/api")

	// Query routes
	apiRoutes.POST("/query", routes.QueryHandler)
	apiRoutes.POST("/paths", routes.PathsHandler)

	// Graph routes
	apiRoutes.GET("/graph", routes.GetGraphHandler)
	apiRoutes.GET("/graph/nodes/:name", routes.GetNodeHandler)
	apiRoutes.DELETE("/graph/snapshot", routes.DeleteSnapshotHandler)
	apiRoutes.POST("/graph/rebuild", routes.RebuildHandler)
}
