package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/graphvec/internal/server/middleware"

	"github.com/labstack/echo/v4"
)

// PathsHandler enumerates multi-hop paths between two entities.
func PathsHandler(c echo.Context) error {
	type pathsRequest struct {
		Start      string `json:"start" validate:"required"`
		End        string `json:"end" validate:"required"`
		MaxHops    int    `json:"max_hops" validate:"omitempty,min=1,max=10"`
		MaxResults int    `json:"max_results" validate:"omitempty,min=1,max=100"`
	}

	type pathsResponse struct {
		Message string     `json:"message"`
		Paths   [][]string `json:"paths"`
	}

	data := new(pathsRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, pathsResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, pathsResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	engine := app.Service.Engine()
	if engine == nil {
		return c.JSON(http.StatusServiceUnavailable, pathsResponse{
			Message: "Knowledge graph is not ready",
		})
	}

	cfg := app.Service.Config().Query
	if data.MaxHops == 0 {
		data.MaxHops = cfg.MaxHops
	}
	if data.MaxResults == 0 {
		data.MaxResults = cfg.MaxPaths
	}

	paths := engine.MultiHopPaths(data.Start, data.End, data.MaxHops, data.MaxResults)
	return c.JSON(http.StatusOK, pathsResponse{
		Message: "Paths found",
		Paths:   paths,
	})
}
