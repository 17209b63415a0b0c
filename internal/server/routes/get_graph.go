package routes

import (
	"net/http"

	"github.com/OFFIS-RIT/graphvec/internal/server/middleware"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"

	"github.com/labstack/echo/v4"
)

// GetGraphHandler returns the size, community count and most important
// nodes of the served graph.
func GetGraphHandler(c echo.Context) error {
	type getGraphParams struct {
		Top int `query:"top" validate:"omitempty,min=1,max=100"`
	}

	params := new(getGraphParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if params.Top == 0 {
		params.Top = 10
	}

	engine := c.(*middleware.AppContext).App.Service.Engine()
	if engine == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Knowledge graph is not ready"})
	}

	return c.JSON(http.StatusOK, engine.Graph().Stats(params.Top))
}

// GetNodeHandler returns one entity with its outgoing and incoming edges.
func GetNodeHandler(c echo.Context) error {
	type getNodeParams struct {
		Name string `param:"name" validate:"required"`
	}

	type getNodeResponse struct {
		Node     graph.Node   `json:"node"`
		Outgoing []graph.Edge `json:"outgoing"`
		Incoming []graph.Edge `json:"incoming"`
	}

	params := new(getNodeParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}
	if err := c.Validate(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	engine := c.(*middleware.AppContext).App.Service.Engine()
	if engine == nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": "Knowledge graph is not ready"})
	}

	g := engine.Graph()
	node, ok := g.Node(params.Name)
	if !ok {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Entity not found"})
	}

	resp := getNodeResponse{
		Node:     node,
		Outgoing: []graph.Edge{},
		Incoming: []graph.Edge{},
	}
	for _, succ := range g.Successors(node.Name) {
		if e, ok := g.Edge(node.Name, succ); ok {
			resp.Outgoing = append(resp.Outgoing, e)
		}
	}
	for _, pred := range g.Predecessors(node.Name) {
		if e, ok := g.Edge(pred, node.Name); ok {
			resp.Incoming = append(resp.Incoming, e)
		}
	}

	return c.JSON(http.StatusOK, resp)
}
