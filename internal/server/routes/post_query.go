package routes

import (
	"net/http"
	"time"

	"github.com/OFFIS-RIT/graphvec/internal/server/middleware"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/metrics"
	"github.com/OFFIS-RIT/graphvec/pkg/query"

	_ "github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
)

type chunkData struct {
	ID       string          `json:"id"`
	Index    int             `json:"index"`
	Text     string          `json:"text"`
	Metadata common.Metadata `json:"metadata,omitempty"`
	Score    float64         `json:"score"`
}

type subgraphData struct {
	Nodes []graph.Node `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

func toSubgraphData(g *graph.KnowledgeGraph) *subgraphData {
	if g == nil {
		return &subgraphData{Nodes: []graph.Node{}, Edges: []graph.Edge{}}
	}
	return &subgraphData{Nodes: g.Nodes(), Edges: g.Edges()}
}

// QueryHandler runs a hybrid retrieval and returns both evidence blocks.
func QueryHandler(c echo.Context) error {
	type queryRequest struct {
		Query string `json:"query" validate:"required"`
		K     int    `json:"k" validate:"omitempty,min=1,max=100"`
		Trace bool   `json:"trace"`
	}

	type queryResponse struct {
		Message     string                    `json:"message"`
		Chunks      []chunkData               `json:"chunks,omitempty"`
		TopNodes    []query.ScoredNode        `json:"top_nodes,omitempty"`
		Subgraph    *subgraphData             `json:"subgraph,omitempty"`
		VectorError string                    `json:"vector_error,omitempty"`
		Trace       *query.QueryTraceSnapshot `json:"trace,omitempty"`
	}

	data := new(queryRequest)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, queryResponse{
			Message: "Invalid request body",
		})
	}

	app := c.(*middleware.AppContext).App
	engine := app.Service.Engine()
	if engine == nil {
		return c.JSON(http.StatusServiceUnavailable, queryResponse{
			Message: "Knowledge graph is not ready",
		})
	}

	k := data.K
	if k == 0 {
		k = app.Service.Config().Query.TopK
	}

	var trace *query.QueryTrace
	if data.Trace {
		trace = query.NewQueryTrace()
		engine = engine.WithTracer(trace)
	}

	start := time.Now()
	res, err := engine.HybridRetrieve(c.Request().Context(), data.Query, k)
	if err != nil {
		logger.Error("[Server] Query failed", "err", err)
		return c.JSON(http.StatusInternalServerError, queryResponse{
			Message: "Internal server error",
		})
	}
	metrics.ObserveRetrieval(time.Since(start), res.VectorErr == nil)

	resp := queryResponse{
		Message:  "Query completed",
		Chunks:   make([]chunkData, 0, len(res.Chunks)),
		TopNodes: res.TopNodes,
		Subgraph: toSubgraphData(res.Subgraph),
	}
	for _, rc := range res.Chunks {
		resp.Chunks = append(resp.Chunks, chunkData{
			ID:       rc.Chunk.ID,
			Index:    rc.Chunk.Index,
			Text:     rc.Chunk.Text,
			Metadata: rc.Chunk.Metadata,
			Score:    rc.Score,
		})
	}
	if res.VectorErr != nil {
		resp.VectorError = res.VectorErr.Error()
	}
	if trace != nil {
		snap := trace.Snapshot()
		resp.Trace = &snap
	}

	return c.JSON(http.StatusOK, resp)
}
