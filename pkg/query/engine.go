package query

import (
	"context"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/ai"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"
)

// DefaultEmbeddingTimeout bounds the query embedding call.
const DefaultEmbeddingTimeout = 30 * time.Second

// Engine answers queries against one built corpus. It only reads the graph
// and chunks it was created with and is safe for concurrent use.
//
// An Engine should be created using NewEngine.
type Engine struct {
	chunks   []common.Chunk
	index    vector.Index
	graph    *graph.KnowledgeGraph
	embedder ai.Embedder
	weights  Weights
	tracer   Tracer
	timeout  time.Duration
}

// NewEngineParams defines the configuration parameters for creating a new
// Engine.
//
// Graph is required. Index defaults to an in-memory index over the chunk
// embeddings. Without an Embedder every query has an empty vector block.
type NewEngineParams struct {
	Chunks           []common.Chunk
	Index            vector.Index
	Graph            *graph.KnowledgeGraph
	Embedder         ai.Embedder
	Weights          Weights
	Tracer           Tracer
	EmbeddingTimeout time.Duration
}

func NewEngine(params NewEngineParams) (*Engine, error) {
	if params.Graph == nil {
		return nil, fmt.Errorf("%w: query engine needs a graph", common.ErrInvalidConfiguration)
	}
	if params.Weights.IsZero() {
		params.Weights = DefaultWeights()
	}
	if params.EmbeddingTimeout <= 0 {
		params.EmbeddingTimeout = DefaultEmbeddingTimeout
	}
	if params.Index == nil {
		params.Index = memoryIndexOf(params.Chunks)
	}
	return &Engine{
		chunks:   params.Chunks,
		index:    params.Index,
		graph:    params.Graph,
		embedder: params.Embedder,
		weights:  params.Weights,
		tracer:   params.Tracer,
		timeout:  params.EmbeddingTimeout,
	}, nil
}

// WithTracer returns a copy of e that additionally records to t. Use it to
// collect a trace for a single request.
func (e *Engine) WithTracer(t Tracer) *Engine {
	c := *e
	if e.tracer == nil {
		c.tracer = t
	} else {
		c.tracer = MultiTracer{e.tracer, t}
	}
	return &c
}

func (e *Engine) Graph() *graph.KnowledgeGraph {
	return e.graph
}

func (e *Engine) Chunks() []common.Chunk {
	return e.chunks
}

func (e *Engine) Weights() Weights {
	return e.weights
}

// HybridRetrieve embeds query and returns the vector and graph evidence for
// it. A failed embedding leaves the vector block empty and is reported in
// Result.VectorErr.
func (e *Engine) HybridRetrieve(ctx context.Context, query string, k int) (*Result, error) {
	var (
		embedding []float32
		embedErr  error
	)
	if e.embedder != nil && query != "" && k > 0 {
		embedCtx, cancel := context.WithTimeout(ctx, e.timeout)
		embedding, embedErr = e.embedder.GenerateEmbedding(embedCtx, []byte(query))
		cancel()
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}

	res, err := Retrieve(ctx, RetrieveParams{
		Query:          query,
		QueryEmbedding: embedding,
		Chunks:         e.chunks,
		Index:          e.index,
		Graph:          e.graph,
		K:              k,
		Weights:        e.weights,
		Tracer:         e.tracer,
	})
	if err != nil {
		return nil, err
	}
	if embedErr != nil {
		res.VectorErr = fmt.Errorf("%w: embed query: %w", common.ErrEmbeddingFailure, embedErr)
	}
	return res, nil
}

// MultiHopPaths enumerates paths between two entities of the engine's graph.
func (e *Engine) MultiHopPaths(start, end string, maxHops, maxResults int) [][]string {
	paths := MultiHopPaths(e.graph, start, end, maxHops, maxResults)
	RecordPaths(e.tracer, paths...)
	return paths
}
