package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"
)

// RankedChunk is a chunk returned by the vector search.
type RankedChunk struct {
	Chunk common.Chunk `json:"chunk"`
	Score float64      `json:"score"`
}

// Result holds the two independent evidence blocks of a hybrid query.
//
// Chunks is the vector search result, Subgraph the neighborhood of the best
// scoring nodes and TopNodes the nodes it was expanded from. VectorErr is set
// when the vector block could not be computed; the graph block is still
// valid in that case.
type Result struct {
	Chunks    []RankedChunk         `json:"chunks"`
	Subgraph  *graph.KnowledgeGraph `json:"-"`
	TopNodes  []ScoredNode          `json:"top_nodes"`
	VectorErr error                 `json:"-"`
}

// VectorTopK returns the k chunks of index most similar to queryEmbedding.
func VectorTopK(ctx context.Context, index vector.Index, queryEmbedding []float32, k int) ([]vector.Hit, error) {
	if index == nil || k <= 0 || len(queryEmbedding) == 0 {
		return []vector.Hit{}, nil
	}
	return index.TopK(ctx, queryEmbedding, k)
}

// RetrieveParams are the inputs of Retrieve.
//
// Index may be nil, in which case an in-memory index over the embeddings of
// Chunks is used. Hits are resolved against Chunks by position. A zero
// Weights value means DefaultWeights. K applies to both blocks.
type RetrieveParams struct {
	Query          string
	QueryEmbedding []float32
	Chunks         []common.Chunk
	Index          vector.Index
	Graph          *graph.KnowledgeGraph
	K              int
	Weights        Weights
	Tracer         Tracer
}

// Retrieve runs the vector search and the graph selection for one query.
// Empty inputs yield empty blocks. A failing vector search is reported in
// Result.VectorErr; only a cancelled context fails the call.
func Retrieve(ctx context.Context, p RetrieveParams) (*Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w := p.Weights
	if w.IsZero() {
		w = DefaultWeights()
	}

	res := &Result{Chunks: []RankedChunk{}}

	index := p.Index
	if index == nil {
		index = memoryIndexOf(p.Chunks)
	}

	start := time.Now()
	hits, err := VectorTopK(ctx, index, p.QueryEmbedding, p.K)
	RecordVectorSearch(p.Tracer, time.Since(start).Milliseconds(), err)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		res.VectorErr = fmt.Errorf("vector search: %w", err)
		logger.Warn("[Query] Vector search failed", "err", err)
	}

	ids := make([]string, 0, len(hits))
	for _, h := range hits {
		if h.Index < 0 || h.Index >= len(p.Chunks) {
			logger.Warn("[Query] Vector hit outside of chunk set", "index", h.Index, "chunks", len(p.Chunks))
			continue
		}
		c := p.Chunks[h.Index]
		res.Chunks = append(res.Chunks, RankedChunk{Chunk: c, Score: h.Score})
		ids = append(ids, c.ID)
	}
	RecordConsideredChunkIDs(p.Tracer, ids...)

	res.TopNodes = SelectTopK(ScoreNodes(p.Graph, p.Query, w), p.K)
	selected := nodeNames(res.TopNodes)
	RecordSelectedEntities(p.Tracer, selected...)

	res.Subgraph = ExpandNeighborhood(p.Graph, selected)
	sub := make([]string, 0, res.Subgraph.NodeCount())
	for _, n := range res.Subgraph.Nodes() {
		sub = append(sub, n.Name)
	}
	RecordSubgraphEntities(p.Tracer, sub...)

	logger.Debug("[Query] Retrieved evidence",
		"chunks", len(res.Chunks),
		"top_nodes", len(res.TopNodes),
		"subgraph_nodes", res.Subgraph.NodeCount(),
	)
	return res, nil
}

func memoryIndexOf(chunks []common.Chunk) *vector.MemoryIndex {
	embeddings := make([][]float32, len(chunks))
	for i, c := range chunks {
		embeddings[i] = c.Embedding
	}
	return vector.NewMemoryIndex(embeddings)
}
