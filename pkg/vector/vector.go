// Package vector provides cosine similarity search over chunk embeddings.
package vector

import (
	"context"
	"math"
	"slices"

	"gonum.org/v1/gonum/blas/gonum"
)

var blasEngine = gonum.Implementation{}

// Hit is a single search result. Index refers to the position of the chunk
// in the slice the index was built from.
type Hit struct {
	Index int     `json:"index"`
	Score float64 `json:"score"`
}

// Index returns the k chunks most similar to a query embedding.
//
// Implementations must order hits by descending score and break ties by
// ascending Index. A k <= 0 or an empty index yields no hits.
type Index interface {
	Len() int
	TopK(ctx context.Context, query []float32, k int) ([]Hit, error)
}

func norm(v []float32) float64 {
	if len(v) == 0 {
		return 0
	}
	return math.Sqrt(blasEngine.Dsdot(len(v), v, 1, v, 1))
}

func cosine(a, b []float32, na, nb float64) float64 {
	if len(a) == 0 || len(a) != len(b) || na == 0 || nb == 0 {
		return 0
	}
	sim := blasEngine.Dsdot(len(a), a, 1, b, 1) / (na * nb)
	return max(-1, min(1, sim))
}

// CosineSimilarity returns the cosine of the angle between a and b.
// Vectors of different length or with zero norm have similarity 0.
func CosineSimilarity(a, b []float32) float64 {
	return cosine(a, b, norm(a), norm(b))
}

// MemoryIndex is an exhaustive in-process index. It is read-only after
// construction and safe for concurrent use.
type MemoryIndex struct {
	vectors [][]float32
	norms   []float64
}

// NewMemoryIndex builds an index over embeddings. The slice is retained,
// callers must not modify it afterwards.
func NewMemoryIndex(embeddings [][]float32) *MemoryIndex {
	norms := make([]float64, len(embeddings))
	for i, v := range embeddings {
		norms[i] = norm(v)
	}
	return &MemoryIndex{vectors: embeddings, norms: norms}
}

func (m *MemoryIndex) Len() int {
	return len(m.vectors)
}

// TopK scores every vector against query and returns the best k.
func (m *MemoryIndex) TopK(ctx context.Context, query []float32, k int) ([]Hit, error) {
	if k <= 0 || len(m.vectors) == 0 {
		return []Hit{}, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	qn := norm(query)
	hits := make([]Hit, len(m.vectors))
	for i, v := range m.vectors {
		hits[i] = Hit{Index: i, Score: cosine(query, v, qn, m.norms[i])}
	}

	// hits are in index order, a stable sort keeps lower indices first on ties
	slices.SortStableFunc(hits, func(a, b Hit) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return 0
	})

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}
