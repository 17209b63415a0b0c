package chunker

import (
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"
)

const DefaultSimilarityThreshold = 0.95

// DedupeResult describes a greedy deduplication pass.
//
// Kept lists the surviving positions in input order. LeaderOf maps every
// position to the kept position that absorbed it, or -1 for kept positions.
type DedupeResult struct {
	Kept     []int
	LeaderOf []int
}

// Deduplicate walks embeddings in order. Each position not yet absorbed
// becomes a leader and absorbs every later, not yet absorbed position whose
// cosine similarity to it exceeds threshold. Absorption is final, so the
// outcome depends on input order and is not transitive: two positions that
// are similar to each other can both survive if neither absorbed the other.
func Deduplicate(embeddings [][]float32, threshold float64) DedupeResult {
	n := len(embeddings)
	res := DedupeResult{
		Kept:     make([]int, 0, n),
		LeaderOf: make([]int, n),
	}
	for i := range res.LeaderOf {
		res.LeaderOf[i] = -1
	}
	absorbed := make([]bool, n)

	for i := 0; i < n; i++ {
		if absorbed[i] {
			continue
		}
		res.Kept = append(res.Kept, i)
		for j := i + 1; j < n; j++ {
			if absorbed[j] {
				continue
			}
			if vector.CosineSimilarity(embeddings[i], embeddings[j]) > threshold {
				absorbed[j] = true
				res.LeaderOf[j] = i
			}
		}
	}
	return res
}

// DeduplicateChunks drops near duplicate chunks and renumbers the survivors
// densely from 0, keeping their relative order.
func DeduplicateChunks(chunks []common.Chunk, threshold float64) []common.Chunk {
	embeddings := make([][]float32, len(chunks))
	for i := range chunks {
		embeddings[i] = chunks[i].Embedding
	}
	res := Deduplicate(embeddings, threshold)

	out := make([]common.Chunk, 0, len(res.Kept))
	for _, i := range res.Kept {
		c := chunks[i]
		c.Index = len(out)
		out = append(out, c)
	}
	return out
}
