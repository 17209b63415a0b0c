// Package query ranks knowledge graph nodes and chunks for a question and
// enumerates paths between entities.
package query

import (
	"slices"
	"strings"

	"github.com/OFFIS-RIT/graphvec/pkg/graph"
)

// Weights balance the three node scoring terms.
type Weights struct {
	Keyword    float64 `json:"keyword" yaml:"keyword"`
	Importance float64 `json:"importance" yaml:"importance"`
	Frequency  float64 `json:"frequency" yaml:"frequency"`
}

func DefaultWeights() Weights {
	return Weights{Keyword: 2, Importance: 10, Frequency: 0.1}
}

// IsZero reports whether no weight is set.
func (w Weights) IsZero() bool {
	return w == Weights{}
}

// ScoredNode is a node with its score for one query. Position is the
// node's insertion position in the graph and breaks ties.
type ScoredNode struct {
	Name       string  `json:"name"`
	Score      float64 `json:"score"`
	Position   int     `json:"-"`
	Importance float64 `json:"importance"`
	Frequency  int     `json:"frequency"`
	Community  int     `json:"community"`
}

// KeywordMatchCount counts the whitespace separated query tokens that occur
// in name, ignoring case. Repeated tokens are counted every time.
func KeywordMatchCount(query, name string) int {
	lowerName := strings.ToLower(name)
	count := 0
	for _, token := range strings.Fields(strings.ToLower(query)) {
		if strings.Contains(lowerName, token) {
			count++
		}
	}
	return count
}

// ScoreNodes scores every node of g for query. Nodes scoring 0 or less are
// left out. The result is in insertion order.
func ScoreNodes(g *graph.KnowledgeGraph, query string, w Weights) []ScoredNode {
	if g == nil {
		return []ScoredNode{}
	}
	scored := make([]ScoredNode, 0)
	for i, n := range g.Nodes() {
		kw := KeywordMatchCount(query, n.Name)
		score := float64(kw)*w.Keyword + n.Importance*w.Importance + float64(n.Frequency)*w.Frequency
		if !(score > 0) {
			continue
		}
		scored = append(scored, ScoredNode{
			Name:       n.Name,
			Score:      score,
			Position:   i,
			Importance: n.Importance,
			Frequency:  n.Frequency,
			Community:  n.Community,
		})
	}
	return scored
}

// SelectTopK returns the k best nodes by descending score. Equal scores keep
// the earlier inserted node first. The input is not modified.
func SelectTopK(scored []ScoredNode, k int) []ScoredNode {
	if k <= 0 || len(scored) == 0 {
		return []ScoredNode{}
	}
	sorted := slices.Clone(scored)
	slices.SortFunc(sorted, func(a, b ScoredNode) int {
		switch {
		case a.Score > b.Score:
			return -1
		case a.Score < b.Score:
			return 1
		}
		return a.Position - b.Position
	})
	return sorted[:min(k, len(sorted))]
}

// ExpandNeighborhood returns an independent copy of the subgraph induced by
// names and their direct predecessors and successors.
func ExpandNeighborhood(g *graph.KnowledgeGraph, names []string) *graph.KnowledgeGraph {
	if g == nil {
		return graph.New()
	}
	keep := make([]string, 0, len(names)*3)
	for _, name := range names {
		if !g.HasNode(name) {
			continue
		}
		keep = append(keep, name)
		keep = append(keep, g.Predecessors(name)...)
		keep = append(keep, g.Successors(name)...)
	}
	return g.Subgraph(keep)
}

func nodeNames(nodes []ScoredNode) []string {
	names := make([]string, len(nodes))
	for i, n := range nodes {
		names[i] = n.Name
	}
	return names
}
