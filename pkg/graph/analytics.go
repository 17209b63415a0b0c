package graph

import (
	"fmt"
	"math"
	"slices"

	"github.com/OFFIS-RIT/graphvec/pkg/common"

	gonumgraph "gonum.org/v1/gonum/graph"
	"gonum.org/v1/gonum/graph/network"
	"gonum.org/v1/gonum/graph/simple"
	"gonum.org/v1/gonum/graph/traverse"
)

const (
	PageRankDamping   = 0.85
	PageRankTolerance = 1e-6
)

// toGonum converts g into a weighted gonum graph whose node IDs are the
// insertion positions of g's nodes. Edges without positive weight carry no
// rank mass and are left out of the weighted graph.
func (g *KnowledgeGraph) toGonum() *simple.WeightedDirectedGraph {
	dg := simple.NewWeightedDirectedGraph(0, 0)
	for i := range g.order {
		dg.AddNode(simple.Node(int64(i)))
	}
	for _, k := range g.edgeOrder {
		e := g.edges[k]
		if !(e.Weight > 0) {
			continue
		}
		dg.SetWeightedEdge(dg.NewWeightedEdge(
			simple.Node(int64(g.pos[k.source])),
			simple.Node(int64(g.pos[k.target])),
			e.Weight,
		))
	}
	return dg
}

// ComputeImportance returns a weighted PageRank score per node, indexed by
// insertion position.
func (g *KnowledgeGraph) ComputeImportance() (scores []float64, err error) {
	if len(g.order) == 0 {
		return nil, fmt.Errorf("%w: pagerank of an empty graph", common.ErrDerivedMetricFailure)
	}
	defer func() {
		if r := recover(); r != nil {
			scores = nil
			err = fmt.Errorf("%w: pagerank panicked: %v", common.ErrDerivedMetricFailure, r)
		}
	}()

	ranks := network.PageRank(g.toGonum(), PageRankDamping, PageRankTolerance)

	scores = make([]float64, len(g.order))
	for i := range scores {
		v, ok := ranks[int64(i)]
		if !ok || math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: pagerank produced no finite score for %q", common.ErrDerivedMetricFailure, g.order[i])
		}
		scores[i] = v
	}
	return scores, nil
}

// ComputeCommunities assigns every node the id of its weakly connected
// component. Components are numbered 0, 1, 2, ... in the order their first
// node was inserted.
func (g *KnowledgeGraph) ComputeCommunities() (ids []int, err error) {
	if len(g.order) == 0 {
		return nil, fmt.Errorf("%w: communities of an empty graph", common.ErrDerivedMetricFailure)
	}
	defer func() {
		if r := recover(); r != nil {
			ids = nil
			err = fmt.Errorf("%w: community detection panicked: %v", common.ErrDerivedMetricFailure, r)
		}
	}()

	undirected := gonumgraph.Undirect{G: g.toGonumUnweighted()}
	ids = make([]int, len(g.order))
	current := 0
	bf := traverse.BreadthFirst{
		Visit: func(n gonumgraph.Node) {
			ids[n.ID()] = current
		},
	}
	for i := range g.order {
		start := simple.Node(int64(i))
		if bf.Visited(start) {
			continue
		}
		bf.Walk(undirected, start, nil)
		current++
	}
	return ids, nil
}

// toGonumUnweighted keeps every edge regardless of weight, since
// connectivity does not depend on it.
func (g *KnowledgeGraph) toGonumUnweighted() *simple.DirectedGraph {
	dg := simple.NewDirectedGraph()
	for i := range g.order {
		dg.AddNode(simple.Node(int64(i)))
	}
	for _, k := range g.edgeOrder {
		dg.SetEdge(dg.NewEdge(
			simple.Node(int64(g.pos[k.source])),
			simple.Node(int64(g.pos[k.target])),
		))
	}
	return dg
}

// Annotate recomputes importance and community of every node. A failed
// computation resets the affected attribute to 0 on all nodes and its error
// is returned so callers can report it.
func (g *KnowledgeGraph) Annotate() (importanceErr, communityErr error) {
	scores, importanceErr := g.ComputeImportance()
	communities, communityErr := g.ComputeCommunities()
	for i, name := range g.order {
		n := g.nodes[name]
		n.Importance = 0
		if importanceErr == nil {
			n.Importance = scores[i]
		}
		n.Community = 0
		if communityErr == nil {
			n.Community = communities[i]
		}
	}
	return importanceErr, communityErr
}

// RankedNode is a node name with its importance score.
type RankedNode struct {
	Name       string  `json:"name"`
	Importance float64 `json:"importance"`
	Frequency  int     `json:"frequency"`
}

// Stats summarizes a graph.
type Stats struct {
	Nodes       int          `json:"nodes"`
	Edges       int          `json:"edges"`
	Communities int          `json:"communities"`
	TopNodes    []RankedNode `json:"top_nodes"`
}

// Stats returns the node, edge and community counts plus the top n nodes by
// importance. Ties are broken by insertion order.
func (g *KnowledgeGraph) Stats(top int) Stats {
	s := Stats{Nodes: len(g.order), Edges: len(g.edgeOrder)}

	seen := make(map[int]struct{})
	ranked := make([]RankedNode, 0, len(g.order))
	for _, name := range g.order {
		n := g.nodes[name]
		seen[n.Community] = struct{}{}
		ranked = append(ranked, RankedNode{Name: n.Name, Importance: n.Importance, Frequency: n.Frequency})
	}
	if len(g.order) > 0 {
		s.Communities = len(seen)
	}

	slices.SortStableFunc(ranked, func(a, b RankedNode) int {
		switch {
		case a.Importance > b.Importance:
			return -1
		case a.Importance < b.Importance:
			return 1
		}
		return 0
	})
	if top < 0 {
		top = 0
	}
	s.TopNodes = ranked[:min(top, len(ranked))]
	return s
}
