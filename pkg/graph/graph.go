package graph

import (
	"unicode/utf8"
)

// MinEntityNameLength is the shortest entity name, in runes, that is
// accepted into the graph.
const MinEntityNameLength = 3

// EntityType is the type attribute of every node.
const EntityType = "entity"

// Node is an entity of the knowledge graph.
//
// Frequency counts how often the entity was mentioned. Importance and
// Community are derived attributes that are recomputed on every build.
type Node struct {
	Name       string  `json:"name"`
	Frequency  int     `json:"frequency"`
	Type       string  `json:"type"`
	Importance float64 `json:"importance"`
	Community  int     `json:"community"`
}

// Edge is a directed, labeled relation between two nodes.
//
// Weight is the sum of the confidences of every observation and never
// decreases. Relation keeps the label of the first observation.
type Edge struct {
	Source    string  `json:"source"`
	Target    string  `json:"target"`
	Relation  string  `json:"relation"`
	Weight    float64 `json:"weight"`
	Frequency int     `json:"frequency"`
}

type edgeKey struct {
	source string
	target string
}

// KnowledgeGraph is a directed graph of entities without parallel edges or
// self loops. Nodes, edges and adjacency lists keep insertion order, which
// is the tie breaker wherever results are ranked.
//
// A KnowledgeGraph is not safe for concurrent mutation. Once built it is
// only read, and concurrent readers need no synchronization.
type KnowledgeGraph struct {
	nodes map[string]*Node
	order []string
	pos   map[string]int

	edges     map[edgeKey]*Edge
	edgeOrder []edgeKey

	succ map[string][]string
	pred map[string][]string
}

// New returns an empty graph.
func New() *KnowledgeGraph {
	return &KnowledgeGraph{
		nodes: make(map[string]*Node),
		pos:   make(map[string]int),
		edges: make(map[edgeKey]*Edge),
		succ:  make(map[string][]string),
		pred:  make(map[string][]string),
	}
}

// ValidEntityName reports whether name is long enough to become a node.
func ValidEntityName(name string) bool {
	return utf8.RuneCountInString(name) >= MinEntityNameLength
}

func (g *KnowledgeGraph) insertNode(name string) *Node {
	n := &Node{Name: name, Frequency: 1, Type: EntityType}
	g.nodes[name] = n
	g.pos[name] = len(g.order)
	g.order = append(g.order, name)
	return n
}

// AddEntity records one mention of name. A known entity has its frequency
// incremented, an unknown one is inserted with frequency 1. Names shorter
// than MinEntityNameLength are ignored and reported as false.
func (g *KnowledgeGraph) AddEntity(name string) bool {
	if !ValidEntityName(name) {
		return false
	}
	if n, ok := g.nodes[name]; ok {
		n.Frequency++
		return true
	}
	g.insertNode(name)
	return true
}

// RelationResult tells what AddRelation did with a relation.
type RelationResult int

const (
	RelationSkipped RelationResult = iota
	RelationCreated
	RelationMerged
)

// AddRelation records one observation of source -relation-> target.
//
// An existing edge gains confidence as weight and one frequency, keeping its
// original label. A new edge starts with weight confidence and frequency 1.
// Endpoints that are not nodes yet are inserted with frequency 1.
// Relations with an empty field, an invalid endpoint name or equal
// endpoints are skipped.
func (g *KnowledgeGraph) AddRelation(source, target, relation string, confidence float64) RelationResult {
	if source == "" || target == "" || relation == "" {
		return RelationSkipped
	}
	if source == target || !ValidEntityName(source) || !ValidEntityName(target) {
		return RelationSkipped
	}

	key := edgeKey{source: source, target: target}
	if e, ok := g.edges[key]; ok {
		e.Weight += confidence
		e.Frequency++
		return RelationMerged
	}

	if _, ok := g.nodes[source]; !ok {
		g.insertNode(source)
	}
	if _, ok := g.nodes[target]; !ok {
		g.insertNode(target)
	}
	g.edges[key] = &Edge{
		Source:    source,
		Target:    target,
		Relation:  relation,
		Weight:    confidence,
		Frequency: 1,
	}
	g.edgeOrder = append(g.edgeOrder, key)
	g.succ[source] = append(g.succ[source], target)
	g.pred[target] = append(g.pred[target], source)
	return RelationCreated
}

func (g *KnowledgeGraph) NodeCount() int {
	return len(g.order)
}

func (g *KnowledgeGraph) EdgeCount() int {
	return len(g.edgeOrder)
}

func (g *KnowledgeGraph) HasNode(name string) bool {
	_, ok := g.nodes[name]
	return ok
}

// Node returns a copy of the named node.
func (g *KnowledgeGraph) Node(name string) (Node, bool) {
	n, ok := g.nodes[name]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Position returns the insertion position of name, or -1 if it is unknown.
func (g *KnowledgeGraph) Position(name string) int {
	p, ok := g.pos[name]
	if !ok {
		return -1
	}
	return p
}

// Nodes returns copies of all nodes in insertion order.
func (g *KnowledgeGraph) Nodes() []Node {
	out := make([]Node, len(g.order))
	for i, name := range g.order {
		out[i] = *g.nodes[name]
	}
	return out
}

// Edge returns a copy of the edge from source to target.
func (g *KnowledgeGraph) Edge(source, target string) (Edge, bool) {
	e, ok := g.edges[edgeKey{source: source, target: target}]
	if !ok {
		return Edge{}, false
	}
	return *e, true
}

// Edges returns copies of all edges in insertion order.
func (g *KnowledgeGraph) Edges() []Edge {
	out := make([]Edge, len(g.edgeOrder))
	for i, k := range g.edgeOrder {
		out[i] = *g.edges[k]
	}
	return out
}

// Successors returns the targets of name's outgoing edges in insertion order.
func (g *KnowledgeGraph) Successors(name string) []string {
	return append([]string(nil), g.succ[name]...)
}

// Predecessors returns the sources of name's incoming edges in insertion order.
func (g *KnowledgeGraph) Predecessors(name string) []string {
	return append([]string(nil), g.pred[name]...)
}

// Subgraph returns an independent copy of the subgraph induced by names.
// Unknown names are ignored. Nodes and edges keep the relative order they
// have in g, so the copy can be ranked the same way as the original.
func (g *KnowledgeGraph) Subgraph(names []string) *KnowledgeGraph {
	keep := make(map[string]struct{}, len(names))
	for _, n := range names {
		if _, ok := g.nodes[n]; ok {
			keep[n] = struct{}{}
		}
	}

	sub := New()
	for _, name := range g.order {
		if _, ok := keep[name]; !ok {
			continue
		}
		n := *g.nodes[name]
		sub.nodes[name] = &n
		sub.pos[name] = len(sub.order)
		sub.order = append(sub.order, name)
	}
	for _, k := range g.edgeOrder {
		_, okS := keep[k.source]
		_, okT := keep[k.target]
		if !okS || !okT {
			continue
		}
		e := *g.edges[k]
		sub.edges[k] = &e
		sub.edgeOrder = append(sub.edgeOrder, k)
		sub.succ[k.source] = append(sub.succ[k.source], k.target)
		sub.pred[k.target] = append(sub.pred[k.target], k.source)
	}
	return sub
}

// Clone returns an independent deep copy of g.
func (g *KnowledgeGraph) Clone() *KnowledgeGraph {
	return g.Subgraph(g.order)
}
