package graph

import (
	"encoding/json"
	"fmt"
)

// SnapshotVersion is the format version written by Encode.
const SnapshotVersion = 1

type snapshotDocument struct {
	Version int    `json:"version"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Encode serializes g, including derived attributes. Nodes and edges are
// written in insertion order, which is enough to restore every adjacency
// order on Decode.
func Encode(g *KnowledgeGraph) ([]byte, error) {
	doc := snapshotDocument{
		Version: SnapshotVersion,
		Nodes:   g.Nodes(),
		Edges:   g.Edges(),
	}
	return json.Marshal(doc)
}

// Decode restores a graph written by Encode. Documents that violate the
// graph's structural rules are rejected rather than repaired.
func Decode(data []byte) (*KnowledgeGraph, error) {
	var doc snapshotDocument
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if doc.Version != SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", doc.Version)
	}

	g := New()
	for _, n := range doc.Nodes {
		if !ValidEntityName(n.Name) {
			return nil, fmt.Errorf("invalid node name %q", n.Name)
		}
		if _, ok := g.nodes[n.Name]; ok {
			return nil, fmt.Errorf("duplicate node %q", n.Name)
		}
		if n.Frequency < 1 {
			return nil, fmt.Errorf("node %q has frequency %d", n.Name, n.Frequency)
		}
		node := n
		node.Type = EntityType
		g.nodes[n.Name] = &node
		g.pos[n.Name] = len(g.order)
		g.order = append(g.order, n.Name)
	}

	for _, e := range doc.Edges {
		if e.Source == e.Target {
			return nil, fmt.Errorf("self loop on %q", e.Source)
		}
		if !g.HasNode(e.Source) || !g.HasNode(e.Target) {
			return nil, fmt.Errorf("edge %q -> %q references an unknown node", e.Source, e.Target)
		}
		if e.Frequency < 1 || e.Relation == "" {
			return nil, fmt.Errorf("edge %q -> %q is malformed", e.Source, e.Target)
		}
		k := edgeKey{source: e.Source, target: e.Target}
		if _, ok := g.edges[k]; ok {
			return nil, fmt.Errorf("duplicate edge %q -> %q", e.Source, e.Target)
		}
		edge := e
		g.edges[k] = &edge
		g.edgeOrder = append(g.edgeOrder, k)
		g.succ[k.source] = append(g.succ[k.source], k.target)
		g.pred[k.target] = append(g.pred[k.target], k.source)
	}
	return g, nil
}
