package query

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"
)

// financeGraph has the nodes AAPL, Inflation, Fed, Apple and Nokia.
func financeGraph(t *testing.T) *graph.KnowledgeGraph {
	t.Helper()
	g, err := graph.Decode([]byte(`{"version":1,"nodes":[
		{"name":"AAPL","frequency":2,"importance":0.1},
		{"name":"Inflation","frequency":1,"importance":0.3},
		{"name":"Fed","frequency":1,"importance":0.3},
		{"name":"Apple","frequency":1,"importance":0.1},
		{"name":"Nokia","frequency":1,"importance":0.2}
	],"edges":[
		{"source":"AAPL","target":"Inflation","relation":"affected_by","weight":0.9,"frequency":1},
		{"source":"Inflation","target":"Fed","relation":"drives","weight":0.8,"frequency":1},
		{"source":"Apple","target":"AAPL","relation":"listed_as","weight":0.9,"frequency":1}
	]}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return g
}

func TestKeywordMatchCount(t *testing.T) {
	tests := []struct {
		query string
		name  string
		want  int
	}{
		{query: "apple revenue", name: "Apple Inc", want: 1},
		{query: "APPLE", name: "apple", want: 1},
		{query: "apple apple", name: "Apple", want: 2},
		{query: "app inc", name: "Apple Inc", want: 2},
		{query: "", name: "Apple", want: 0},
		{query: "  \t ", name: "Apple", want: 0},
		{query: "samsung", name: "Apple", want: 0},
	}

	for _, tt := range tests {
		if got := KeywordMatchCount(tt.query, tt.name); got != tt.want {
			t.Fatalf("expected %d for %q in %q, got %d", tt.want, tt.query, tt.name, got)
		}
	}
}

func TestScoreNodes(t *testing.T) {
	g := financeGraph(t)

	scored := ScoreNodes(g, "inflation outlook", DefaultWeights())
	if len(scored) != 5 {
		t.Fatalf("expected 5 scored nodes, got %d", len(scored))
	}
	inflation := scored[1]
	if inflation.Name != "Inflation" {
		t.Fatalf("expected insertion order, got %s at 1", inflation.Name)
	}
	want := 1*2 + 0.3*10 + 1*0.1
	if inflation.Score < want-1e-9 || inflation.Score > want+1e-9 {
		t.Fatalf("expected score %v, got %v", want, inflation.Score)
	}

	scored = ScoreNodes(g, "inflation", Weights{Keyword: 1})
	if len(scored) != 1 || scored[0].Name != "Inflation" {
		t.Fatalf("expected only Inflation to score above 0, got %+v", scored)
	}

	if got := ScoreNodes(nil, "inflation", DefaultWeights()); len(got) != 0 {
		t.Fatalf("expected no scores for nil graph, got %d", len(got))
	}
}

func TestSelectTopK(t *testing.T) {
	scored := []ScoredNode{
		{Name: "AAPL", Score: 1, Position: 0},
		{Name: "Inflation", Score: 3, Position: 1},
		{Name: "Fed", Score: 3, Position: 2},
		{Name: "Apple", Score: 2, Position: 3},
	}

	tests := []struct {
		name string
		k    int
		want []string
	}{
		{name: "ties keep insertion order", k: 2, want: []string{"Inflation", "Fed"}},
		{name: "k larger than input", k: 10, want: []string{"Inflation", "Fed", "Apple", "AAPL"}},
		{name: "zero k", k: 0, want: []string{}},
		{name: "negative k", k: -1, want: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nodeNames(SelectTopK(scored, tt.k))
			if !slices.Equal(got, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}

	if scored[0].Name != "AAPL" {
		t.Fatal("expected input to be left unsorted")
	}
}

func TestHigherImportanceWeightKeepsOrder(t *testing.T) {
	g := financeGraph(t)
	for _, wpr := range []float64{1, 10, 100} {
		top := SelectTopK(ScoreNodes(g, "", Weights{Importance: wpr, Frequency: 0.1}), 5)
		// Nokia has higher importance than Apple and equal frequency
		nokia := slices.IndexFunc(top, func(n ScoredNode) bool { return n.Name == "Nokia" })
		apple := slices.IndexFunc(top, func(n ScoredNode) bool { return n.Name == "Apple" })
		if nokia > apple {
			t.Fatalf("expected Nokia above Apple with w_pr=%v, got %d > %d", wpr, nokia, apple)
		}
	}
}

func TestExpandNeighborhood(t *testing.T) {
	g := financeGraph(t)

	sub := ExpandNeighborhood(g, []string{"AAPL"})
	var names []string
	for _, n := range sub.Nodes() {
		names = append(names, n.Name)
	}
	if want := []string{"AAPL", "Inflation", "Apple"}; !slices.Equal(names, want) {
		t.Fatalf("expected %v, got %v", want, names)
	}
	if sub.EdgeCount() != 2 {
		t.Fatalf("expected 2 edges, got %d", sub.EdgeCount())
	}
	for _, e := range sub.Edges() {
		if _, ok := g.Edge(e.Source, e.Target); !ok {
			t.Fatalf("expected edge %s -> %s to exist in full graph", e.Source, e.Target)
		}
	}

	n, _ := sub.Node("Inflation")
	if n.Importance != 0.3 {
		t.Fatalf("expected attributes to be carried over, got %v", n.Importance)
	}

	sub.AddEntity("Inflation")
	orig, _ := g.Node("Inflation")
	if orig.Frequency != 1 {
		t.Fatalf("expected original to be untouched, got frequency %d", orig.Frequency)
	}

	if got := ExpandNeighborhood(g, []string{"Missing"}); got.NodeCount() != 0 {
		t.Fatalf("expected empty subgraph, got %d nodes", got.NodeCount())
	}
}

func TestMultiHopPaths(t *testing.T) {
	g := financeGraph(t)
	g.AddRelation("AAPL", "Fed", "lobbies", 0.2)
	g.AddRelation("Fed", "Nokia", "regulates", 0.2)

	tests := []struct {
		name       string
		start, end string
		maxHops    int
		maxResults int
		want       [][]string
	}{
		{
			name:  "two hops in successor order",
			start: "AAPL", end: "Fed", maxHops: 2,
			want: [][]string{{"AAPL", "Inflation", "Fed"}, {"AAPL", "Fed"}},
		},
		{
			name:  "hop bound",
			start: "AAPL", end: "Fed", maxHops: 1,
			want: [][]string{{"AAPL", "Fed"}},
		},
		{
			name:  "result limit",
			start: "Apple", end: "Nokia", maxHops: 5, maxResults: 1,
			want: [][]string{{"Apple", "AAPL", "Inflation", "Fed", "Nokia"}},
		},
		{
			name:  "default limit",
			start: "Apple", end: "Nokia", maxHops: 5,
			want: [][]string{{"Apple", "AAPL", "Inflation", "Fed", "Nokia"}, {"Apple", "AAPL", "Fed", "Nokia"}},
		},
		{name: "missing end", start: "AAPL", end: "Missing", maxHops: 3, want: [][]string{}},
		{name: "missing start", start: "Missing", end: "Fed", maxHops: 3, want: [][]string{}},
		{name: "same endpoints", start: "AAPL", end: "AAPL", maxHops: 3, want: [][]string{}},
		{name: "zero hops", start: "AAPL", end: "Fed", maxHops: 0, want: [][]string{}},
		{name: "against edge direction", start: "Fed", end: "AAPL", maxHops: 3, want: [][]string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MultiHopPaths(g, tt.start, tt.end, tt.maxHops, tt.maxResults)
			if got == nil {
				t.Fatal("expected non-nil result")
			}
			if !slices.EqualFunc(got, tt.want, slices.Equal[[]string]) {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestRetrieve(t *testing.T) {
	g := financeGraph(t)
	chunks := []common.Chunk{
		{ID: "a", Index: 0, Text: "Fed raises rates", Embedding: []float32{1, 0}},
		{ID: "b", Index: 1, Text: "Apple earnings", Embedding: []float32{0, 1}},
		{ID: "c", Index: 2, Text: "Fed minutes", Embedding: []float32{1, 0}},
	}
	trace := NewQueryTrace()

	res, err := Retrieve(context.Background(), RetrieveParams{
		Query:          "fed",
		QueryEmbedding: []float32{1, 0.1},
		Chunks:         chunks,
		Graph:          g,
		K:              2,
		Tracer:         trace,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.VectorErr != nil {
		t.Fatalf("unexpected vector error: %v", res.VectorErr)
	}

	var ids []string
	for _, c := range res.Chunks {
		ids = append(ids, c.Chunk.ID)
	}
	if want := []string{"a", "c"}; !slices.Equal(ids, want) {
		t.Fatalf("expected chunks %v, got %v", want, ids)
	}

	if res.TopNodes[0].Name != "Fed" {
		t.Fatalf("expected Fed as top node, got %s", res.TopNodes[0].Name)
	}
	if !res.Subgraph.HasNode("Inflation") {
		t.Fatal("expected predecessor Inflation in subgraph")
	}

	snap := trace.Snapshot()
	if !slices.Equal(snap.ConsideredChunkIDs, []string{"a", "c"}) {
		t.Fatalf("expected traced chunk ids, got %v", snap.ConsideredChunkIDs)
	}
	if !slices.Contains(snap.SelectedEntities, "Fed") {
		t.Fatalf("expected Fed to be traced, got %v", snap.SelectedEntities)
	}
}

func TestRetrieveEmptyInputs(t *testing.T) {
	res, err := Retrieve(context.Background(), RetrieveParams{Query: "fed", K: 3})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 0 || len(res.TopNodes) != 0 || res.Subgraph.NodeCount() != 0 {
		t.Fatalf("expected empty result, got %+v", res)
	}
}

type failingIndex struct{ err error }

func (f failingIndex) Len() int { return 1 }

func (f failingIndex) TopK(ctx context.Context, query []float32, k int) ([]vector.Hit, error) {
	return nil, f.err
}

func TestRetrieveVectorFailure(t *testing.T) {
	g := financeGraph(t)

	res, err := Retrieve(context.Background(), RetrieveParams{
		Query:          "fed",
		QueryEmbedding: []float32{1},
		Index:          failingIndex{err: errors.New("connection refused")},
		Graph:          g,
		K:              1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.VectorErr == nil {
		t.Fatal("expected vector error")
	}
	if len(res.TopNodes) != 1 {
		t.Fatalf("expected graph block despite vector failure, got %d nodes", len(res.TopNodes))
	}

	_, err = Retrieve(context.Background(), RetrieveParams{
		QueryEmbedding: []float32{1},
		Index:          failingIndex{err: context.DeadlineExceeded},
		Graph:          g,
		K:              1,
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
}

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) GenerateEmbedding(ctx context.Context, input []byte) ([]float32, error) {
	return f.vec, f.err
}

func TestEngine(t *testing.T) {
	g := financeGraph(t)
	chunks := []common.Chunk{
		{ID: "a", Index: 0, Embedding: []float32{0, 1}},
		{ID: "b", Index: 1, Embedding: []float32{1, 0}},
	}

	if _, err := NewEngine(NewEngineParams{}); !errors.Is(err, common.ErrInvalidConfiguration) {
		t.Fatalf("expected ErrInvalidConfiguration, got %v", err)
	}

	e, err := NewEngine(NewEngineParams{
		Chunks:   chunks,
		Graph:    g,
		Embedder: fakeEmbedder{vec: []float32{1, 0}},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if e.Weights() != DefaultWeights() {
		t.Fatalf("expected default weights, got %+v", e.Weights())
	}

	res, err := e.HybridRetrieve(context.Background(), "apple", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(res.Chunks) != 1 || res.Chunks[0].Chunk.ID != "b" {
		t.Fatalf("expected chunk b, got %+v", res.Chunks)
	}

	trace := NewQueryTrace()
	paths := e.WithTracer(trace).MultiHopPaths("AAPL", "Fed", 2, 0)
	if len(paths) != 1 {
		t.Fatalf("expected 1 path, got %v", paths)
	}
	if got := trace.Snapshot().Paths; len(got) != 1 {
		t.Fatalf("expected traced path, got %v", got)
	}
}

func TestEngineEmbeddingFailure(t *testing.T) {
	e, err := NewEngine(NewEngineParams{
		Chunks:   []common.Chunk{{ID: "a", Embedding: []float32{1}}},
		Graph:    financeGraph(t),
		Embedder: fakeEmbedder{err: errors.New("service unavailable")},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res, err := e.HybridRetrieve(context.Background(), "fed", 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !errors.Is(res.VectorErr, common.ErrEmbeddingFailure) {
		t.Fatalf("expected ErrEmbeddingFailure, got %v", res.VectorErr)
	}
	if len(res.Chunks) != 0 {
		t.Fatalf("expected empty vector block, got %d chunks", len(res.Chunks))
	}
	if len(res.TopNodes) == 0 {
		t.Fatal("expected graph block to be filled")
	}
}

func TestMultiTracer(t *testing.T) {
	a, b := NewQueryTrace(), NewQueryTrace()
	RecordSelectedEntities(MultiTracer{a, nil, b}, "Fed", "", "AAPL")
	RecordSelectedEntities(nil, "ignored")

	for _, tr := range []*QueryTrace{a, b} {
		if got := tr.Snapshot().SelectedEntities; !slices.Equal(got, []string{"AAPL", "Fed"}) {
			t.Fatalf("expected sorted entities, got %v", got)
		}
	}
}
