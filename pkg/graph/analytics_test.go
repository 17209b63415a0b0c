package graph

import (
	"errors"
	"math"
	"testing"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
)

func TestComputeImportance(t *testing.T) {
	g := New()
	g.AddRelation("Apple", "Samsung", "competes_with", 0.9)
	g.AddRelation("Google", "Samsung", "competes_with", 0.5)
	g.AddEntity("Nokia")

	scores, err := g.ComputeImportance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(scores) != 4 {
		t.Fatalf("expected 4 scores, got %d", len(scores))
	}

	var sum float64
	for _, s := range scores {
		if s < 0 {
			t.Fatalf("expected non-negative score, got %v", s)
		}
		sum += s
	}
	if math.Abs(sum-1) > 1e-3 {
		t.Fatalf("expected scores to sum to 1, got %v", sum)
	}

	samsung := scores[g.Position("Samsung")]
	for _, name := range []string{"Apple", "Google", "Nokia"} {
		if scores[g.Position(name)] >= samsung {
			t.Fatalf("expected Samsung to outrank %s, got %v >= %v", name, scores[g.Position(name)], samsung)
		}
	}
}

func TestComputeImportanceSymmetric(t *testing.T) {
	g := New()
	g.AddRelation("Apple", "Samsung", "competes_with", 1)
	g.AddRelation("Samsung", "Apple", "competes_with", 1)

	scores, err := g.ComputeImportance()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, s := range scores {
		if math.Abs(s-0.5) > 1e-3 {
			t.Fatalf("expected score 0.5 at %d, got %v", i, s)
		}
	}
}

func TestComputeCommunities(t *testing.T) {
	g := New()
	g.AddEntity("Nokia")
	g.AddRelation("Apple", "Samsung", "competes_with", 1)
	g.AddRelation("Google", "Samsung", "competes_with", 1)
	g.AddRelation("Tesla", "Panasonic", "buys_from", 1)

	ids, err := g.ComputeCommunities()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := map[string]int{
		"Nokia":     0,
		"Apple":     1,
		"Samsung":   1,
		"Google":    1,
		"Tesla":     2,
		"Panasonic": 2,
	}
	for name, id := range want {
		if got := ids[g.Position(name)]; got != id {
			t.Fatalf("expected community %d for %s, got %d", id, name, got)
		}
	}
}

func TestAnalyticsOnEmptyGraph(t *testing.T) {
	g := New()

	if _, err := g.ComputeImportance(); !errors.Is(err, common.ErrDerivedMetricFailure) {
		t.Fatalf("expected ErrDerivedMetricFailure, got %v", err)
	}
	if _, err := g.ComputeCommunities(); !errors.Is(err, common.ErrDerivedMetricFailure) {
		t.Fatalf("expected ErrDerivedMetricFailure, got %v", err)
	}

	importanceErr, communityErr := g.Annotate()
	if importanceErr == nil || communityErr == nil {
		t.Fatalf("expected both errors, got %v and %v", importanceErr, communityErr)
	}
}

func TestAnnotate(t *testing.T) {
	g := New()
	g.AddRelation("Apple", "Samsung", "competes_with", 1)
	g.AddEntity("Nokia")

	importanceErr, communityErr := g.Annotate()
	if importanceErr != nil || communityErr != nil {
		t.Fatalf("unexpected errors: %v, %v", importanceErr, communityErr)
	}

	samsung, _ := g.Node("Samsung")
	apple, _ := g.Node("Apple")
	nokia, _ := g.Node("Nokia")
	if samsung.Importance <= apple.Importance {
		t.Fatalf("expected Samsung above Apple, got %v <= %v", samsung.Importance, apple.Importance)
	}
	if apple.Community != samsung.Community {
		t.Fatalf("expected Apple and Samsung to share a community, got %d and %d", apple.Community, samsung.Community)
	}
	if nokia.Community == apple.Community {
		t.Fatalf("expected Nokia in its own community, got %d", nokia.Community)
	}
}

func TestStats(t *testing.T) {
	data := []byte(`{"version":1,"nodes":[
		{"name":"Apple","frequency":3,"importance":0.2,"community":0},
		{"name":"Samsung","frequency":1,"importance":0.5,"community":0},
		{"name":"Google","frequency":2,"importance":0.2,"community":1},
		{"name":"Nokia","frequency":1,"importance":0.1,"community":2}
	],"edges":[
		{"source":"Apple","target":"Samsung","relation":"competes_with","weight":1,"frequency":1}
	]}`)
	g, err := Decode(data)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := g.Stats(3)
	if s.Nodes != 4 || s.Edges != 1 || s.Communities != 3 {
		t.Fatalf("expected 4 nodes, 1 edge and 3 communities, got %+v", s)
	}
	want := []string{"Samsung", "Apple", "Google"}
	if len(s.TopNodes) != len(want) {
		t.Fatalf("expected %d top nodes, got %d", len(want), len(s.TopNodes))
	}
	for i, name := range want {
		if s.TopNodes[i].Name != name {
			t.Fatalf("expected %s at %d, got %s", name, i, s.TopNodes[i].Name)
		}
	}

	if got := len(g.Stats(10).TopNodes); got != 4 {
		t.Fatalf("expected top list capped at node count, got %d", got)
	}
	if got := New().Stats(5); got.Communities != 0 || len(got.TopNodes) != 0 {
		t.Fatalf("expected empty stats, got %+v", got)
	}
}
