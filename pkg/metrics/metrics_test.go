package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/graph"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordBuild(t *testing.T) {
	fresh := testutil.ToFloat64(GraphBuildsTotal.WithLabelValues("fresh"))
	loaded := testutil.ToFloat64(GraphBuildsTotal.WithLabelValues("snapshot"))
	failures := testutil.ToFloat64(ExtractionFailuresTotal)
	loadFailures := testutil.ToFloat64(SnapshotFailuresTotal.WithLabelValues("load"))
	saveFailures := testutil.ToFloat64(SnapshotFailuresTotal.WithLabelValues("save"))

	g := graph.New()
	g.AddRelation("Apple", "Samsung", "competes_with", 0.9)

	RecordBuild(g, &graph.BuildReport{
		LoadErr:            fmt.Errorf("read: %w", graph.ErrSnapshotNotFound),
		ExtractionFailures: []graph.ChunkFailure{{Index: 1}, {Index: 4}},
		SaveErr:            errors.New("disk full"),
	})
	RecordBuild(g, &graph.BuildReport{Loaded: true})
	RecordBuild(g, &graph.BuildReport{LoadErr: errors.New("corrupt snapshot")})

	if got := testutil.ToFloat64(GraphBuildsTotal.WithLabelValues("fresh")) - fresh; got != 2 {
		t.Fatalf("expected 2 fresh builds, got %v", got)
	}
	if got := testutil.ToFloat64(GraphBuildsTotal.WithLabelValues("snapshot")) - loaded; got != 1 {
		t.Fatalf("expected 1 loaded build, got %v", got)
	}
	if got := testutil.ToFloat64(ExtractionFailuresTotal) - failures; got != 2 {
		t.Fatalf("expected 2 extraction failures, got %v", got)
	}
	if got := testutil.ToFloat64(SnapshotFailuresTotal.WithLabelValues("load")) - loadFailures; got != 1 {
		t.Fatalf("expected 1 load failure, got %v", got)
	}
	if got := testutil.ToFloat64(SnapshotFailuresTotal.WithLabelValues("save")) - saveFailures; got != 1 {
		t.Fatalf("expected 1 save failure, got %v", got)
	}
	if got := testutil.ToFloat64(GraphNodes); got != 2 {
		t.Fatalf("expected 2 nodes, got %v", got)
	}
	if got := testutil.ToFloat64(GraphEdges); got != 1 {
		t.Fatalf("expected 1 edge, got %v", got)
	}
}

func TestObserveRequest(t *testing.T) {
	before := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues("POST", "/api/query", "200"))
	ObserveRequest("POST", "/api/query", 200, 15*time.Millisecond)
	after := testutil.ToFloat64(HttpRequestsTotal.WithLabelValues("POST", "/api/query", "200"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestObserveRetrieval(t *testing.T) {
	ObserveRetrieval(3*time.Millisecond, true)
	ObserveRetrieval(3*time.Millisecond, false)
	if got := testutil.CollectAndCount(RetrievalDuration); got != 2 {
		t.Fatalf("expected 2 label sets, got %d", got)
	}
}
