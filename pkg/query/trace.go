package query

import (
	"slices"
	"sort"
	"strings"
	"sync"
)

type TraceEventKind string

const (
	TraceEventConsideredChunkIDs TraceEventKind = "considered_chunk_ids"
	TraceEventSelectedEntities   TraceEventKind = "selected_entities"
	TraceEventSubgraphEntities   TraceEventKind = "subgraph_entities"
	TraceEventPaths              TraceEventKind = "paths"
	TraceEventVectorSearch       TraceEventKind = "vector_search"
)

// TraceEvent is an extensible event envelope for query tracing.
// Additive changes to this struct are backward compatible for implementers.
type TraceEvent struct {
	Kind TraceEventKind

	ChunkIDs    []string
	EntityNames []string
	Paths       [][]string

	DurationMs int64
	Error      string
}

// Tracer is a sink for query tracing events.
//
// Implementers can forward events to logs, metrics, or custom post-processing
// pipelines.
type Tracer interface {
	Record(event TraceEvent)
}

// MultiTracer fan-outs trace events to multiple tracers.
type MultiTracer []Tracer

func (m MultiTracer) Record(event TraceEvent) {
	for _, t := range m {
		if t == nil {
			continue
		}
		t.Record(event)
	}
}

func RecordConsideredChunkIDs(t Tracer, ids ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventConsideredChunkIDs, ChunkIDs: ids})
}

func RecordSelectedEntities(t Tracer, names ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSelectedEntities, EntityNames: names})
}

func RecordSubgraphEntities(t Tracer, names ...string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventSubgraphEntities, EntityNames: names})
}

func RecordPaths(t Tracer, paths ...[]string) {
	if t == nil {
		return
	}
	t.Record(TraceEvent{Kind: TraceEventPaths, Paths: paths})
}

func RecordVectorSearch(t Tracer, durationMs int64, err error) {
	if t == nil {
		return
	}
	ev := TraceEvent{Kind: TraceEventVectorSearch, DurationMs: durationMs}
	if err != nil {
		ev.Error = err.Error()
	}
	t.Record(ev)
}

// QueryTrace collects information about which chunks and entities were
// considered during a query run.
//
// QueryTrace is safe for concurrent use.
type QueryTrace struct {
	mu sync.Mutex

	consideredChunkIDs map[string]struct{}
	selectedEntities   map[string]struct{}
	subgraphEntities   map[string]struct{}
	paths              map[string][]string
	vectorErrors       []string
}

type QueryTraceSnapshot struct {
	ConsideredChunkIDs []string   `json:"considered_chunk_ids"`
	SelectedEntities   []string   `json:"selected_entities"`
	SubgraphEntities   []string   `json:"subgraph_entities"`
	Paths              [][]string `json:"paths"`
	VectorErrors       []string   `json:"vector_errors,omitempty"`
}

func NewQueryTrace() *QueryTrace {
	return &QueryTrace{
		consideredChunkIDs: make(map[string]struct{}),
		selectedEntities:   make(map[string]struct{}),
		subgraphEntities:   make(map[string]struct{}),
		paths:              make(map[string][]string),
	}
}

func (t *QueryTrace) Record(event TraceEvent) {
	if t == nil {
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	switch event.Kind {
	case TraceEventConsideredChunkIDs:
		for _, id := range event.ChunkIDs {
			if id == "" {
				continue
			}
			t.consideredChunkIDs[id] = struct{}{}
		}
	case TraceEventSelectedEntities:
		for _, name := range event.EntityNames {
			if name == "" {
				continue
			}
			t.selectedEntities[name] = struct{}{}
		}
	case TraceEventSubgraphEntities:
		for _, name := range event.EntityNames {
			if name == "" {
				continue
			}
			t.subgraphEntities[name] = struct{}{}
		}
	case TraceEventPaths:
		for _, p := range event.Paths {
			if len(p) == 0 {
				continue
			}
			t.paths[strings.Join(p, "\x00")] = slices.Clone(p)
		}
	case TraceEventVectorSearch:
		if event.Error != "" {
			t.vectorErrors = append(t.vectorErrors, event.Error)
		}
	default:
		return
	}
}

func (t *QueryTrace) Snapshot() QueryTraceSnapshot {
	if t == nil {
		return QueryTraceSnapshot{}
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	s := QueryTraceSnapshot{
		ConsideredChunkIDs: make([]string, 0, len(t.consideredChunkIDs)),
		SelectedEntities:   make([]string, 0, len(t.selectedEntities)),
		SubgraphEntities:   make([]string, 0, len(t.subgraphEntities)),
		Paths:              make([][]string, 0, len(t.paths)),
		VectorErrors:       slices.Clone(t.vectorErrors),
	}

	for id := range t.consideredChunkIDs {
		s.ConsideredChunkIDs = append(s.ConsideredChunkIDs, id)
	}
	for name := range t.selectedEntities {
		s.SelectedEntities = append(s.SelectedEntities, name)
	}
	for name := range t.subgraphEntities {
		s.SubgraphEntities = append(s.SubgraphEntities, name)
	}
	keys := make([]string, 0, len(t.paths))
	for k := range t.paths {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		s.Paths = append(s.Paths, t.paths[k])
	}

	sort.Strings(s.ConsideredChunkIDs)
	sort.Strings(s.SelectedEntities)
	sort.Strings(s.SubgraphEntities)

	return s
}
