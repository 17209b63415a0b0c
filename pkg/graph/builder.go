package graph

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/extract"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
)

// DefaultExtractionCap is the number of chunks sent to the oracle when no
// cap is configured.
const DefaultExtractionCap = 50

// Builder loads the knowledge graph from a snapshot or builds it from
// chunks and persists it.
//
// A Builder should be created using NewBuilder.
type Builder struct {
	store  SnapshotStore
	oracle extract.Oracle
	cap    int
	locker Locker
}

// NewBuilderParams defines the configuration parameters for creating a new
// Builder.
//
// Store persists snapshots and is required. Oracle is required for builds.
// ExtractionCap limits how many chunks are sent to the oracle, values <= 0
// mean DefaultExtractionCap. Locker, if set, serializes builders sharing the
// same store across processes.
type NewBuilderParams struct {
	Store         SnapshotStore
	Oracle        extract.Oracle
	ExtractionCap int
	Locker        Locker
}

// NewBuilder creates and returns a new Builder.
//
// Example:
//
//	b, err := graph.NewBuilder(graph.NewBuilderParams{
//		Store:  snapshot.NewFileStore("knowledge_graph.json"),
//		Oracle: oracle,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	g, report, err := b.Build(ctx, chunks)
func NewBuilder(params NewBuilderParams) (*Builder, error) {
	if params.Store == nil {
		return nil, fmt.Errorf("%w: snapshot store is required", common.ErrInvalidConfiguration)
	}
	if params.ExtractionCap <= 0 {
		params.ExtractionCap = DefaultExtractionCap
	}
	return &Builder{
		store:  params.Store,
		oracle: params.Oracle,
		cap:    params.ExtractionCap,
		locker: params.Locker,
	}, nil
}

// ChunkFailure records a chunk whose extraction failed.
type ChunkFailure struct {
	Index   int    `json:"index"`
	ChunkID string `json:"chunk_id"`
	Err     error  `json:"-"`
}

// BuildReport describes how a graph came to be.
//
// When Loaded is true the graph came from the snapshot and only LoadErr is
// meaningful. Otherwise LoadErr explains why the snapshot was not used and
// the remaining fields describe the fresh build.
type BuildReport struct {
	Loaded  bool  `json:"loaded"`
	LoadErr error `json:"-"`

	ChunksTotal        int            `json:"chunks_total"`
	ChunksProcessed    int            `json:"chunks_processed"`
	ExtractionFailures []ChunkFailure `json:"extraction_failures"`
	ValidationSkipped  int            `json:"validation_skipped"`
	Merge              MergeStats     `json:"merge"`

	ImportanceErr error `json:"-"`
	CommunityErr  error `json:"-"`
	SaveErr       error `json:"-"`

	Duration time.Duration `json:"duration"`
}

// Load reads and decodes the snapshot. Every failure, including a missing
// snapshot, wraps common.ErrPersistenceFailure. A missing snapshot also
// matches ErrSnapshotNotFound.
func (b *Builder) Load(ctx context.Context) (*KnowledgeGraph, error) {
	data, err := b.store.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: read snapshot %s: %w", common.ErrPersistenceFailure, b.store.Key(), err)
	}
	g, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrPersistenceFailure, err)
	}
	return g, nil
}

// Build returns the snapshot graph if one can be loaded. Otherwise it
// extracts entities from the first chunks in order, merges them, annotates
// the graph and writes a new snapshot. A failed write is reported in the
// BuildReport and does not fail the build.
//
// The returned error is non-nil only for a missing oracle, a lock failure or
// a cancelled context.
func (b *Builder) Build(ctx context.Context, chunks []common.Chunk) (*KnowledgeGraph, *BuildReport, error) {
	var (
		g      *KnowledgeGraph
		report *BuildReport
	)
	run := func(ctx context.Context) error {
		var err error
		g, report, err = b.loadOrBuild(ctx, chunks)
		return err
	}

	var err error
	if b.locker != nil {
		err = b.locker.WithLease(ctx, b.store.Key(), run)
	} else {
		err = run(ctx)
	}
	if err != nil {
		return nil, report, err
	}
	return g, report, nil
}

func (b *Builder) loadOrBuild(ctx context.Context, chunks []common.Chunk) (*KnowledgeGraph, *BuildReport, error) {
	start := time.Now()
	report := &BuildReport{ChunksTotal: len(chunks)}

	g, err := b.Load(ctx)
	if err == nil {
		report.Loaded = true
		report.Duration = time.Since(start)
		logger.Info("[Graph] Loaded existing graph",
			"snapshot", b.store.Key(),
			"nodes", g.NodeCount(),
			"edges", g.EdgeCount(),
		)
		return g, report, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, report, ctxErr
	}
	report.LoadErr = err
	if errors.Is(err, ErrSnapshotNotFound) {
		logger.Info("[Graph] No snapshot found, building new graph", "snapshot", b.store.Key())
	} else {
		logger.Warn("[Graph] Failed to load graph, rebuilding", "snapshot", b.store.Key(), "err", err)
	}

	if b.oracle == nil {
		return nil, report, fmt.Errorf("%w: extraction oracle is required to build a graph", common.ErrInvalidConfiguration)
	}

	g = New()
	total := min(len(chunks), b.cap)
	for i := range total {
		if err := ctx.Err(); err != nil {
			return nil, report, err
		}
		c := chunks[i]
		out := b.extractChunk(ctx, c.Text)
		report.ChunksProcessed++
		if out.Failed() {
			report.ExtractionFailures = append(report.ExtractionFailures, ChunkFailure{
				Index:   c.Index,
				ChunkID: c.ID,
				Err:     out.Err,
			})
			logger.Warn("[Graph] Extraction failed, skipping chunk", "chunk", c.Index, "err", out.Err)
			continue
		}
		report.ValidationSkipped += out.Skipped
		report.Merge.Add(g.Merge(out.Extraction))
	}

	report.ImportanceErr, report.CommunityErr = g.Annotate()
	if report.ImportanceErr != nil {
		logger.Warn("[Graph] Importance computation failed, using 0", "err", report.ImportanceErr)
	}
	if report.CommunityErr != nil {
		logger.Warn("[Graph] Community detection failed, using 0", "err", report.CommunityErr)
	}

	if err := b.save(ctx, g); err != nil {
		report.SaveErr = err
		logger.Error("[Graph] Failed to save graph snapshot", "snapshot", b.store.Key(), "err", err)
	}

	report.Duration = time.Since(start)
	logger.Info("[Graph] Graph built",
		"chunks", report.ChunksProcessed,
		"failures", len(report.ExtractionFailures),
		"nodes", g.NodeCount(),
		"edges", g.EdgeCount(),
		"duration", report.Duration,
	)
	return g, report, nil
}

// extractChunk calls the oracle for one chunk. A panicking oracle only fails
// that chunk.
func (b *Builder) extractChunk(ctx context.Context, text string) (out extract.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = extract.Failure(fmt.Errorf("oracle panicked: %v", r))
		}
	}()
	return b.oracle.Extract(ctx, text)
}

func (b *Builder) save(ctx context.Context, g *KnowledgeGraph) error {
	data, err := Encode(g)
	if err != nil {
		return fmt.Errorf("%w: encode snapshot: %w", common.ErrPersistenceFailure, err)
	}
	if err := b.store.Write(ctx, data); err != nil {
		return fmt.Errorf("%w: write snapshot %s: %w", common.ErrPersistenceFailure, b.store.Key(), err)
	}
	return nil
}

// Invalidate deletes the snapshot so that the next Build starts fresh.
func (b *Builder) Invalidate(ctx context.Context) error {
	run := func(ctx context.Context) error {
		if err := b.store.Delete(ctx); err != nil {
			return fmt.Errorf("%w: delete snapshot %s: %w", common.ErrPersistenceFailure, b.store.Key(), err)
		}
		logger.Info("[Graph] Snapshot invalidated", "snapshot", b.store.Key())
		return nil
	}
	if b.locker != nil {
		return b.locker.WithLease(ctx, b.store.Key(), run)
	}
	return run(ctx)
}
