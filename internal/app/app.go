// Package app wires the pipeline stages into a running service: corpus
// loading, preprocessing, graph construction and the query engine.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/graphvec/internal/config"
	"github.com/OFFIS-RIT/graphvec/pkg/ai"
	"github.com/OFFIS-RIT/graphvec/pkg/chunker"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/extract"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/loader"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/metrics"
	"github.com/OFFIS-RIT/graphvec/pkg/query"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"
)

// ErrNotReady is returned by operations that need a bootstrapped engine.
var ErrNotReady = errors.New("engine not ready")

// ChunkWriter is implemented by persistent vector indexes that must be
// filled with the preprocessed chunks before they can be searched.
type ChunkWriter interface {
	Reset(ctx context.Context) error
	Add(ctx context.Context, chunks []common.Chunk) error
}

// RecordLoader loads the corpus.
type RecordLoader interface {
	LoadDirectory(ctx context.Context, dir string) ([]common.Record, error)
}

// App holds the long lived pipeline components. The engine is swapped
// atomically after every build, readers never block on a rebuild.
//
// An App should be created using New or Open.
type App struct {
	cfg     *config.Config
	ai      ai.GraphAIClient
	store   graph.SnapshotStore
	index   vector.Index
	loader  RecordLoader
	builder *graph.Builder
	prep    *chunker.Preprocessor
	closers []func()

	mu      sync.Mutex
	chunks  []common.Chunk
	indexOK bool

	engine atomic.Pointer[query.Engine]
}

// Params are the dependencies of an App. AI, Store and Config are required.
// Index may be nil for an in-memory index over the chunk embeddings. Locker
// may be nil when only one process writes the snapshot. Loader defaults to
// loader.NewLoader().
type Params struct {
	Config *config.Config
	AI     ai.GraphAIClient
	Store  graph.SnapshotStore
	Index  vector.Index
	Locker graph.Locker
	Loader RecordLoader
}

// New validates p and creates the preprocessor, oracle and builder.
func New(p Params) (*App, error) {
	if p.Config == nil {
		return nil, fmt.Errorf("%w: config is required", common.ErrInvalidConfiguration)
	}
	if p.AI == nil {
		return nil, fmt.Errorf("%w: ai client is required", common.ErrInvalidConfiguration)
	}
	cfg := p.Config

	prep, err := chunker.NewPreprocessor(chunker.NewPreprocessorParams{
		Embedder:   p.AI,
		WindowSize: cfg.Chunking.WindowSize,
		Overlap:    cfg.Chunking.Overlap,
		MinSize:    cfg.Chunking.MinSize,
		Threshold:  cfg.Chunking.SimilarityThreshold,
		CleanText:  cfg.Chunking.CleanText,
		MaxRetries: cfg.AI.MaxRetries,
		RetryDelay: time.Second,
	})
	if err != nil {
		return nil, err
	}

	oracle, err := extract.NewLLMOracle(extract.NewLLMOracleParams{
		Client:     p.AI,
		Focus:      cfg.Graph.Focus,
		Structured: cfg.AI.Structured,
		Timeout:    cfg.AI.Timeout,
		MaxRetries: cfg.AI.MaxRetries,
		RetryDelay: time.Second,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrInvalidConfiguration, err)
	}

	builder, err := graph.NewBuilder(graph.NewBuilderParams{
		Store:         p.Store,
		Oracle:        oracle,
		ExtractionCap: cfg.Graph.ExtractionCap,
		Locker:        p.Locker,
	})
	if err != nil {
		return nil, err
	}

	l := p.Loader
	if l == nil {
		l = loader.NewLoader()
	}

	return &App{
		cfg:     cfg,
		ai:      p.AI,
		store:   p.Store,
		index:   p.Index,
		loader:  l,
		builder: builder,
		prep:    prep,
	}, nil
}

func (a *App) Config() *config.Config {
	return a.cfg
}

func (a *App) Builder() *graph.Builder {
	return a.builder
}

// Engine returns the current query engine or nil before the first build.
func (a *App) Engine() *query.Engine {
	return a.engine.Load()
}

// Chunks returns the chunks of the last Prepare call.
func (a *App) Chunks() []common.Chunk {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.chunks
}

// Prepare loads the corpus from the data directory, chunks and embeds it
// and fills a persistent index. An embedding failure is logged and leaves
// the vector block of later queries empty.
func (a *App) Prepare(ctx context.Context) error {
	records, err := a.loader.LoadDirectory(ctx, a.cfg.DataDir)
	if err != nil {
		return fmt.Errorf("load corpus: %w", err)
	}

	res, err := a.prep.Run(ctx, records)
	if err != nil {
		return fmt.Errorf("preprocess corpus: %w", err)
	}

	indexOK := res.EmbeddingErr == nil
	if res.EmbeddingErr != nil {
		logger.Warn("[App] Continuing without chunk embeddings", "err", res.EmbeddingErr)
	} else if w, ok := a.index.(ChunkWriter); ok {
		if err := w.Reset(ctx); err != nil {
			return fmt.Errorf("reset vector index: %w", err)
		}
		if err := w.Add(ctx, res.Chunks); err != nil {
			return fmt.Errorf("fill vector index: %w", err)
		}
	}

	a.mu.Lock()
	a.chunks = res.Chunks
	a.indexOK = indexOK
	a.mu.Unlock()

	if indexOK {
		metrics.IndexedChunks.Set(float64(len(res.Chunks)))
	} else {
		metrics.IndexedChunks.Set(0)
	}
	logger.Info("[App] Corpus prepared",
		"records", len(records),
		"chunks", len(res.Chunks),
		"duplicates", res.Dropped,
	)
	return nil
}

// Rebuild builds the graph from the prepared chunks and swaps the engine.
// With force the snapshot is deleted first, otherwise an existing snapshot
// is loaded.
func (a *App) Rebuild(ctx context.Context, force bool) (*graph.BuildReport, error) {
	if force {
		if err := a.builder.Invalidate(ctx); err != nil {
			return nil, err
		}
	}

	chunks := a.Chunks()
	a.ai.ResetMetrics()
	g, report, err := a.builder.Build(ctx, chunks)
	if err != nil {
		return report, err
	}
	metrics.RecordBuild(g, report)
	logAIMetrics(a.ai.GetMetrics())

	if err := a.swap(g); err != nil {
		return report, err
	}
	return report, nil
}

// ReloadGraph replaces the engine graph with the current snapshot. It is
// used after another process rebuilt the graph.
func (a *App) ReloadGraph(ctx context.Context) error {
	g, err := a.builder.Load(ctx)
	if err != nil {
		return err
	}
	metrics.RecordBuild(g, nil)
	return a.swap(g)
}

// Invalidate deletes the snapshot. The served graph stays in place until
// the next rebuild.
func (a *App) Invalidate(ctx context.Context) error {
	return a.builder.Invalidate(ctx)
}

// Bootstrap prepares the corpus and builds or loads the graph.
func (a *App) Bootstrap(ctx context.Context) (*graph.BuildReport, error) {
	if err := a.Prepare(ctx); err != nil {
		return nil, err
	}
	return a.Rebuild(ctx, false)
}

func (a *App) swap(g *graph.KnowledgeGraph) error {
	a.mu.Lock()
	chunks := a.chunks
	indexOK := a.indexOK
	a.mu.Unlock()

	index := a.index
	if !indexOK {
		// chunks without embeddings must not be ranked
		index = vector.NewMemoryIndex(nil)
	}

	engine, err := query.NewEngine(query.NewEngineParams{
		Chunks:   chunks,
		Index:    index,
		Graph:    g,
		Embedder: a.ai,
		Weights:  a.cfg.Query.Weights,
	})
	if err != nil {
		return err
	}
	a.engine.Store(engine)
	return nil
}

// Close releases the connections opened by Open.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func logAIMetrics(m ai.ModelMetrics) {
	d := time.Duration(m.DurationMs) * time.Millisecond
	logger.Info(
		"[App] AI Metrics",
		"input_tokens", m.InputTokens,
		"output_tokens", m.OutputTokens,
		"total_tokens", m.TotalTokens,
		"duration", fmt.Sprintf("%02d:%02d:%02d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60),
	)
}
