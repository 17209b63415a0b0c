package chunker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OFFIS-RIT/graphvec/internal/util"
	"github.com/OFFIS-RIT/graphvec/pkg/ai"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// Preprocessor turns loaded records into embedded, deduplicated chunks.
type Preprocessor struct {
	embedder   ai.Embedder
	windowSize int
	overlap    int
	minSize    int
	threshold  float64
	clean      bool
	maxRetries int
	retryDelay time.Duration
}

// NewPreprocessorParams configures a Preprocessor. A zero WindowSize,
// Threshold or MaxRetries falls back to DefaultWindowSize,
// DefaultSimilarityThreshold and 3 attempts. Overlap and MinSize are taken
// as given.
type NewPreprocessorParams struct {
	Embedder ai.Embedder

	WindowSize int
	Overlap    int
	MinSize    int
	Threshold  float64

	// CleanText strips punctuation and symbols before chunking.
	CleanText bool

	MaxRetries int
	RetryDelay time.Duration
}

// Result is the outcome of a preprocessing run.
//
// EmbeddingErr is set when the embedding service failed. Chunks are still
// returned in that case, without embeddings and without deduplication.
type Result struct {
	Chunks       []common.Chunk
	Total        int
	Dropped      int
	EmbeddingErr error
}

// NewPreprocessor validates params and returns a Preprocessor.
func NewPreprocessor(params NewPreprocessorParams) (*Preprocessor, error) {
	if params.WindowSize == 0 {
		params.WindowSize = DefaultWindowSize
	}
	if params.Threshold == 0 {
		params.Threshold = DefaultSimilarityThreshold
	}
	if params.MaxRetries <= 0 {
		params.MaxRetries = 3
	}
	if err := ValidateWindow(params.WindowSize, params.Overlap, params.MinSize); err != nil {
		return nil, err
	}
	if params.Threshold < -1 || params.Threshold > 1 {
		return nil, fmt.Errorf("%w: similarity threshold must be within [-1, 1], got %v", common.ErrInvalidConfiguration, params.Threshold)
	}

	return &Preprocessor{
		embedder:   params.Embedder,
		windowSize: params.WindowSize,
		overlap:    params.Overlap,
		minSize:    params.MinSize,
		threshold:  params.Threshold,
		clean:      params.CleanText,
		maxRetries: params.MaxRetries,
		retryDelay: params.RetryDelay,
	}, nil
}

// Chunk splits records into chunks without embedding them. Chunk indices
// are dense across all records.
func (p *Preprocessor) Chunk(records []common.Record) ([]common.Chunk, error) {
	var chunks []common.Chunk
	for _, rec := range records {
		text := rec.Text
		if p.clean {
			text = CleanText(text)
		}
		parts, err := Split(text, p.windowSize, p.overlap, p.minSize)
		if err != nil {
			return nil, err
		}
		for i, part := range parts {
			id, err := gonanoid.New()
			if err != nil {
				return nil, fmt.Errorf("generate chunk id: %w", err)
			}
			meta := rec.Metadata.Clone()
			if meta == nil {
				meta = common.Metadata{}
			}
			meta["record_chunk"] = i
			chunks = append(chunks, common.Chunk{
				ID:       id,
				Index:    len(chunks),
				Text:     part,
				Metadata: meta,
			})
		}
	}
	return chunks, nil
}

// Run chunks records, embeds every chunk with one batch call and removes
// near duplicates.
func (p *Preprocessor) Run(ctx context.Context, records []common.Record) (*Result, error) {
	chunks, err := p.Chunk(records)
	if err != nil {
		return nil, err
	}
	res := &Result{Chunks: chunks, Total: len(chunks)}
	if len(chunks) == 0 {
		return res, nil
	}

	inputs := make([][]byte, len(chunks))
	for i := range chunks {
		inputs[i] = []byte(chunks[i].Text)
	}

	embeddings, err := util.RetryWithBackoff(ctx, p.maxRetries, p.retryDelay, func(ctx context.Context) ([][]float32, error) {
		return ai.GenerateEmbeddings(ctx, p.embedder, inputs)
	})
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, err
		}
		res.EmbeddingErr = fmt.Errorf("%w: %w", common.ErrEmbeddingFailure, err)
		logger.Error("[Chunker] Embedding failed, skipping deduplication", "chunks", len(chunks), "err", err)
		return res, nil
	}

	for i := range chunks {
		chunks[i].Embedding = embeddings[i]
	}
	res.Chunks = DeduplicateChunks(chunks, p.threshold)
	res.Dropped = len(chunks) - len(res.Chunks)

	logger.Info("[Chunker] Preprocessing completed",
		"records", len(records),
		"chunks", len(res.Chunks),
		"duplicates", res.Dropped,
	)
	return res, nil
}
