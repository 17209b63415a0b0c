package app

import (
	"context"
	"fmt"
	"path"

	"github.com/OFFIS-RIT/graphvec/internal/config"
	"github.com/OFFIS-RIT/graphvec/pkg/ai"
	oai "github.com/OFFIS-RIT/graphvec/pkg/ai/ollama"
	gai "github.com/OFFIS-RIT/graphvec/pkg/ai/openai"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/leaselock"
	"github.com/OFFIS-RIT/graphvec/pkg/logger"
	"github.com/OFFIS-RIT/graphvec/pkg/snapshot"
	"github.com/OFFIS-RIT/graphvec/pkg/vector"
	pgvec "github.com/OFFIS-RIT/graphvec/pkg/vector/pgx"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvec "github.com/pgvector/pgvector-go/pgx"
)

// OpenOptions select the components a process needs. The worker only
// writes snapshots and skips the vector index.
type OpenOptions struct {
	SkipIndex bool
}

// Open connects to every backend named in cfg and returns a ready App.
func Open(ctx context.Context, cfg *config.Config, opts OpenOptions) (*App, error) {
	aiClient, err := NewAIClient(cfg.AI)
	if err != nil {
		return nil, err
	}

	store, err := NewSnapshotStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	var closers []func()
	closeAll := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	usePgvector := !opts.SkipIndex && cfg.Vector.Backend == "pgvector"
	if usePgvector {
		if cfg.Vector.DatabaseURL == "" {
			return nil, fmt.Errorf("%w: pgvector backend needs DATABASE_URL", common.ErrInvalidConfiguration)
		}
		// the extension must exist before the pool registers its types
		if err := pgvec.Migrate(cfg.Vector.DatabaseURL); err != nil {
			return nil, err
		}
	}

	var pool *pgxpool.Pool
	if cfg.Vector.DatabaseURL != "" {
		pool, err = NewPool(ctx, cfg.Vector.DatabaseURL, usePgvector)
		if err != nil {
			return nil, err
		}
		closers = append(closers, pool.Close)
	}

	var locker graph.Locker
	if pool != nil {
		lc := leaselock.New(pool, leaselock.Options{TTL: cfg.Graph.LockTTL})
		if err := lc.EnsureSchema(ctx); err != nil {
			closeAll()
			return nil, err
		}
		locker = lc
	}

	var index vector.Index
	if usePgvector {
		idx := pgvec.New(pool, cfg.Vector.Collection)
		if err := idx.Sync(ctx); err != nil {
			closeAll()
			return nil, err
		}
		index = idx
	}

	a, err := New(Params{
		Config: cfg,
		AI:     aiClient,
		Store:  store,
		Index:  index,
		Locker: locker,
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	a.closers = closers
	return a, nil
}

// NewAIClient creates the client selected by c.Adapter.
func NewAIClient(c config.AIConfig) (ai.GraphAIClient, error) {
	switch c.Adapter {
	case "ollama":
		client, err := oai.NewGraphOllamaClient(oai.NewGraphOllamaClientParams{
			EmbeddingModel:  c.EmbedModel,
			ExtractionModel: c.ExtractModel,

			BaseURL: c.ChatURL,
			ApiKey:  c.ChatKey,

			Dimensions:            c.EmbedDim,
			Timeout:               c.Timeout,
			MaxConcurrentRequests: int64(c.ParallelRequests),
		})
		if err != nil {
			return nil, fmt.Errorf("could not create Ollama client: %w", err)
		}
		return client, nil
	case "openai", "":
		return gai.NewGraphOpenAIClient(gai.NewGraphOpenAIClientParams{
			EmbeddingModel:  c.EmbedModel,
			ExtractionModel: c.ExtractModel,

			EmbeddingURL: c.EmbedURL,
			EmbeddingKey: c.EmbedKey,
			ChatURL:      c.ChatURL,
			ChatKey:      c.ChatKey,

			Dimensions:            c.EmbedDim,
			Timeout:               c.Timeout,
			MaxConcurrentRequests: int64(c.ParallelRequests),
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown AI adapter %q", common.ErrInvalidConfiguration, c.Adapter)
	}
}

// NewSnapshotStore creates the snapshot backend selected by
// cfg.Graph.SnapshotBackend. The S3 object key is the base name of
// cfg.Graph.File.
func NewSnapshotStore(ctx context.Context, cfg *config.Config) (graph.SnapshotStore, error) {
	switch cfg.Graph.SnapshotBackend {
	case "file", "":
		return snapshot.NewFileStore(cfg.Graph.File), nil
	case "s3":
		client, err := snapshot.NewS3Client(ctx, snapshot.S3Config{
			Region:    cfg.S3.Region,
			Endpoint:  cfg.S3.Endpoint,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
		})
		if err != nil {
			return nil, err
		}
		return snapshot.NewS3Store(client, cfg.S3.Bucket, path.Base(cfg.Graph.File)), nil
	default:
		return nil, fmt.Errorf("%w: unknown snapshot backend %q", common.ErrInvalidConfiguration, cfg.Graph.SnapshotBackend)
	}
}

// NewPool connects to Postgres. With registerVector the pgvector types are
// registered on every connection, which requires the vector extension.
func NewPool(ctx context.Context, databaseURL string, registerVector bool) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse database url: %w", common.ErrInvalidConfiguration, err)
	}
	if registerVector {
		poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
			return pgxvec.RegisterTypes(ctx, conn)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to connect to database: %w", err)
	}
	logger.Debug("[App] Connected to database")
	return pool, nil
}
