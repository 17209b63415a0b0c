// Package config assembles the service configuration from defaults, an
// optional YAML file and environment variables, in that order of precedence.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/OFFIS-RIT/graphvec/internal/util"
	"github.com/OFFIS-RIT/graphvec/pkg/chunker"
	"github.com/OFFIS-RIT/graphvec/pkg/common"
	"github.com/OFFIS-RIT/graphvec/pkg/extract"
	"github.com/OFFIS-RIT/graphvec/pkg/graph"
	"github.com/OFFIS-RIT/graphvec/pkg/query"

	"gopkg.in/yaml.v3"
)

type Config struct {
	DataDir string `yaml:"data_dir"`
	Port    string `yaml:"port"`
	Debug   bool   `yaml:"debug"`

	Chunking ChunkingConfig `yaml:"chunking"`
	Graph    GraphConfig    `yaml:"graph"`
	Query    QueryConfig    `yaml:"query"`
	Vector   VectorConfig   `yaml:"vector"`
	AI       AIConfig       `yaml:"ai"`
	S3       S3Config       `yaml:"s3"`
	Queue    QueueConfig    `yaml:"queue"`
}

type ChunkingConfig struct {
	WindowSize          int     `yaml:"window_size"`
	Overlap             int     `yaml:"overlap"`
	MinSize             int     `yaml:"min_size"`
	SimilarityThreshold float64 `yaml:"similarity_threshold"`
	CleanText           bool    `yaml:"clean_text"`
}

type GraphConfig struct {
	// SnapshotBackend is "file" or "s3".
	SnapshotBackend string        `yaml:"snapshot_backend"`
	File            string        `yaml:"file"`
	ExtractionCap   int           `yaml:"extraction_cap"`
	Focus           []string      `yaml:"focus"`
	LockTTL         time.Duration `yaml:"lock_ttl"`
}

type QueryConfig struct {
	TopK     int           `yaml:"top_k"`
	MaxHops  int           `yaml:"max_hops"`
	MaxPaths int           `yaml:"max_paths"`
	Weights  query.Weights `yaml:"weights"`
}

type VectorConfig struct {
	// Backend is "memory" or "pgvector".
	Backend     string `yaml:"backend"`
	DatabaseURL string `yaml:"database_url"`
	Collection  string `yaml:"collection"`
}

type AIConfig struct {
	// Adapter is "openai" or "ollama".
	Adapter          string        `yaml:"adapter"`
	EmbedModel       string        `yaml:"embed_model"`
	ExtractModel     string        `yaml:"extract_model"`
	EmbedURL         string        `yaml:"embed_url"`
	EmbedKey         string        `yaml:"embed_key"`
	ChatURL          string        `yaml:"chat_url"`
	ChatKey          string        `yaml:"chat_key"`
	EmbedDim         int           `yaml:"embed_dim"`
	Timeout          time.Duration `yaml:"timeout"`
	ParallelRequests int           `yaml:"parallel_requests"`
	MaxRetries       int           `yaml:"max_retries"`
	Structured       bool          `yaml:"structured"`
}

type S3Config struct {
	Region    string `yaml:"region"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
}

type QueueConfig struct {
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
}

// URL returns the AMQP connection URL.
func (q QueueConfig) URL() string {
	return fmt.Sprintf("amqp://%s:%s@%s:%s/", q.User, q.Password, q.Host, q.Port)
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		DataDir: "data",
		Port:    "8080",
		Chunking: ChunkingConfig{
			WindowSize:          chunker.DefaultWindowSize,
			Overlap:             chunker.DefaultOverlap,
			MinSize:             chunker.DefaultMinSize,
			SimilarityThreshold: chunker.DefaultSimilarityThreshold,
			CleanText:           true,
		},
		Graph: GraphConfig{
			SnapshotBackend: "file",
			File:            "knowledge_graph.json",
			ExtractionCap:   graph.DefaultExtractionCap,
			LockTTL:         5 * time.Minute,
		},
		Query: QueryConfig{
			TopK:     5,
			MaxHops:  3,
			MaxPaths: query.DefaultMaxPaths,
			Weights:  query.DefaultWeights(),
		},
		Vector: VectorConfig{
			Backend:    "memory",
			Collection: "default",
		},
		AI: AIConfig{
			Adapter:          "openai",
			Timeout:          extract.DefaultTimeout,
			ParallelRequests: 10,
			MaxRetries:       extract.DefaultMaxRetries,
		},
		S3: S3Config{
			Region: "us-east-1",
			Bucket: "graphvec",
		},
		Queue: QueueConfig{
			Host:     "localhost",
			Port:     "5672",
			User:     "guest",
			Password: "guest",
		},
	}
}

// Load builds the configuration. The YAML file named by CONFIG_FILE, if
// set, overrides the defaults and environment variables override both.
// The result is validated.
func Load() (*Config, error) {
	cfg := Default()
	if path := util.GetEnv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// loadFile decodes the YAML file at path over cfg. ${VAR} references are
// expanded and unknown keys are rejected.
func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("could not read configuration file '%s': %w", path, err)
	}

	decoder := yaml.NewDecoder(strings.NewReader(os.ExpandEnv(string(data))))
	decoder.KnownFields(true)
	if err := decoder.Decode(cfg); err != nil {
		return fmt.Errorf("%w: YAML error in '%s': %w", common.ErrInvalidConfiguration, path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.DataDir = util.GetEnvString("DATA_DIR", cfg.DataDir)
	cfg.Port = util.GetEnvString("PORT", cfg.Port)
	cfg.Debug = util.GetEnvBool("DEBUG", cfg.Debug)

	cfg.Chunking.WindowSize = util.GetEnvInt("CHUNK_SIZE", cfg.Chunking.WindowSize)
	cfg.Chunking.Overlap = util.GetEnvInt("CHUNK_OVERLAP", cfg.Chunking.Overlap)
	cfg.Chunking.MinSize = util.GetEnvInt("MIN_CHUNK_SIZE", cfg.Chunking.MinSize)
	cfg.Chunking.SimilarityThreshold = util.GetEnvNumeric("SIMILARITY_THRESHOLD", cfg.Chunking.SimilarityThreshold)
	cfg.Chunking.CleanText = util.GetEnvBool("CLEAN_TEXT", cfg.Chunking.CleanText)

	cfg.Graph.SnapshotBackend = util.GetEnvString("GRAPH_SNAPSHOT_BACKEND", cfg.Graph.SnapshotBackend)
	cfg.Graph.File = util.GetEnvString("GRAPH_FILE", cfg.Graph.File)
	cfg.Graph.ExtractionCap = util.GetEnvInt("EXTRACTION_CAP", cfg.Graph.ExtractionCap)
	if focus := util.GetEnv("EXTRACTION_FOCUS"); strings.TrimSpace(focus) != "" {
		cfg.Graph.Focus = splitList(focus)
	}
	cfg.Graph.LockTTL = util.GetEnvDuration("GRAPH_LOCK_TTL", cfg.Graph.LockTTL)

	cfg.Query.TopK = util.GetEnvInt("TOP_K", cfg.Query.TopK)
	cfg.Query.MaxHops = util.GetEnvInt("MAX_HOPS", cfg.Query.MaxHops)
	cfg.Query.MaxPaths = util.GetEnvInt("MAX_PATHS", cfg.Query.MaxPaths)
	cfg.Query.Weights.Keyword = util.GetEnvNumeric("W_KEYWORD", cfg.Query.Weights.Keyword)
	cfg.Query.Weights.Importance = util.GetEnvNumeric("W_IMPORTANCE", cfg.Query.Weights.Importance)
	cfg.Query.Weights.Frequency = util.GetEnvNumeric("W_FREQUENCY", cfg.Query.Weights.Frequency)

	cfg.Vector.Backend = util.GetEnvString("VECTOR_BACKEND", cfg.Vector.Backend)
	cfg.Vector.DatabaseURL = util.GetEnvString("DATABASE_URL", cfg.Vector.DatabaseURL)
	cfg.Vector.Collection = util.GetEnvString("VECTOR_COLLECTION", cfg.Vector.Collection)

	cfg.AI.Adapter = util.GetEnvString("AI_ADAPTER", cfg.AI.Adapter)
	cfg.AI.EmbedModel = util.GetEnvString("AI_EMBED_MODEL", cfg.AI.EmbedModel)
	cfg.AI.ExtractModel = util.GetEnvString("AI_CHAT_EXTRACT_MODEL", cfg.AI.ExtractModel)
	cfg.AI.EmbedURL = util.GetEnvString("AI_EMBED_URL", cfg.AI.EmbedURL)
	cfg.AI.EmbedKey = util.GetEnvString("AI_EMBED_KEY", cfg.AI.EmbedKey)
	cfg.AI.ChatURL = util.GetEnvString("AI_CHAT_URL", cfg.AI.ChatURL)
	cfg.AI.ChatKey = util.GetEnvString("AI_CHAT_KEY", cfg.AI.ChatKey)
	cfg.AI.EmbedDim = util.GetEnvInt("AI_EMBED_DIM", cfg.AI.EmbedDim)
	if minutes := util.GetEnvInt("AI_TIMEOUT_MIN", 0); minutes > 0 {
		cfg.AI.Timeout = time.Duration(minutes) * time.Minute
	}
	cfg.AI.ParallelRequests = util.GetEnvInt("AI_PARALLEL_REQ", cfg.AI.ParallelRequests)
	cfg.AI.MaxRetries = util.GetEnvInt("AI_MAX_RETRIES", cfg.AI.MaxRetries)
	cfg.AI.Structured = util.GetEnvBool("AI_STRUCTURED_OUTPUT", cfg.AI.Structured)

	cfg.S3.Region = util.GetEnvString("AWS_REGION", cfg.S3.Region)
	cfg.S3.Endpoint = util.GetEnvString("AWS_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.AccessKey = util.GetEnvString("AWS_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = util.GetEnvString("AWS_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.Bucket = util.GetEnvString("AWS_BUCKET", cfg.S3.Bucket)

	cfg.Queue.Host = util.GetEnvString("RABBITMQ_HOST", cfg.Queue.Host)
	cfg.Queue.Port = util.GetEnvString("RABBITMQ_PORT", cfg.Queue.Port)
	cfg.Queue.User = util.GetEnvString("RABBITMQ_USER", cfg.Queue.User)
	cfg.Queue.Password = util.GetEnvString("RABBITMQ_PASSWORD", cfg.Queue.Password)
}

// Validate reports every invalid setting in one error wrapping
// common.ErrInvalidConfiguration.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if err := chunker.ValidateWindow(c.Chunking.WindowSize, c.Chunking.Overlap, c.Chunking.MinSize); err != nil {
		add("%v", err)
	}
	if t := c.Chunking.SimilarityThreshold; t < -1 || t > 1 {
		add("similarity threshold must be within [-1, 1], got %v", t)
	}

	switch c.Graph.SnapshotBackend {
	case "file":
		if c.Graph.File == "" {
			add("graph file is required for the file snapshot backend")
		}
	case "s3":
		if c.S3.Bucket == "" {
			add("AWS bucket is required for the s3 snapshot backend")
		}
	default:
		add("unknown snapshot backend %q", c.Graph.SnapshotBackend)
	}
	if c.Graph.ExtractionCap <= 0 {
		add("extraction cap must be positive, got %d", c.Graph.ExtractionCap)
	}

	if c.Query.TopK <= 0 {
		add("top k must be positive, got %d", c.Query.TopK)
	}
	if c.Query.MaxHops <= 0 {
		add("max hops must be positive, got %d", c.Query.MaxHops)
	}
	if c.Query.MaxPaths <= 0 {
		add("max paths must be positive, got %d", c.Query.MaxPaths)
	}

	switch c.Vector.Backend {
	case "memory":
	case "pgvector":
		if c.Vector.DatabaseURL == "" {
			add("database url is required for the pgvector backend")
		}
	default:
		add("unknown vector backend %q", c.Vector.Backend)
	}

	switch c.AI.Adapter {
	case "openai", "ollama":
	default:
		add("unknown AI adapter %q", c.AI.Adapter)
	}
	if c.AI.ParallelRequests <= 0 {
		add("parallel requests must be positive, got %d", c.AI.ParallelRequests)
	}
	if c.AI.Timeout <= 0 {
		add("AI timeout must be positive, got %v", c.AI.Timeout)
	}

	if len(problems) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %s", common.ErrInvalidConfiguration, strings.Join(problems, "; "))
}

func splitList(s string) []string {
	var out []string
	for part := range strings.SplitSeq(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
