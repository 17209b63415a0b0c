package common

import "errors"

// Error kinds shared by the pipeline stages. Callers wrap them with
// fmt.Errorf("...: %w", ...) and inspect them with errors.Is.
var (
	// ErrExtractionFailure marks a failed or unparsable oracle call. The
	// affected chunk is treated as an empty extraction.
	ErrExtractionFailure = errors.New("extraction failure")

	// ErrPersistenceFailure marks a snapshot that could not be read, decoded
	// or written.
	ErrPersistenceFailure = errors.New("persistence failure")

	// ErrDerivedMetricFailure marks a failed importance or community
	// computation. Affected nodes fall back to zero values.
	ErrDerivedMetricFailure = errors.New("derived metric failure")

	// ErrInvalidConfiguration is fatal and returned to the caller immediately.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrEmbeddingFailure marks an embedding service call that failed after
	// all retries.
	ErrEmbeddingFailure = errors.New("embedding failure")
)
