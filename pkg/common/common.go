package common

// Metadata carries loader supplied attributes of a document, such as the
// filename, path, type, size and modification time. Format specific loaders
// add their own keys (rows and columns for CSV, keys for JSON, pages for PDF).
type Metadata map[string]any

// Clone returns a shallow copy of the metadata map.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	out := make(Metadata, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

// Record is a single document produced by a loader. The text is the raw
// extracted content and has not been cleaned or chunked yet.
type Record struct {
	Text     string   `json:"text"`
	Metadata Metadata `json:"metadata"`
}

// Chunk represents a contiguous window of tokens taken from a record.
// Chunks are the retrieval units of the vector index and the input of the
// entity extraction step.
//
// A chunk is immutable once created. Its embedding is computed exactly once
// during preprocessing and reused for deduplication and retrieval.
type Chunk struct {
	ID        string    `json:"id"`
	Index     int       `json:"index"`
	Text      string    `json:"text"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// Relation is a single directed statement returned by the extraction oracle:
// Source is connected to Target by the Relation label with the given
// Confidence in [0, 1].
type Relation struct {
	Source     string  `json:"source"`
	Target     string  `json:"target"`
	Relation   string  `json:"relation"`
	Confidence float64 `json:"confidence"`
}

// Extraction is the validated payload returned by the extraction oracle for
// one chunk of text.
type Extraction struct {
	Entities  []string   `json:"entities"`
	Relations []Relation `json:"relations"`
}

// Empty reports whether the extraction carries neither entities nor relations.
func (e Extraction) Empty() bool {
	return len(e.Entities) == 0 && len(e.Relations) == 0
}
