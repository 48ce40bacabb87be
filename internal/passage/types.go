package passage

import (
	"time"
)

// Metadata keys written by the indexer and used for search filtering.
const (
	// MetaSource is the originating document path of a chunk.
	MetaSource = "source"

	// MetaChunkIndex is the zero-based chunk position within its source.
	MetaChunkIndex = "chunk_index"

	// MetaKeywords holds comma-separated clinical keywords extracted from
	// the chunk.
	MetaKeywords = "keywords"
)

// Passage is one chunk of reference material in the retrieval index.
type Passage struct {
	ID        string            // Deterministic chunk identifier
	Content   string            // Chunk text
	Metadata  map[string]string // Source path, chunk index, keywords
	CreatedAt time.Time         // Index time
}

// Result pairs a retrieved passage with its cosine similarity to the query.
type Result struct {
	Passage    Passage
	Similarity float32
}

// SearchOption configures Search using the functional options pattern.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK    int
	source  string
	timeout time.Duration
}

// WithTopK sets the maximum number of results. Default is 6.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithSource restricts results to passages from one source document.
func WithSource(source string) SearchOption {
	return func(c *searchConfig) {
		c.source = source
	}
}

// WithTimeout overrides the per-query timeout. Default is 10 seconds.
func WithTimeout(d time.Duration) SearchOption {
	return func(c *searchConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

func buildSearchConfig(opts []SearchOption) *searchConfig {
	cfg := &searchConfig{
		topK:    6,
		timeout: 10 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}
