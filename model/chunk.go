package model

import (
	"fmt"
	"time"
)

// Chunk is a contiguous span of a document's extracted text, the unit of
// embedding and retrieval. Chunks from one document, ordered by Index, cover
// the full extracted text with the configured overlap.
type Chunk struct {
	DocumentFingerprint string   `json:"document_fingerprint"`
	Index               int      `json:"index"`
	Content             string   `json:"content"`
	StartPos            int      `json:"start_pos"`
	EndPos              int      `json:"end_pos"`
	Overlap             int      `json:"overlap"` // characters shared with the previous chunk
	Metadata            Metadata `json:"metadata,omitempty"`
}

// ID returns the stable identifier of a chunk within the index.
func (c *Chunk) ID() string {
	return fmt.Sprintf("%s:%d", c.DocumentFingerprint, c.Index)
}

// EmbeddingRecord is a chunk together with its vector as stored in the vector
// index. The embedding model identifier is recorded with every record; mixing
// models (and therefore dimensionalities) in one index is an invariant violation.
type EmbeddingRecord struct {
	ID             int       `json:"id"`
	Chunk          Chunk     `json:"chunk"`
	Embedding      []float32 `json:"embedding,omitempty"`
	EmbeddingModel string    `json:"embedding_model"`
	CreatedAt      time.Time `json:"created_at"`
}
