package model

// RetrievalResult represents a chunk retrieved by a query
type RetrievalResult struct {
	Chunk *Chunk  `json:"chunk"`
	Score float64 `json:"score"` // Cosine similarity to the query embedding
}

// Answer is the composed response to a query. Grounded is false for the fixed
// insufficient-context response, which is produced without a generation call.
type Answer struct {
	Text          string   `json:"text"`
	CitedChunkIDs []string `json:"cited_chunk_ids,omitempty"`
	Grounded      bool     `json:"grounded"`
}
