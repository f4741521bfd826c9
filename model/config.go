package model

import "fmt"

// SplitConfig configures how extracted text is segmented into chunks.
type SplitConfig struct {
	// ChunkSize is the maximum chunk length in characters. Must be positive.
	ChunkSize int `json:"chunk_size"`
	// Overlap is the number of characters each chunk shares with its
	// predecessor. Must satisfy 0 <= Overlap < ChunkSize.
	Overlap int `json:"overlap"`
}

// Validate checks the splitting invariants.
func (c SplitConfig) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidSplitConfig, c.ChunkSize)
	}
	if c.Overlap < 0 || c.Overlap >= c.ChunkSize {
		return fmt.Errorf("%w: overlap must be in [0, chunk size), got %d", ErrInvalidSplitConfig, c.Overlap)
	}
	return nil
}

// DefaultSplitConfig mirrors the splitting the corpus was originally indexed
// with.
func DefaultSplitConfig() SplitConfig {
	return SplitConfig{
		ChunkSize: 1000,
		Overlap:   150,
	}
}

// QueryConfig configures a retrieval query.
type QueryConfig struct {
	// TopK is the maximum number of chunks to retrieve. Must be positive.
	TopK int `json:"top_k"`
	// SimilarityThreshold drops hits whose cosine similarity falls below it,
	// even if that yields fewer than TopK results. Zero disables the filter.
	SimilarityThreshold float64 `json:"similarity_threshold,omitempty"`
}

// Validate checks the retrieval invariants.
func (c QueryConfig) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top k must be positive, got %d", c.TopK)
	}
	if c.SimilarityThreshold < 0 || c.SimilarityThreshold > 1 {
		return fmt.Errorf("similarity threshold must be in [0, 1], got %g", c.SimilarityThreshold)
	}
	return nil
}

// DefaultQueryConfig returns a sensible default configuration.
func DefaultQueryConfig() QueryConfig {
	return QueryConfig{
		TopK:                5,
		SimilarityThreshold: 0.3,
	}
}
