package pipeline

import (
	"context"

	"github.com/siherrmann/docrag/model"
)

// Loader reads source files and extracts their text content.
type Loader interface {
	// List returns the loadable file paths in a directory, sorted.
	List(ctx context.Context, dir string) ([]string, error)
	// Load validates the file format, reads the file and computes the
	// content fingerprint.
	Load(ctx context.Context, path string) (*model.Document, error)
	// Extract converts the document's source file to plain text.
	Extract(ctx context.Context, doc *model.Document) (string, error)
}

// Embedder turns text into fixed-dimension vectors. One embedder instance
// always uses one model; the model identifier travels with every vector.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Dimension() int
}

// Index is the vector store the pipeline writes to.
type Index interface {
	InsertEmbeddings(ctx context.Context, records []*model.EmbeddingRecord) error
	DeleteByFingerprint(ctx context.Context, fingerprint string) (int, error)
}

// Ledger tracks ingestion attempts per document fingerprint.
type Ledger interface {
	Claim(ctx context.Context, fingerprint string, source string) (*model.IngestionRecord, error)
	SelectActive(ctx context.Context, fingerprint string) (*model.IngestionRecord, error)
	UpdateStatus(ctx context.Context, record *model.IngestionRecord, status model.IngestionStatus) error
	MarkRegistered(ctx context.Context, record *model.IngestionRecord, chunkCount int, embeddingModel string) error
	MarkFailed(ctx context.Context, record *model.IngestionRecord, stage model.Stage, detail string) error
}
