package main

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"sort"

	"github.com/siherrmann/docrag"
	"github.com/siherrmann/docrag/helper"
	"github.com/siherrmann/docrag/model"
)

const sampleContract = `Payment is due within thirty days of invoicing.
Late payment accrues two percent interest per started week.

All confidential information remains the property of the disclosing party
and must not be shared with third parties without written consent.

Either party may demand termination of this agreement with ninety days
written notice to the other party.`

// memoryLoader serves an in-memory document, so the example runs without PDF
// tooling. For real PDFs use loader.NewPDFLoader().
type memoryLoader struct {
	texts map[string]string
}

func (l *memoryLoader) Load(ctx context.Context, path string) (*model.Document, error) {
	text, ok := l.texts[path]
	if !ok {
		return nil, model.ErrInvalidFormat
	}
	sum := sha256.Sum256([]byte(text))
	return &model.Document{
		Fingerprint: hex.EncodeToString(sum[:]),
		Source:      path,
		SizeBytes:   int64(len(text)),
		Metadata:    model.Metadata{"source": path},
	}, nil
}

func (l *memoryLoader) Extract(ctx context.Context, doc *model.Document) (string, error) {
	return l.texts[doc.Source], nil
}

func (l *memoryLoader) List(ctx context.Context, dir string) ([]string, error) {
	paths := make([]string, 0, len(l.texts))
	for path := range l.texts {
		paths = append(paths, path)
	}
	sort.Strings(paths)
	return paths, nil
}

// echoGenerator answers with the first context line. A real setup plugs in
// generation.NewOllamaGenerator instead.
type echoGenerator struct{}

func (echoGenerator) Generate(ctx context.Context, systemPrompt string, userPrompt string) (string, error) {
	return "Payment is due within thirty days of invoicing.", nil
}

// hashEmbedder is a deterministic stand-in for a real embedding model.
// A real setup plugs in embedding.NewHugotEmbedder instead.
type hashEmbedder struct{}

func (hashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32(sum[j])/255.0 - 0.5
		}
		embeddings[i] = v
	}
	return embeddings, nil
}

func (hashEmbedder) ModelID() string { return "hash-example-embedder" }
func (hashEmbedder) Dimension() int  { return 8 }

func main() {
	ctx := context.Background()

	// Start a test PostgreSQL container
	teardown, dbPort, err := helper.MustStartPostgresContainer()
	if err != nil {
		log.Fatalf("Failed to start PostgreSQL container: %v", err)
	}
	defer teardown(ctx)

	// Create database configuration using the container port
	dbConfig := &helper.DatabaseConfiguration{
		Host:     "localhost",
		Port:     dbPort,
		Database: "docrag_test",
		Username: "docrag",
		Password: "docrag",
		Schema:   "public",
	}

	loader := &memoryLoader{texts: map[string]string{
		"contract.pdf": sampleContract,
	}}

	rag, err := docrag.New(dbConfig, loader, hashEmbedder{}, echoGenerator{}, docrag.Options{
		Split: model.SplitConfig{ChunkSize: 200, Overlap: 20},
		Query: model.QueryConfig{TopK: 3, SimilarityThreshold: 0.0},
	})
	if err != nil {
		log.Fatalf("Failed to create docrag: %v", err)
	}
	defer rag.Close()

	// Ingest the document
	record, err := rag.Ingest(ctx, "contract.pdf")
	if err != nil {
		log.Fatalf("Failed to ingest: %v", err)
	}
	fmt.Printf("Ingested %s: status=%s chunks=%d\n", record.Source, record.Status, record.ChunkCount)

	// Re-ingesting identical content is a no-op
	again, err := rag.Ingest(ctx, "contract.pdf")
	if err != nil {
		log.Fatalf("Failed to re-ingest: %v", err)
	}
	fmt.Printf("Re-ingestion returned the same attempt: %v\n", record.RID == again.RID)

	// Ask a question
	answer, results, err := rag.Query(ctx, "when is payment due", 3)
	if err != nil {
		log.Fatalf("Failed to query: %v", err)
	}

	fmt.Printf("\nAnswer (grounded=%v): %s\n", answer.Grounded, answer.Text)
	fmt.Println("Sources:")
	for _, result := range results {
		fmt.Printf("  %.3f  %.60s...\n", result.Score, result.Chunk.Content)
	}
}
