package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/siherrmann/docrag/model"
)

// Embedder turns a query into a vector using the same model the corpus was
// indexed with.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
}

// Index is the vector store the engine reads from.
type Index interface {
	SelectBySimilarity(ctx context.Context, embedding []float32, k int, threshold float64) ([]*model.RetrievalResult, error)
	SelectModels(ctx context.Context) ([]string, error)
}

// Engine answers retrieval queries against the vector index. It never writes;
// index entries only appear through the ingestion pipeline.
type Engine struct {
	embedder Embedder
	index    Index
	config   model.QueryConfig
	logger   *slog.Logger

	// checkedModel caches the index-side model check after the first
	// successful query.
	mu           sync.Mutex
	checkedModel bool
}

// NewEngine creates a new retrieval engine with the given default query
// configuration.
func NewEngine(embedder Embedder, index Index, config model.QueryConfig, logger *slog.Logger) (*Engine, error) {
	if embedder == nil || index == nil {
		return nil, fmt.Errorf("engine dependencies must not be nil")
	}
	err := config.Validate()
	if err != nil {
		return nil, model.NewStageError(model.StageRetrieve, err, false)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		embedder: embedder,
		index:    index,
		config:   config,
		logger:   logger,
	}, nil
}

// Retrieve returns the chunks most similar to the query, best first. Results
// below the similarity threshold are dropped even if that yields fewer than
// TopK hits; an empty result is a valid outcome, not an error.
func (e *Engine) Retrieve(ctx context.Context, query string, k int) ([]*model.RetrievalResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, model.NewStageError(model.StageRetrieve, model.ErrEmptyText, false)
	}
	if k <= 0 {
		k = e.config.TopK
	}

	err := e.checkModel(ctx)
	if err != nil {
		return nil, err
	}

	embeddings, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, model.NewStageError(model.StageRetrieve, err, true)
	}
	if len(embeddings) != 1 {
		return nil, model.NewStageError(model.StageRetrieve, fmt.Errorf("expected one query embedding, got %d", len(embeddings)), false)
	}

	results, err := e.index.SelectBySimilarity(ctx, embeddings[0], k, e.config.SimilarityThreshold)
	if err != nil {
		return nil, model.NewStageError(model.StageRetrieve, err, true)
	}

	e.logger.Debug("Retrieval finished", "k", k, "hits", len(results))

	return results, nil
}

// checkModel verifies that the engine's embedding model matches what the
// index was built with. Querying a corpus embedded with a different model
// produces silently meaningless similarities, so a mismatch is rejected.
func (e *Engine) checkModel(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.checkedModel {
		return nil
	}

	models, err := e.index.SelectModels(ctx)
	if err != nil {
		return model.NewStageError(model.StageRetrieve, err, true)
	}

	for _, m := range models {
		if m != e.embedder.ModelID() {
			return model.NewStageError(
				model.StageRetrieve,
				fmt.Errorf("%w: index holds %q, engine uses %q", model.ErrModelMismatch, m, e.embedder.ModelID()),
				false,
			)
		}
	}

	// An empty index cannot be checked yet; check again on the next query.
	if len(models) > 0 {
		e.checkedModel = true
	}

	return nil
}
