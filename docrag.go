package docrag

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/siherrmann/docrag/core/composer"
	"github.com/siherrmann/docrag/core/pipeline"
	"github.com/siherrmann/docrag/core/retrieval"
	"github.com/siherrmann/docrag/core/splitter"
	"github.com/siherrmann/docrag/database"
	"github.com/siherrmann/docrag/helper"
	"github.com/siherrmann/docrag/model"
	loadSql "github.com/siherrmann/docrag/sql"
)

// Options tunes the ingestion and retrieval behavior of a Rag instance.
// The zero value picks the defaults the corpus was originally indexed with.
type Options struct {
	Split          model.SplitConfig
	Query          model.QueryConfig
	EmbedBatchSize int
	ContextBudget  int
	// StaleClaimAfter is the age after which an abandoned in-flight
	// ingestion attempt loses its fingerprint claim.
	StaleClaimAfter time.Duration
}

// Rag wires the full pipeline: ledger, vector index, ingestion, retrieval and
// answer composition over one Postgres database.
type Rag struct {
	DB       *helper.Database
	Ledger   *database.LedgerDBHandler
	Index    *database.EmbeddingsDBHandler
	Pipeline *pipeline.Pipeline
	Engine   *retrieval.Engine
	Composer *composer.Composer
	// Logging
	log *slog.Logger
}

// Embedder is the provider contract shared by ingestion and retrieval. One
// Rag instance always embeds with one model.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelID() string
	Dimension() int
}

// New creates a Rag instance with all handlers initialized. The database
// schema and SQL functions are created idempotently.
func New(config *helper.DatabaseConfiguration, loader pipeline.Loader, embedder Embedder, generator composer.Generator, opts Options) (*Rag, error) {
	// Logger
	logOpts := helper.PrettyHandlerOptions{
		SlogOpts: slog.HandlerOptions{
			Level: slog.LevelInfo,
		},
	}
	logger := slog.New(helper.NewPrettyHandler(os.Stdout, logOpts))

	if opts.Split == (model.SplitConfig{}) {
		opts.Split = model.DefaultSplitConfig()
	}
	if opts.Query == (model.QueryConfig{}) {
		opts.Query = model.DefaultQueryConfig()
	}

	// Initialize database
	db := helper.NewDatabase("docrag", config, logger)
	err := loadSql.Init(db.Instance)
	if err != nil {
		return nil, helper.NewError("initialize database extensions", err)
	}

	// force=false to not reload if functions already exist
	ledger, err := database.NewLedgerDBHandler(db, opts.StaleClaimAfter, false)
	if err != nil {
		return nil, helper.NewError("create ledger handler", err)
	}

	index, err := database.NewEmbeddingsDBHandler(db, embedder.Dimension(), false)
	if err != nil {
		return nil, helper.NewError("create embeddings handler", err)
	}

	split, err := splitter.NewSplitter(opts.Split)
	if err != nil {
		return nil, helper.NewError("create splitter", err)
	}

	ingestion, err := pipeline.NewPipeline(loader, split, embedder, index, ledger, opts.EmbedBatchSize, logger)
	if err != nil {
		return nil, helper.NewError("create pipeline", err)
	}

	engine, err := retrieval.NewEngine(embedder, index, opts.Query, logger)
	if err != nil {
		return nil, helper.NewError("create retrieval engine", err)
	}

	compose, err := composer.NewComposer(generator, opts.ContextBudget, logger)
	if err != nil {
		return nil, helper.NewError("create composer", err)
	}

	return &Rag{
		DB:       db,
		Ledger:   ledger,
		Index:    index,
		Pipeline: ingestion,
		Engine:   engine,
		Composer: compose,
		log:      logger,
	}, nil
}

// Ingest runs one document through the ingestion pipeline. Re-ingesting
// identical content is a no-op returning the existing ledger record.
func (r *Rag) Ingest(ctx context.Context, path string) (*model.IngestionRecord, error) {
	return r.Pipeline.Ingest(ctx, path)
}

// IngestDirectory ingests every PDF in a directory, one document at a time.
// A failing document does not stop the rest; its outcome carries the error.
func (r *Rag) IngestDirectory(ctx context.Context, dir string) ([]*model.IngestionOutcome, error) {
	return r.Pipeline.IngestDirectory(ctx, dir)
}

// Retrieve returns the chunks most similar to the query, best first.
func (r *Rag) Retrieve(ctx context.Context, query string, k int) ([]*model.RetrievalResult, error) {
	return r.Engine.Retrieve(ctx, query, k)
}

// Query runs retrieval and answer composition in one call.
func (r *Rag) Query(ctx context.Context, query string, k int) (*model.Answer, []*model.RetrievalResult, error) {
	results, err := r.Engine.Retrieve(ctx, query, k)
	if err != nil {
		return nil, nil, err
	}

	answer, err := r.Composer.Answer(ctx, query, results)
	if err != nil {
		return nil, results, err
	}

	return answer, results, nil
}

// Attempts returns the full ingestion history for a document fingerprint.
func (r *Rag) Attempts(ctx context.Context, fingerprint string) ([]*model.IngestionRecord, error) {
	return r.Ledger.SelectAttempts(ctx, fingerprint)
}

// ResetLedger deletes all ledger records. Operational cleanup only.
func (r *Rag) ResetLedger(ctx context.Context) error {
	return r.Ledger.Reset(ctx)
}

// ChangeIndexType switches the vector index between HNSW and IVFFlat.
func (r *Rag) ChangeIndexType(ctx context.Context, indexType string, params map[string]interface{}) error {
	return r.Index.ChangeIndexType(ctx, indexType, params)
}

// Close closes the database connection.
func (r *Rag) Close() error {
	if r.DB != nil && r.DB.Instance != nil {
		return r.DB.Instance.Close()
	}
	return nil
}
