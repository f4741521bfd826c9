package database

import (
	"context"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/docrag/helper"
	"github.com/siherrmann/docrag/model"
	loadSql "github.com/siherrmann/docrag/sql"
)

// EmbeddingsDBHandlerFunctions defines the interface for vector index operations.
type EmbeddingsDBHandlerFunctions interface {
	InsertEmbeddings(ctx context.Context, records []*model.EmbeddingRecord) error
	SelectBySimilarity(ctx context.Context, embedding []float32, k int, threshold float64) ([]*model.RetrievalResult, error)
	SelectByFingerprint(ctx context.Context, fingerprint string) ([]*model.EmbeddingRecord, error)
	DeleteByFingerprint(ctx context.Context, fingerprint string) (int, error)
	CountByFingerprint(ctx context.Context, fingerprint string) (int, error)
	SelectModels(ctx context.Context) ([]string, error)
}

// EmbeddingsDBHandler is the pgvector-backed vector index adapter.
// Written to by the ingestion pipeline, read-shared by the retrieval engine.
type EmbeddingsDBHandler struct {
	db        *helper.Database
	dimension int
}

// NewEmbeddingsDBHandler creates a new vector index handler. The embedding
// dimension is fixed at table creation and must match the embedding provider;
// records of any other dimensionality are rejected before they reach the
// database. If force is true, the SQL functions are reloaded even if present.
func NewEmbeddingsDBHandler(db *helper.Database, embeddingDim int, force bool) (*EmbeddingsDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	embeddingsDbHandler := &EmbeddingsDBHandler{
		db:        db,
		dimension: embeddingDim,
	}

	err := loadSql.LoadEmbeddingsSql(embeddingsDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load embeddings sql", err)
	}

	err = embeddingsDbHandler.CreateTable(embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EmbeddingsDBHandler")

	return embeddingsDbHandler, nil
}

// CreateTable creates the 'embeddings' table with the given vector dimension.
// If the table already exists, it does not create it again.
func (h *EmbeddingsDBHandler) CreateTable(embeddingDim int) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_embeddings($1);`, embeddingDim)
	if err != nil {
		return helper.NewError("init embeddings", err)
	}

	h.db.Logger.Info("Checked/created table embeddings")

	return nil
}

// Dimension returns the vector dimension the table was created with.
func (h *EmbeddingsDBHandler) Dimension() int {
	return h.dimension
}

// InsertEmbeddings writes all records for one document as a single
// transaction. Either every record is stored or none is; a document is never
// left half-indexed.
func (h *EmbeddingsDBHandler) InsertEmbeddings(ctx context.Context, records []*model.EmbeddingRecord) error {
	if len(records) == 0 {
		return nil
	}

	for _, record := range records {
		if len(record.Embedding) != h.dimension {
			return helper.NewError(
				"dimension validation",
				fmt.Errorf("%w: got %d, index holds %d", model.ErrDimensionMismatch, len(record.Embedding), h.dimension),
			)
		}
	}

	tx, err := h.db.Instance.BeginTx(ctx, nil)
	if err != nil {
		return helper.NewError("begin tx", err)
	}
	defer tx.Rollback()

	for _, record := range records {
		row := tx.QueryRowContext(
			ctx,
			`SELECT * FROM insert_embedding($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			record.Chunk.DocumentFingerprint,
			record.Chunk.Index,
			record.Chunk.Content,
			record.Chunk.StartPos,
			record.Chunk.EndPos,
			record.Chunk.Overlap,
			pq.Array(record.Embedding),
			record.EmbeddingModel,
			record.Chunk.Metadata,
		)

		err := row.Scan(&record.ID, &record.CreatedAt)
		if err != nil {
			return helper.NewError("scan", err)
		}
	}

	err = tx.Commit()
	if err != nil {
		return helper.NewError("commit", err)
	}

	return nil
}

// SelectBySimilarity returns up to k chunks by cosine similarity to the query
// embedding, highest first. Chunks below threshold are dropped even if that
// yields fewer than k results; an empty result is a valid outcome.
func (h *EmbeddingsDBHandler) SelectBySimilarity(ctx context.Context, embedding []float32, k int, threshold float64) ([]*model.RetrievalResult, error) {
	if len(embedding) != h.dimension {
		return nil, helper.NewError(
			"dimension validation",
			fmt.Errorf("%w: got %d, index holds %d", model.ErrDimensionMismatch, len(embedding), h.dimension),
		)
	}

	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_embeddings_by_similarity($1, $2, $3)`,
		pgvector.NewVector(embedding),
		k,
		threshold,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var results []*model.RetrievalResult
	for rows.Next() {
		chunk := &model.Chunk{}
		var embeddingModel string
		var similarity float64

		err := rows.Scan(
			&chunk.DocumentFingerprint,
			&chunk.Index,
			&chunk.Content,
			&chunk.StartPos,
			&chunk.EndPos,
			&chunk.Overlap,
			&embeddingModel,
			&chunk.Metadata,
			&similarity,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		results = append(results, &model.RetrievalResult{
			Chunk: chunk,
			Score: similarity,
		})
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return results, nil
}

// SelectByFingerprint retrieves all stored records for a document, ordered by
// chunk ordinal. Embedding vectors are not returned.
func (h *EmbeddingsDBHandler) SelectByFingerprint(ctx context.Context, fingerprint string) ([]*model.EmbeddingRecord, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_embeddings_by_fingerprint($1)`,
		fingerprint,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var records []*model.EmbeddingRecord
	for rows.Next() {
		record := &model.EmbeddingRecord{}
		err := rows.Scan(
			&record.Chunk.DocumentFingerprint,
			&record.Chunk.Index,
			&record.Chunk.Content,
			&record.Chunk.StartPos,
			&record.Chunk.EndPos,
			&record.Chunk.Overlap,
			&record.EmbeddingModel,
			&record.Chunk.Metadata,
		)
		if err != nil {
			return nil, helper.NewError("scan", err)
		}

		records = append(records, record)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return records, nil
}

// DeleteByFingerprint removes every record for a document and returns the
// number of rows deleted. Used for rollback of partial ingestion attempts.
func (h *EmbeddingsDBHandler) DeleteByFingerprint(ctx context.Context, fingerprint string) (int, error) {
	var count int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT delete_embeddings_by_fingerprint($1)`,
		fingerprint,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("delete embeddings", err)
	}

	return count, nil
}

// CountByFingerprint returns the number of stored records for a document.
func (h *EmbeddingsDBHandler) CountByFingerprint(ctx context.Context, fingerprint string) (int, error) {
	var count int
	err := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT count_embeddings_by_fingerprint($1)`,
		fingerprint,
	).Scan(&count)
	if err != nil {
		return 0, helper.NewError("count embeddings", err)
	}

	return count, nil
}

// SelectModels returns the distinct embedding model identifiers present in
// the index. More than one entry means the uniformity invariant is broken.
func (h *EmbeddingsDBHandler) SelectModels(ctx context.Context) ([]string, error) {
	rows, err := h.db.Instance.QueryContext(ctx, `SELECT * FROM select_embedding_models()`)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var models []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, helper.NewError("scan", err)
		}
		models = append(models, m)
	}

	err = rows.Err()
	if err != nil {
		return nil, helper.NewError("rows error", err)
	}

	return models, nil
}
