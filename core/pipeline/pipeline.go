package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/docrag/core/splitter"
	"github.com/siherrmann/docrag/model"
)

// Pipeline runs document ingestion end to end: load, split, embed, store,
// register. The ledger serializes attempts per fingerprint; the index is only
// readable for a document once its ledger record reaches REGISTERED.
type Pipeline struct {
	loader    Loader
	splitter  *splitter.Splitter
	embedder  Embedder
	index     Index
	ledger    Ledger
	batchSize int
	logger    *slog.Logger
}

// DefaultEmbedBatchSize bounds how many chunks are sent to the embedding
// provider per call.
const DefaultEmbedBatchSize = 32

// NewPipeline creates an ingestion pipeline. batchSize values below one fall
// back to DefaultEmbedBatchSize.
func NewPipeline(loader Loader, split *splitter.Splitter, embedder Embedder, index Index, ledger Ledger, batchSize int, logger *slog.Logger) (*Pipeline, error) {
	if loader == nil || split == nil || embedder == nil || index == nil || ledger == nil {
		return nil, fmt.Errorf("pipeline dependencies must not be nil")
	}
	if batchSize < 1 {
		batchSize = DefaultEmbedBatchSize
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		loader:    loader,
		splitter:  split,
		embedder:  embedder,
		index:     index,
		ledger:    ledger,
		batchSize: batchSize,
		logger:    logger,
	}, nil
}

// Ingest runs one document through the pipeline. Re-ingesting already
// registered content returns the existing record without touching the index.
// A failed attempt leaves no index entries behind; its FAILED ledger record
// stays as history and a later call starts a fresh attempt.
func (p *Pipeline) Ingest(ctx context.Context, path string) (*model.IngestionRecord, error) {
	doc, err := p.loader.Load(ctx, path)
	if err != nil {
		return nil, model.NewStageError(model.StageLoad, err, false)
	}

	// Fast path without claiming: identical content already registered.
	active, err := p.ledger.SelectActive(ctx, doc.Fingerprint)
	if err != nil {
		return nil, model.NewStageError(model.StageLedger, err, true)
	}
	if active != nil && active.Status == model.StatusRegistered {
		p.logger.Info("Document already ingested", "fingerprint", doc.Fingerprint, "source", doc.Source)
		return active, nil
	}

	record, err := p.ledger.Claim(ctx, doc.Fingerprint, doc.Source)
	if errors.Is(err, model.ErrAlreadyInProgress) {
		// Lost the race. The winner may have finished in the meantime.
		active, selErr := p.ledger.SelectActive(ctx, doc.Fingerprint)
		if selErr == nil && active != nil && active.Status == model.StatusRegistered {
			return active, nil
		}
		return nil, model.NewStageError(model.StageLedger, model.ErrAlreadyInProgress, true)
	}
	if err != nil {
		return nil, model.NewStageError(model.StageLedger, err, true)
	}

	p.logger.Info("Ingestion started", "fingerprint", doc.Fingerprint, "source", doc.Source)

	record, err = p.run(ctx, doc, record)
	if err != nil {
		return record, err
	}

	p.logger.Info("Ingestion registered", "fingerprint", doc.Fingerprint, "chunks", record.ChunkCount)

	return record, nil
}

// IngestDirectory ingests every file the loader lists in dir, one document at
// a time. Failures are isolated per document; every file gets an outcome.
// Only listing the directory or a cancelled context aborts the whole run.
func (p *Pipeline) IngestDirectory(ctx context.Context, dir string) ([]*model.IngestionOutcome, error) {
	paths, err := p.loader.List(ctx, dir)
	if err != nil {
		return nil, model.NewStageError(model.StageLoad, err, false)
	}

	p.logger.Info("Directory ingestion started", "dir", dir, "files", len(paths))

	outcomes := make([]*model.IngestionOutcome, 0, len(paths))
	for _, path := range paths {
		if ctx.Err() != nil {
			return outcomes, ctx.Err()
		}

		record, err := p.Ingest(ctx, path)
		outcomes = append(outcomes, &model.IngestionOutcome{
			Path:   path,
			Record: record,
			Err:    err,
		})
	}

	return outcomes, nil
}

// run executes the stages after the claim. Any stage failure marks the record
// FAILED with the failing stage before returning.
func (p *Pipeline) run(ctx context.Context, doc *model.Document, record *model.IngestionRecord) (*model.IngestionRecord, error) {
	text, err := p.loader.Extract(ctx, doc)
	if err != nil {
		return record, p.fail(ctx, record, model.StageLoad, err, false)
	}

	chunks, err := p.splitter.Split(doc.Fingerprint, text)
	if err != nil {
		return record, p.fail(ctx, record, model.StageSplit, err, false)
	}

	// Document metadata (source, size, page count) travels with every chunk
	// into the index.
	for i := range chunks {
		for key, value := range doc.Metadata {
			chunks[i].Metadata[key] = value
		}
	}

	err = p.ledger.UpdateStatus(ctx, record, model.StatusEmbedding)
	if err != nil {
		return record, model.NewStageError(model.StageLedger, err, true)
	}

	records, err := p.embed(ctx, chunks)
	if err != nil {
		p.rollback(ctx, doc.Fingerprint)
		return record, p.fail(ctx, record, model.StageEmbed, err, true)
	}

	err = p.store(ctx, doc.Fingerprint, records)
	if err != nil {
		p.rollback(ctx, doc.Fingerprint)
		return record, p.fail(ctx, record, model.StageStore, err, true)
	}

	err = p.ledger.UpdateStatus(ctx, record, model.StatusStored)
	if err != nil {
		return record, model.NewStageError(model.StageLedger, err, true)
	}

	err = p.ledger.MarkRegistered(ctx, record, len(records), p.embedder.ModelID())
	if err != nil {
		return record, model.NewStageError(model.StageLedger, err, true)
	}

	return record, nil
}

// embed turns chunks into embedding records in bounded batches, validating
// the dimension of every returned vector.
func (p *Pipeline) embed(ctx context.Context, chunks []model.Chunk) ([]*model.EmbeddingRecord, error) {
	records := make([]*model.EmbeddingRecord, 0, len(chunks))

	for start := 0; start < len(chunks); start += p.batchSize {
		end := start + p.batchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		batch := chunks[start:end]

		texts := make([]string, len(batch))
		for i, chunk := range batch {
			texts[i] = chunk.Content
		}

		embeddings, err := p.embedWithRetry(ctx, texts)
		if err != nil {
			return nil, err
		}
		if len(embeddings) != len(batch) {
			return nil, fmt.Errorf("embedding count mismatch: got %d embeddings for %d chunks", len(embeddings), len(batch))
		}

		for i, embedding := range embeddings {
			if len(embedding) != p.embedder.Dimension() {
				return nil, fmt.Errorf("%w: got %d, expected %d", model.ErrDimensionMismatch, len(embedding), p.embedder.Dimension())
			}
			records = append(records, &model.EmbeddingRecord{
				Chunk:          batch[i],
				Embedding:      embedding,
				EmbeddingModel: p.embedder.ModelID(),
			})
		}
	}

	return records, nil
}

// embedWithRetry retries transient provider failures with a short backoff.
func (p *Pipeline) embedWithRetry(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * 500 * time.Millisecond):
			}
			p.logger.Warn("Retrying embedding batch", "attempt", attempt+1, "error", lastErr)
		}

		embeddings, err := p.embedder.Embed(ctx, texts)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// store writes the records, retrying once after clearing partial state.
func (p *Pipeline) store(ctx context.Context, fingerprint string, records []*model.EmbeddingRecord) error {
	err := p.index.InsertEmbeddings(ctx, records)
	if err == nil {
		return nil
	}

	p.logger.Warn("Index insert failed, retrying once", "fingerprint", fingerprint, "error", err)
	p.rollback(ctx, fingerprint)

	return p.index.InsertEmbeddings(ctx, records)
}

// rollback removes any index entries of a failed attempt. Best effort; the
// attempt is marked FAILED regardless.
func (p *Pipeline) rollback(ctx context.Context, fingerprint string) {
	deleted, err := p.index.DeleteByFingerprint(ctx, fingerprint)
	if err != nil {
		p.logger.Error("Rollback of index entries failed", "fingerprint", fingerprint, "error", err)
		return
	}
	if deleted > 0 {
		p.logger.Info("Rolled back index entries", "fingerprint", fingerprint, "deleted", deleted)
	}
}

// fail marks the record FAILED and wraps the cause with its stage.
func (p *Pipeline) fail(ctx context.Context, record *model.IngestionRecord, stage model.Stage, cause error, retryable bool) error {
	err := p.ledger.MarkFailed(ctx, record, stage, cause.Error())
	if err != nil {
		p.logger.Error("Marking ingestion attempt failed errored", "rid", record.RID, "error", err)
	}

	p.logger.Warn("Ingestion failed", "fingerprint", record.Fingerprint, "stage", stage, "error", cause)

	return model.NewStageError(stage, cause, retryable)
}
