package server

import (
	"context"
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/siherrmann/docrag/model"
)

// Ingestor runs document ingestion.
type Ingestor interface {
	Ingest(ctx context.Context, path string) (*model.IngestionRecord, error)
	IngestDirectory(ctx context.Context, dir string) ([]*model.IngestionOutcome, error)
}

// Querier runs retrieval plus answer composition.
type Querier interface {
	Query(ctx context.Context, query string, k int) (*model.Answer, []*model.RetrievalResult, error)
}

// Handler exposes ingestion and querying over HTTP.
type Handler struct {
	ingestor Ingestor
	querier  Querier
	// rawPDFDir is the directory scanned when an ingest-directory request
	// names none.
	rawPDFDir string
}

// NewHandler creates a new HTTP handler.
func NewHandler(ingestor Ingestor, querier Querier, rawPDFDir string) *Handler {
	return &Handler{ingestor: ingestor, querier: querier, rawPDFDir: rawPDFDir}
}

// Register sets up the API routes.
func (h *Handler) Register(router fiber.Router) {
	api := router.Group("/api/v1")
	api.Post("/ingest", h.Ingest)
	api.Post("/ingest-directory", h.IngestDirectory)
	api.Post("/query", h.Query)
	api.Get("/health", h.Health)
}

// Ingest runs ingestion for the document at the given path.
func (h *Handler) Ingest(c fiber.Ctx) error {
	var body struct {
		Path string `json:"path"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.Path == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body, expected {\"path\": ...}"})
	}

	record, err := h.ingestor.Ingest(c.Context(), body.Path)
	if err != nil {
		return errorResponse(c, err)
	}

	return c.JSON(fiber.Map{
		"fingerprint":     record.Fingerprint,
		"source":          record.Source,
		"status":          record.Status,
		"chunk_count":     record.ChunkCount,
		"embedding_model": record.EmbeddingModel,
	})
}

// IngestDirectory ingests every PDF in a directory. The body may name a
// directory; without one the configured raw-PDF directory is scanned.
func (h *Handler) IngestDirectory(c fiber.Ctx) error {
	var body struct {
		Dir string `json:"dir"`
	}
	if err := c.Bind().JSON(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body, expected {\"dir\": ...}"})
	}
	dir := body.Dir
	if dir == "" {
		dir = h.rawPDFDir
	}
	if dir == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "no directory given and none configured"})
	}

	outcomes, err := h.ingestor.IngestDirectory(c.Context(), dir)
	if err != nil {
		return errorResponse(c, err)
	}

	ingested := 0
	documents := make([]fiber.Map, len(outcomes))
	for i, outcome := range outcomes {
		doc := fiber.Map{"path": outcome.Path}
		if outcome.Err != nil {
			doc["error"] = outcome.Err.Error()
			var stageErr *model.StageError
			if errors.As(outcome.Err, &stageErr) {
				doc["stage"] = stageErr.Stage
			}
		} else {
			ingested++
			doc["fingerprint"] = outcome.Record.Fingerprint
			doc["status"] = outcome.Record.Status
			doc["chunk_count"] = outcome.Record.ChunkCount
		}
		documents[i] = doc
	}

	return c.JSON(fiber.Map{
		"dir":       dir,
		"total":     len(outcomes),
		"ingested":  ingested,
		"failed":    len(outcomes) - ingested,
		"documents": documents,
	})
}

// Query answers a question from the indexed documents.
func (h *Handler) Query(c fiber.Ctx) error {
	var body struct {
		Text string `json:"text"`
		K    int    `json:"k"`
	}
	if err := c.Bind().JSON(&body); err != nil || body.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body, expected {\"text\": ...}"})
	}

	answer, results, err := h.querier.Query(c.Context(), body.Text, body.K)
	if err != nil {
		return errorResponse(c, err)
	}

	sources := make([]fiber.Map, len(results))
	for i, result := range results {
		sources[i] = fiber.Map{
			"chunk_id":   result.Chunk.ID(),
			"content":    result.Chunk.Content,
			"similarity": result.Score,
		}
	}

	return c.JSON(fiber.Map{
		"answer":   answer.Text,
		"grounded": answer.Grounded,
		"cited":    answer.CitedChunkIDs,
		"sources":  sources,
	})
}

// Health reports service liveness.
func (h *Handler) Health(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status": "healthy",
	})
}

// errorResponse maps the failure taxonomy onto HTTP status codes: duplicate
// claims conflict, retryable failures ask the client to come back, everything
// else is an unprocessable document or query.
func errorResponse(c fiber.Ctx, err error) error {
	status := fiber.StatusUnprocessableEntity
	switch {
	case errors.Is(err, model.ErrAlreadyInProgress):
		status = fiber.StatusConflict
	case model.Retryable(err):
		status = fiber.StatusServiceUnavailable
	}

	resp := fiber.Map{"error": err.Error()}
	var stageErr *model.StageError
	if errors.As(err, &stageErr) {
		resp["stage"] = stageErr.Stage
		resp["retryable"] = stageErr.Retryable
	}

	return c.Status(status).JSON(resp)
}
