package model

import (
	"time"

	"github.com/google/uuid"
)

// IngestionStatus is the lifecycle state of one ingestion attempt.
// PENDING → EMBEDDING → STORED → REGISTERED is the only success path;
// FAILED is terminal and records the failing stage.
type IngestionStatus string

const (
	StatusPending    IngestionStatus = "PENDING"
	StatusEmbedding  IngestionStatus = "EMBEDDING"
	StatusStored     IngestionStatus = "STORED"
	StatusRegistered IngestionStatus = "REGISTERED"
	StatusFailed     IngestionStatus = "FAILED"
)

// Terminal reports whether no further transition is possible.
func (s IngestionStatus) Terminal() bool {
	return s == StatusRegistered || s == StatusFailed
}

// IngestionRecord is the ledger row for one ingestion attempt of a document
// fingerprint. A fingerprint maps to at most one non-FAILED record; retrying a
// FAILED fingerprint creates a fresh attempt, never a mutation of history.
type IngestionRecord struct {
	ID             int             `json:"id"`
	RID            uuid.UUID       `json:"rid"`
	Fingerprint    string          `json:"fingerprint"`
	Source         string          `json:"source"`
	Status         IngestionStatus `json:"status"`
	Stage          Stage           `json:"stage,omitempty"`
	ChunkCount     int             `json:"chunk_count"`
	EmbeddingModel string          `json:"embedding_model,omitempty"`
	ErrorDetail    string          `json:"error_detail,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// IngestionOutcome is the per-document result of ingesting a directory.
// Err is nil when the document is registered; a failed attempt carries both
// the error and, when the failure happened past the claim, its FAILED record.
type IngestionOutcome struct {
	Path   string           `json:"path"`
	Record *IngestionRecord `json:"record,omitempty"`
	Err    error            `json:"-"`
}
