package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/siherrmann/docrag/helper"
	"github.com/siherrmann/docrag/model"
	loadSql "github.com/siherrmann/docrag/sql"
)

// uniqueViolation is the Postgres error code for a violated unique constraint.
// Hitting it on the fingerprint claim means another attempt holds the claim.
const uniqueViolation = "23505"

// DefaultStaleClaimAfter is how long an in-flight attempt may go without a
// status update before a new claim may reclaim its fingerprint.
const DefaultStaleClaimAfter = 15 * time.Minute

// LedgerDBHandlerFunctions defines the interface for ingestion ledger operations.
type LedgerDBHandlerFunctions interface {
	Claim(ctx context.Context, fingerprint string, source string) (*model.IngestionRecord, error)
	SelectActive(ctx context.Context, fingerprint string) (*model.IngestionRecord, error)
	SelectAttempts(ctx context.Context, fingerprint string) ([]*model.IngestionRecord, error)
	UpdateStatus(ctx context.Context, record *model.IngestionRecord, status model.IngestionStatus) error
	MarkRegistered(ctx context.Context, record *model.IngestionRecord, chunkCount int, embeddingModel string) error
	MarkFailed(ctx context.Context, record *model.IngestionRecord, stage model.Stage, detail string) error
	Reset(ctx context.Context) error
}

// LedgerDBHandler handles ingestion-record database operations.
// The ledger is the single source of truth for whether a document is
// queryable; only the ingestion pipeline writes to it.
type LedgerDBHandler struct {
	db              *helper.Database
	staleClaimAfter time.Duration
}

// NewLedgerDBHandler creates a new ledger database handler.
// It loads the ledger SQL functions and creates the table idempotently.
// staleClaimAfter values below one second fall back to DefaultStaleClaimAfter.
// If force is true, it will reload the SQL functions even if they already exist.
func NewLedgerDBHandler(db *helper.Database, staleClaimAfter time.Duration, force bool) (*LedgerDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if staleClaimAfter < time.Second {
		staleClaimAfter = DefaultStaleClaimAfter
	}

	ledgerDbHandler := &LedgerDBHandler{
		db:              db,
		staleClaimAfter: staleClaimAfter,
	}

	err := loadSql.LoadRecordsSql(ledgerDbHandler.db.Instance, force)
	if err != nil {
		return nil, helper.NewError("load records sql", err)
	}

	err = ledgerDbHandler.CreateTable()
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized LedgerDBHandler")

	return ledgerDbHandler, nil
}

// CreateTable creates the 'ingestion_records' table with its indexes.
// If the table already exists, it does not create it again.
func (h *LedgerDBHandler) CreateTable() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := h.db.Instance.ExecContext(ctx, `SELECT init_ingestion_records();`)
	if err != nil {
		return helper.NewError("init ingestion records", err)
	}

	h.db.Logger.Info("Checked/created table ingestion_records")

	return nil
}

// Claim inserts a fresh PENDING attempt for the fingerprint. The partial
// unique index on non-FAILED rows serializes concurrent attempts: the loser
// receives model.ErrAlreadyInProgress. In-flight attempts that went without a
// status update for longer than the configured stale age are failed and
// reclaimed first, so a crashed process cannot hold a fingerprint forever.
func (h *LedgerDBHandler) Claim(ctx context.Context, fingerprint string, source string) (*model.IngestionRecord, error) {
	record := &model.IngestionRecord{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM claim_ingestion($1, $2, $3)`,
		fingerprint,
		source,
		int(h.staleClaimAfter.Seconds()),
	)

	err := scanRecord(row, record)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation {
			return nil, model.ErrAlreadyInProgress
		}
		return nil, helper.NewError("claim ingestion", err)
	}

	return record, nil
}

// SelectActive retrieves the non-FAILED record for a fingerprint, or nil if
// the fingerprint has never been successfully claimed.
func (h *LedgerDBHandler) SelectActive(ctx context.Context, fingerprint string) (*model.IngestionRecord, error) {
	record := &model.IngestionRecord{}
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM select_active_ingestion($1)`,
		fingerprint,
	)

	err := scanRecord(row, record)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, helper.NewError("select active ingestion", err)
	}

	return record, nil
}

// SelectAttempts retrieves the full attempt history for a fingerprint,
// oldest first. FAILED attempts are kept as history, never mutated.
func (h *LedgerDBHandler) SelectAttempts(ctx context.Context, fingerprint string) ([]*model.IngestionRecord, error) {
	rows, err := h.db.Instance.QueryContext(
		ctx,
		`SELECT * FROM select_ingestion_attempts($1)`,
		fingerprint,
	)
	if err != nil {
		return nil, helper.NewError("query", err)
	}
	defer rows.Close()

	var records []*model.IngestionRecord
	for rows.Next() {
		record := &model.IngestionRecord{}
		err := scanRecord(rows, record)
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

// UpdateStatus transitions a record to the given status and persists it.
func (h *LedgerDBHandler) UpdateStatus(ctx context.Context, record *model.IngestionRecord, status model.IngestionStatus) error {
	record.Status = status
	return h.update(ctx, record)
}

// MarkRegistered transitions a record to terminal success with its final
// chunk count and the embedding model the chunks were indexed with.
func (h *LedgerDBHandler) MarkRegistered(ctx context.Context, record *model.IngestionRecord, chunkCount int, embeddingModel string) error {
	record.Status = model.StatusRegistered
	record.Stage = ""
	record.ChunkCount = chunkCount
	record.EmbeddingModel = embeddingModel
	record.ErrorDetail = ""
	return h.update(ctx, record)
}

// MarkFailed transitions a record to terminal failure, recording the failing
// stage and a human-readable cause.
func (h *LedgerDBHandler) MarkFailed(ctx context.Context, record *model.IngestionRecord, stage model.Stage, detail string) error {
	record.Status = model.StatusFailed
	record.Stage = stage
	record.ErrorDetail = detail
	return h.update(ctx, record)
}

// Reset deletes all ledger records. Operational cleanup only; index entries
// are not touched.
func (h *LedgerDBHandler) Reset(ctx context.Context) error {
	_, err := h.db.Instance.ExecContext(ctx, `SELECT reset_ingestion_records();`)
	if err != nil {
		return helper.NewError("reset ingestion records", err)
	}

	h.db.Logger.Info("Ingestion ledger reset")

	return nil
}

func (h *LedgerDBHandler) update(ctx context.Context, record *model.IngestionRecord) error {
	row := h.db.Instance.QueryRowContext(
		ctx,
		`SELECT * FROM update_ingestion_status($1, $2, $3, $4, $5, $6)`,
		record.RID,
		string(record.Status),
		string(record.Stage),
		record.ChunkCount,
		record.EmbeddingModel,
		record.ErrorDetail,
	)

	err := scanRecord(row, record)
	if err != nil {
		return helper.NewError("scan", err)
	}

	return nil
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner, record *model.IngestionRecord) error {
	var status, stage string
	err := row.Scan(
		&record.ID,
		&record.RID,
		&record.Fingerprint,
		&record.Source,
		&status,
		&stage,
		&record.ChunkCount,
		&record.EmbeddingModel,
		&record.ErrorDetail,
		&record.CreatedAt,
		&record.UpdatedAt,
	)
	if err != nil {
		return err
	}

	record.Status = model.IngestionStatus(status)
	record.Stage = model.Stage(stage)

	return nil
}
