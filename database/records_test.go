package database

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/docrag/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordsNewLedgerDBHandler(t *testing.T) {
	database := initDB(t)

	t.Run("Valid call NewLedgerDBHandler", func(t *testing.T) {
		ledgerDbHandler, err := NewLedgerDBHandler(database, 0, true)
		assert.NoError(t, err, "Expected NewLedgerDBHandler to not return an error")
		require.NotNil(t, ledgerDbHandler, "Expected NewLedgerDBHandler to return a non-nil instance")
		require.NotNil(t, ledgerDbHandler.db, "Expected NewLedgerDBHandler to have a non-nil database instance")
		require.NotNil(t, ledgerDbHandler.db.Instance, "Expected NewLedgerDBHandler to have a non-nil database connection instance")
	})

	t.Run("Invalid call NewLedgerDBHandler with nil database", func(t *testing.T) {
		_, err := NewLedgerDBHandler(nil, 0, false)
		assert.Error(t, err, "Expected error when creating LedgerDBHandler with nil database")
		assert.Contains(t, err.Error(), "database connection is nil", "Expected specific error message for nil database connection")
	})
}

func TestRecordsClaim(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	ledgerDbHandler, err := NewLedgerDBHandler(database, 0, true)
	require.NoError(t, err, "Expected NewLedgerDBHandler to not return an error")

	require.NoError(t, ledgerDbHandler.Reset(ctx))

	t.Run("Claim fresh fingerprint", func(t *testing.T) {
		record, err := ledgerDbHandler.Claim(ctx, "fp-claim-1", "contract.pdf")
		assert.NoError(t, err, "Expected Claim to not return an error")
		require.NotNil(t, record, "Expected Claim to return a record")
		assert.Equal(t, model.StatusPending, record.Status, "Expected fresh claim to be PENDING")
		assert.Equal(t, "fp-claim-1", record.Fingerprint)
		assert.Equal(t, "contract.pdf", record.Source)
		assert.NotEqual(t, uuid.Nil, record.RID, "Expected claim to assign a record UUID")
		assert.WithinDuration(t, record.CreatedAt, time.Now(), 2*time.Second, "Expected CreatedAt to be set")
	})

	t.Run("Claim duplicate fingerprint returns ErrAlreadyInProgress", func(t *testing.T) {
		_, err := ledgerDbHandler.Claim(ctx, "fp-claim-1", "contract.pdf")
		assert.ErrorIs(t, err, model.ErrAlreadyInProgress, "Expected second claim on active fingerprint to be rejected")
	})

	t.Run("Claim after FAILED starts a fresh attempt", func(t *testing.T) {
		record, err := ledgerDbHandler.Claim(ctx, "fp-claim-2", "contract.pdf")
		require.NoError(t, err)

		err = ledgerDbHandler.MarkFailed(ctx, record, model.StageEmbed, "embedding provider unreachable")
		require.NoError(t, err)
		assert.Equal(t, model.StatusFailed, record.Status)

		fresh, err := ledgerDbHandler.Claim(ctx, "fp-claim-2", "contract.pdf")
		assert.NoError(t, err, "Expected claim after FAILED to succeed")
		require.NotNil(t, fresh)
		assert.Equal(t, model.StatusPending, fresh.Status)
		assert.NotEqual(t, record.RID, fresh.RID, "Expected retry to be a new attempt, not a mutation")

		attempts, err := ledgerDbHandler.SelectAttempts(ctx, "fp-claim-2")
		assert.NoError(t, err)
		require.Len(t, attempts, 2, "Expected FAILED attempt to be kept as history")
		assert.Equal(t, model.StatusFailed, attempts[0].Status)
		assert.Equal(t, model.StageEmbed, attempts[0].Stage)
		assert.Equal(t, model.StatusPending, attempts[1].Status)
	})

	t.Run("Concurrent claims have exactly one winner", func(t *testing.T) {
		var wg sync.WaitGroup
		errs := make([]error, 8)
		for i := range errs {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				_, errs[i] = ledgerDbHandler.Claim(ctx, "fp-claim-race", "contract.pdf")
			}(i)
		}
		wg.Wait()

		winners := 0
		for _, err := range errs {
			if err == nil {
				winners++
			} else {
				assert.ErrorIs(t, err, model.ErrAlreadyInProgress)
			}
		}
		assert.Equal(t, 1, winners, "Expected exactly one concurrent claim to win")
	})
}

func TestRecordsStaleClaimReclaim(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	ledgerDbHandler, err := NewLedgerDBHandler(database, time.Minute, true)
	require.NoError(t, err, "Expected NewLedgerDBHandler to not return an error")

	require.NoError(t, ledgerDbHandler.Reset(ctx))

	// backdate simulates an attempt whose process died some time ago.
	backdate := func(t *testing.T, rid uuid.UUID, age time.Duration) {
		t.Helper()
		_, err := database.Instance.ExecContext(
			ctx,
			`UPDATE ingestion_records SET updated_at = now() - make_interval(secs => $1) WHERE rid = $2`,
			int(age.Seconds()),
			rid,
		)
		require.NoError(t, err)
	}

	t.Run("Abandoned in-flight attempt loses its claim", func(t *testing.T) {
		record, err := ledgerDbHandler.Claim(ctx, "fp-stale", "contract.pdf")
		require.NoError(t, err)
		require.NoError(t, ledgerDbHandler.UpdateStatus(ctx, record, model.StatusEmbedding))

		backdate(t, record.RID, 10*time.Minute)

		fresh, err := ledgerDbHandler.Claim(ctx, "fp-stale", "contract.pdf")
		assert.NoError(t, err, "Expected the stale claim to be reclaimed")
		require.NotNil(t, fresh)
		assert.NotEqual(t, record.RID, fresh.RID)

		attempts, err := ledgerDbHandler.SelectAttempts(ctx, "fp-stale")
		require.NoError(t, err)
		require.Len(t, attempts, 2, "Expected the abandoned attempt to be kept as history")
		assert.Equal(t, model.StatusFailed, attempts[0].Status)
		assert.Contains(t, attempts[0].ErrorDetail, "reclaimed")
	})

	t.Run("Fresh in-flight attempt keeps its claim", func(t *testing.T) {
		_, err := ledgerDbHandler.Claim(ctx, "fp-stale-fresh", "contract.pdf")
		require.NoError(t, err)

		_, err = ledgerDbHandler.Claim(ctx, "fp-stale-fresh", "contract.pdf")
		assert.ErrorIs(t, err, model.ErrAlreadyInProgress)
	})

	t.Run("Registered attempts are never reclaimed", func(t *testing.T) {
		record, err := ledgerDbHandler.Claim(ctx, "fp-stale-registered", "contract.pdf")
		require.NoError(t, err)
		require.NoError(t, ledgerDbHandler.MarkRegistered(ctx, record, 4, "test-model"))

		backdate(t, record.RID, 24*time.Hour)

		_, err = ledgerDbHandler.Claim(ctx, "fp-stale-registered", "contract.pdf")
		assert.ErrorIs(t, err, model.ErrAlreadyInProgress, "Expected a registered document to keep its claim")
	})
}

func TestRecordsStatusTransitions(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	ledgerDbHandler, err := NewLedgerDBHandler(database, 0, true)
	require.NoError(t, err, "Expected NewLedgerDBHandler to not return an error")

	require.NoError(t, ledgerDbHandler.Reset(ctx))

	record, err := ledgerDbHandler.Claim(ctx, "fp-transitions", "notes.pdf")
	require.NoError(t, err)

	t.Run("Success path PENDING to REGISTERED", func(t *testing.T) {
		err := ledgerDbHandler.UpdateStatus(ctx, record, model.StatusEmbedding)
		assert.NoError(t, err)
		assert.Equal(t, model.StatusEmbedding, record.Status)

		err = ledgerDbHandler.UpdateStatus(ctx, record, model.StatusStored)
		assert.NoError(t, err)
		assert.Equal(t, model.StatusStored, record.Status)

		err = ledgerDbHandler.MarkRegistered(ctx, record, 12, "sentence-transformers/all-MiniLM-L6-v2")
		assert.NoError(t, err)
		assert.Equal(t, model.StatusRegistered, record.Status)
		assert.Equal(t, 12, record.ChunkCount)
		assert.Equal(t, "sentence-transformers/all-MiniLM-L6-v2", record.EmbeddingModel)
		assert.Empty(t, record.ErrorDetail)
		assert.True(t, record.Status.Terminal())
	})

	t.Run("SelectActive returns the registered record", func(t *testing.T) {
		active, err := ledgerDbHandler.SelectActive(ctx, "fp-transitions")
		assert.NoError(t, err)
		require.NotNil(t, active)
		assert.Equal(t, record.RID, active.RID)
		assert.Equal(t, model.StatusRegistered, active.Status)
		assert.Equal(t, 12, active.ChunkCount)
	})

	t.Run("SelectActive on unknown fingerprint returns nil", func(t *testing.T) {
		active, err := ledgerDbHandler.SelectActive(ctx, "fp-unknown")
		assert.NoError(t, err, "Expected no error for unknown fingerprint")
		assert.Nil(t, active, "Expected nil record for unknown fingerprint")
	})

	t.Run("Registered fingerprint cannot be claimed again", func(t *testing.T) {
		_, err := ledgerDbHandler.Claim(ctx, "fp-transitions", "notes.pdf")
		assert.ErrorIs(t, err, model.ErrAlreadyInProgress)
	})
}

func TestRecordsMarkFailed(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	ledgerDbHandler, err := NewLedgerDBHandler(database, 0, true)
	require.NoError(t, err, "Expected NewLedgerDBHandler to not return an error")

	require.NoError(t, ledgerDbHandler.Reset(ctx))

	record, err := ledgerDbHandler.Claim(ctx, "fp-failed", "broken.pdf")
	require.NoError(t, err)

	t.Run("MarkFailed records stage and detail", func(t *testing.T) {
		err := ledgerDbHandler.MarkFailed(ctx, record, model.StageLoad, "pdftotext exited with status 1")
		assert.NoError(t, err)
		assert.Equal(t, model.StatusFailed, record.Status)
		assert.Equal(t, model.StageLoad, record.Stage)
		assert.Equal(t, "pdftotext exited with status 1", record.ErrorDetail)

		active, err := ledgerDbHandler.SelectActive(ctx, "fp-failed")
		assert.NoError(t, err)
		assert.Nil(t, active, "Expected FAILED record to not count as active")
	})
}

func TestRecordsReset(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	ledgerDbHandler, err := NewLedgerDBHandler(database, 0, true)
	require.NoError(t, err, "Expected NewLedgerDBHandler to not return an error")

	for i := 0; i < 3; i++ {
		_, err := ledgerDbHandler.Claim(ctx, fmt.Sprintf("fp-reset-%d", i), "reset.pdf")
		require.NoError(t, err)
	}

	t.Run("Reset clears all records", func(t *testing.T) {
		err := ledgerDbHandler.Reset(ctx)
		assert.NoError(t, err, "Expected Reset to not return an error")

		for i := 0; i < 3; i++ {
			attempts, err := ledgerDbHandler.SelectAttempts(ctx, fmt.Sprintf("fp-reset-%d", i))
			assert.NoError(t, err)
			assert.Empty(t, attempts, "Expected no attempts after reset")
		}
	})
}
