package model

import (
	"errors"
	"fmt"
)

// Stage identifies the pipeline stage an error originated from.
type Stage string

const (
	StageLoad     Stage = "LOAD"
	StageSplit    Stage = "SPLIT"
	StageEmbed    Stage = "EMBED"
	StageStore    Stage = "STORE"
	StageLedger   Stage = "LEDGER"
	StageRetrieve Stage = "RETRIEVE"
	StageGenerate Stage = "GENERATE"
)

// Sentinel errors for the failure taxonomy. Callers dispatch on these with
// errors.Is rather than matching error strings.
var (
	// ErrEmptyText indicates the extracted text was empty or whitespace-only.
	ErrEmptyText = errors.New("extracted text is empty")

	// ErrInvalidSplitConfig indicates chunk size or overlap are out of range.
	ErrInvalidSplitConfig = errors.New("invalid split configuration")

	// ErrInvalidFormat indicates the source file is not a readable PDF.
	ErrInvalidFormat = errors.New("invalid file format")

	// ErrAlreadyInProgress indicates another ingestion attempt holds the
	// fingerprint claim. Expected under concurrent duplicate ingestion.
	ErrAlreadyInProgress = errors.New("ingestion already in progress")

	// ErrModelMismatch indicates the query-time embedding model differs from
	// the model recorded in the vector index.
	ErrModelMismatch = errors.New("embedding model mismatch")

	// ErrDimensionMismatch indicates a vector of unexpected dimensionality.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrGenerationTimeout indicates the generation call exceeded its deadline.
	ErrGenerationTimeout = errors.New("generation timed out")

	// ErrGenerationRejected indicates the generation model returned malformed
	// or empty output.
	ErrGenerationRejected = errors.New("generation returned unusable output")
)

// StageError is the common root error kind of the pipeline. It carries the
// originating stage, the cause, and whether the operation is worth retrying.
type StageError struct {
	Stage     Stage
	Err       error
	Retryable bool
}

func (e *StageError) Error() string {
	return fmt.Sprintf("%s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// NewStageError wraps err with its originating stage.
func NewStageError(stage Stage, err error, retryable bool) *StageError {
	return &StageError{Stage: stage, Err: err, Retryable: retryable}
}

// Retryable reports whether err (or any error in its chain) is a retryable
// stage error. Errors outside the taxonomy are treated as non-retryable.
func Retryable(err error) bool {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		return stageErr.Retryable
	}
	return false
}
