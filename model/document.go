package model

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"
)

// Document represents a source document identified by its content fingerprint.
// Documents are immutable once ingested; re-ingesting identical content is a no-op.
type Document struct {
	Fingerprint string    `json:"fingerprint"`
	Source      string    `json:"source"`
	SizeBytes   int64     `json:"size_bytes"`
	Metadata    Metadata  `json:"metadata,omitempty"`
	IngestedAt  time.Time `json:"ingested_at"`
}

// NewDocument creates a Document from raw file content.
// The fingerprint is the hex-encoded SHA-256 of the content and serves as the
// idempotence key for ingestion.
func NewDocument(source string, content []byte) *Document {
	sum := sha256.Sum256(content)

	return &Document{
		Fingerprint: hex.EncodeToString(sum[:]),
		Source:      source,
		SizeBytes:   int64(len(content)),
		Metadata: Metadata{
			MetadataKeySource: filepath.Base(source),
		},
		IngestedAt: time.Now().UTC(),
	}
}
