package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// Metadata represents JSONB metadata stored in PostgreSQL
type Metadata map[string]interface{}

// Keys the PDF loader attaches to documents, carried into every chunk.
const (
	MetadataKeySource        = "source"
	MetadataKeyTotalPages    = "total_pages"
	MetadataKeyFileSizeKB    = "file_size_kb"
	MetadataKeyIngestionDate = "ingestion_date"
)

// Source returns the source key or an empty string.
func (m Metadata) Source() string {
	s, _ := m[MetadataKeySource].(string)
	return s
}

// TotalPages returns the page count. Numbers come back from JSONB as
// float64, so both representations are accepted.
func (m Metadata) TotalPages() (int, bool) {
	switch v := m[MetadataKeyTotalPages].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// FileSizeKB returns the source file size in kilobytes.
func (m Metadata) FileSizeKB() (float64, bool) {
	switch v := m[MetadataKeyFileSizeKB].(type) {
	case float64:
		return v, true
	case int:
		return float64(v), true
	}
	return 0, false
}

// Value implements the driver.Valuer interface for database storage
func (m Metadata) Value() (driver.Value, error) {
	return m.Marshal()
}

// Scan implements the sql.Scanner interface for database retrieval
func (m *Metadata) Scan(value interface{}) error {
	return m.Unmarshal(value)
}

// Marshal converts Metadata to JSON bytes
func (m Metadata) Marshal() ([]byte, error) {
	return json.Marshal(m)
}

// Unmarshal converts JSON bytes or Metadata to Metadata
func (m *Metadata) Unmarshal(value interface{}) error {
	if value == nil {
		*m = Metadata{}
		return nil
	}

	if s, ok := value.(Metadata); ok {
		*m = Metadata(s)
		return nil
	}

	b, ok := value.([]byte)
	if !ok {
		return errors.New("type assertion to []byte failed")
	}

	return json.Unmarshal(b, m)
}
