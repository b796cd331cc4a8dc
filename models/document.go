package models

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks where a document is in the ingestion lifecycle
type DocumentStatus string

const (
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusReady      DocumentStatus = "ready"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// Document is an ingested source file. It owns its chunks; deleting it cascades.
type Document struct {
	ID          uuid.UUID      `json:"id" db:"id"`
	FileName    string         `json:"file_name" db:"file_name"`
	Path        string         `json:"path" db:"path"`
	ContentType string         `json:"content_type" db:"content_type"`
	RawText     string         `json:"-" db:"raw_text"`
	Status      DocumentStatus `json:"status" db:"status"`
	ChunkCount  int            `json:"chunk_count" db:"chunk_count"`
	Error       *string        `json:"error,omitempty" db:"error"`
	CreatedAt   time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Document model
func (Document) TableName() string {
	return "documents"
}

// NewDocument creates a document in the processing state
func NewDocument(fileName, path, contentType, rawText string) *Document {
	now := time.Now()
	return &Document{
		ID:          uuid.New(),
		FileName:    fileName,
		Path:        path,
		ContentType: contentType,
		RawText:     rawText,
		Status:      DocumentStatusProcessing,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// IsSearchReady reports whether embedding generation has been attempted for every chunk
func (d *Document) IsSearchReady() bool {
	return d.Status == DocumentStatusReady
}
