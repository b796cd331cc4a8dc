package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// FieldKind names one of the independently embedded text fields of a chunk
type FieldKind string

const (
	FieldContent       FieldKind = "content"
	FieldHeaderContext FieldKind = "header_context"
	FieldNotes         FieldKind = "notes"
	FieldDetails       FieldKind = "details"
)

// FieldKinds lists every field kind in a stable order
var FieldKinds = []FieldKind{FieldContent, FieldHeaderContext, FieldNotes, FieldDetails}

// ParseFieldKind converts a string into a FieldKind
func ParseFieldKind(s string) (FieldKind, error) {
	for _, k := range FieldKinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown field kind %q", s)
}

// Chunk is a contiguous passage of a document. Index is unique per document and
// contiguous from zero in source order.
type Chunk struct {
	ID            uuid.UUID `json:"id" db:"id"`
	DocumentID    uuid.UUID `json:"document_id" db:"document_id"`
	Index         int       `json:"chunk_index" db:"chunk_index"`
	Content       string    `json:"content" db:"content"`
	HeaderContext *string   `json:"header_context,omitempty" db:"header_context"`
	Notes         *string   `json:"notes,omitempty" db:"notes"`
	Details       *string   `json:"details,omitempty" db:"details"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time `json:"updated_at" db:"updated_at"`
}

// TableName returns the table name for the Chunk model
func (Chunk) TableName() string {
	return "chunks"
}

// NewChunk creates a chunk; empty optional texts are stored as NULL
func NewChunk(documentID uuid.UUID, index int, content, headerContext, notes, details string) *Chunk {
	now := time.Now()
	return &Chunk{
		ID:            uuid.New(),
		DocumentID:    documentID,
		Index:         index,
		Content:       content,
		HeaderContext: optional(headerContext),
		Notes:         optional(notes),
		Details:       optional(details),
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// FieldText returns the text of the given field, or "" when it is not populated
func (c *Chunk) FieldText(kind FieldKind) string {
	switch kind {
	case FieldContent:
		return c.Content
	case FieldHeaderContext:
		return deref(c.HeaderContext)
	case FieldNotes:
		return deref(c.Notes)
	case FieldDetails:
		return deref(c.Details)
	}
	return ""
}

// SetFieldText replaces the text of the given field
func (c *Chunk) SetFieldText(kind FieldKind, text string) {
	switch kind {
	case FieldContent:
		c.Content = text
	case FieldHeaderContext:
		c.HeaderContext = optional(text)
	case FieldNotes:
		c.Notes = optional(text)
	case FieldDetails:
		c.Details = optional(text)
	}
	c.UpdatedAt = time.Now()
}

// PopulatedFields returns the fields that carry text. Content is always included
// because an embedding for it is attempted for every chunk.
func (c *Chunk) PopulatedFields() []FieldKind {
	fields := []FieldKind{FieldContent}
	for _, k := range FieldKinds[1:] {
		if c.FieldText(k) != "" {
			fields = append(fields, k)
		}
	}
	return fields
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
