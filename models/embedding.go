package models

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// ErrVectorEncoding is returned when a stored vector cannot be decoded
var ErrVectorEncoding = errors.New("invalid vector encoding")

// Embedding is the vector of one field of one chunk
type Embedding struct {
	ChunkID   uuid.UUID `json:"chunk_id" db:"chunk_id"`
	Field     FieldKind `json:"field_kind" db:"field_kind"`
	Vector    []float32 `json:"-" db:"vector"`
	Dimension int       `json:"dimension" db:"dimension"`
	Model     string    `json:"model" db:"model"`
	Pseudo    bool      `json:"pseudo" db:"pseudo"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// TableName returns the table name for the Embedding model
func (Embedding) TableName() string {
	return "chunk_embeddings"
}

// NewEmbedding creates an embedding tagged with the vector's dimension
func NewEmbedding(chunkID uuid.UUID, field FieldKind, vector []float32, model string, pseudo bool) *Embedding {
	return &Embedding{
		ChunkID:   chunkID,
		Field:     field,
		Vector:    vector,
		Dimension: len(vector),
		Model:     model,
		Pseudo:    pseudo,
		CreatedAt: time.Now(),
	}
}

// EncodeVector serialises a vector as raw little-endian IEEE-754 float32 bytes
func EncodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[4*i:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector parses bytes produced by EncodeVector. dimension is the tag stored
// alongside the bytes; a length disagreement is reported rather than truncated.
func DecodeVector(data []byte, dimension int) ([]float32, error) {
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: %d bytes is not a multiple of 4", ErrVectorEncoding, len(data))
	}
	if dimension >= 0 && len(data)/4 != dimension {
		return nil, fmt.Errorf("%w: %d values, expected %d", ErrVectorEncoding, len(data)/4, dimension)
	}
	v := make([]float32, len(data)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
	}
	return v, nil
}

// ValidateVector checks that a vector is non-empty and finite
func ValidateVector(v []float32) error {
	if len(v) == 0 {
		return fmt.Errorf("%w: empty vector", ErrVectorEncoding)
	}
	for i, f := range v {
		if math.IsNaN(float64(f)) || math.IsInf(float64(f), 0) {
			return fmt.Errorf("%w: non-finite value at %d", ErrVectorEncoding, i)
		}
	}
	return nil
}
