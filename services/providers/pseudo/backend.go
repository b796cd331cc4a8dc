// Package pseudo produces deterministic hash-based vectors for running without
// a live embedding backend. The vectors carry no semantic meaning.
package pseudo

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"

	"github.com/upb/rag-retrieval/services/providers"
)

// Model is the model name recorded for pseudo embeddings
const Model = "pseudo-sha256"

const backendName = "pseudo"

// Backend hashes text into a unit vector of a fixed dimension
type Backend struct {
	dimension int
}

var _ providers.Backend = (*Backend)(nil)

// New creates a pseudo backend producing vectors of the given dimension
func New(dimension int) *Backend {
	if dimension <= 0 {
		dimension = 768
	}
	return &Backend{dimension: dimension}
}

// Kind returns the backend kind
func (b *Backend) Kind() providers.BackendKind {
	return providers.BackendPseudo
}

// Dimension returns the vector length
func (b *Backend) Dimension() int {
	return b.dimension
}

// Embed derives the vector from SHA-256 in counter mode over the normalised
// text, so equal texts (ignoring case and surrounding space) map to equal vectors.
func (b *Backend) Embed(ctx context.Context, _ string, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, providers.NewProviderError(backendName, providers.KindUnavailable, "CONTEXT_DONE", "request cancelled", 0, false, err)
	}

	seed := []byte(strings.ToLower(strings.TrimSpace(text)))
	vector := make([]float32, b.dimension)

	var (
		counter [4]byte
		block   [sha256.Size]byte
		norm    float64
	)
	for i := 0; i < b.dimension; i++ {
		// 8 values per 32-byte block
		if i%8 == 0 {
			binary.LittleEndian.PutUint32(counter[:], uint32(i/8))
			h := sha256.New()
			h.Write(seed)
			h.Write(counter[:])
			copy(block[:], h.Sum(nil))
		}
		u := binary.LittleEndian.Uint32(block[(i%8)*4:])
		v := float64(u)/float64(math.MaxUint32)*2 - 1
		vector[i] = float32(v)
		norm += v * v
	}

	if norm > 0 {
		scale := 1 / math.Sqrt(norm)
		for i := range vector {
			vector[i] = float32(float64(vector[i]) * scale)
		}
	}
	return vector, nil
}

// Complete always fails: there is no pseudo text generation.
func (b *Backend) Complete(_ context.Context, _ *providers.CompletionRequest) (*providers.Completion, error) {
	return nil, providers.NewProviderError(backendName, providers.KindUnavailable, "NO_COMPLETION", "no completion backend configured", 0, false, nil)
}
