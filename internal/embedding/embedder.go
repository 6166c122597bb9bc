// Package embedding turns selection prompts and request sentences into
// fixed-width vectors through an OpenAI-compatible embeddings endpoint.
package embedding

import (
	"context"
	"fmt"

	"github.com/cuecode/cuecode/internal/apperrors"
)

// DefaultDimensions is the width of the all-MiniLM-L6-v2 family of models.
const DefaultDimensions = 384

// Embedder produces one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// EmbedAll embeds texts in a single batched call. A result whose length or
// vector width does not match is an invariant violation, and no partial
// result is returned.
func EmbedAll(ctx context.Context, e Embedder, texts []string, dims int) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if dims <= 0 {
		dims = DefaultDimensions
	}

	vectors, err := e.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("embed %d prompts: %w", len(texts), err)
	}
	if len(vectors) != len(texts) {
		return nil, &apperrors.InvariantError{
			Stage:   "embedding",
			Message: fmt.Sprintf("got %d embeddings for %d prompts", len(vectors), len(texts)),
		}
	}
	for i, v := range vectors {
		if len(v) != dims {
			return nil, &apperrors.InvariantError{
				Stage:   "embedding",
				Message: fmt.Sprintf("embedding %d has dimension %d, want %d", i, len(v), dims),
			}
		}
	}
	return vectors, nil
}
