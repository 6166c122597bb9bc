// Package store persists derived configuration records and answers
// similarity searches over selection-prompt embeddings.
//
// Writes go through a Tx and become visible to SearchPrompts only after
// Commit. A configuration run deletes the specification it replaces in the
// same Tx, so a re-import never leaves records of the earlier document. Upserts are keyed by the deterministic record ids, so replaying a
// configuration run overwrites rather than duplicates. A write that collides
// with another record on a natural key (for example two path ids for the
// same templated path) is skipped and logged instead of failing the run.
package store

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/cuecode/cuecode/internal/entity"
	"github.com/google/uuid"
)

var ErrNotFound = errors.New("record not found")

// Store is the read side plus the entry point for transactional writes.
type Store interface {
	Begin(ctx context.Context) (Tx, error)
	// SearchPrompts returns the selection prompts of a specification ranked
	// by cosine similarity to vector, highest first.
	SearchPrompts(ctx context.Context, specID uuid.UUID, vector []float32, limit int) ([]PromptMatch, error)
	GetSpecification(ctx context.Context, id uuid.UUID) (*entity.Specification, error)
	GetPath(ctx context.Context, id uuid.UUID) (*entity.Path, error)
	GetOperation(ctx context.Context, id uuid.UUID) (*entity.Operation, error)
}

// Tx stages the records of one configuration run.
type Tx interface {
	// DeleteSpecification removes the specification and every record that
	// belongs to it. Deleting an unknown specification is a no-op.
	DeleteSpecification(ctx context.Context, specID uuid.UUID) error
	UpsertSpecification(ctx context.Context, spec *entity.Specification) error
	UpsertServer(ctx context.Context, server *entity.Server) error
	UpsertPath(ctx context.Context, path *entity.Path) error
	UpsertOperation(ctx context.Context, op *entity.Operation) error
	UpsertSelectionPrompt(ctx context.Context, prompt *entity.SelectionPrompt) error
	UpsertNoun(ctx context.Context, noun *entity.Noun) error
	// ListSelectionPrompts returns every prompt of the specification visible
	// to the transaction, ordered by operation id then prompt id.
	ListSelectionPrompts(ctx context.Context, specID uuid.UUID) ([]entity.SelectionPrompt, error)
	SetPromptEmbedding(ctx context.Context, promptID uuid.UUID, embedding []float32) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// PromptMatch is one similarity search hit joined with its operation.
type PromptMatch struct {
	PromptID    uuid.UUID
	OperationID uuid.UUID
	PathID      uuid.UUID
	ServerID    uuid.UUID
	Verb        string
	Prompt      string
	ToolName    string
	ToolCall    json.RawMessage
	// Similarity is 1 - cosine distance.
	Similarity float64
}
