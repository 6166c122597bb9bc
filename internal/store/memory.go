package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"maps"
	"math"
	"slices"
	"sort"
	"sync"

	"github.com/cuecode/cuecode/internal/entity"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var errTxDone = errors.New("transaction already committed or rolled back")

// MemoryStore keeps everything in process. Transactions stage their writes
// and apply them atomically on Commit.
type MemoryStore struct {
	mu        sync.RWMutex
	committed *tables
	logger    *zap.Logger
}

var _ Store = (*MemoryStore)(nil)

type tables struct {
	specs   map[uuid.UUID]entity.Specification
	servers map[uuid.UUID]entity.Server
	paths   map[uuid.UUID]entity.Path
	ops     map[uuid.UUID]entity.Operation
	prompts map[uuid.UUID]entity.SelectionPrompt
	nouns   map[uuid.UUID]entity.Noun
}

func newTables() *tables {
	return &tables{
		specs:   make(map[uuid.UUID]entity.Specification),
		servers: make(map[uuid.UUID]entity.Server),
		paths:   make(map[uuid.UUID]entity.Path),
		ops:     make(map[uuid.UUID]entity.Operation),
		prompts: make(map[uuid.UUID]entity.SelectionPrompt),
		nouns:   make(map[uuid.UUID]entity.Noun),
	}
}

func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStore{committed: newTables(), logger: logger.Named("memory-store")}
}

func (s *MemoryStore) Begin(ctx context.Context) (Tx, error) {
	return &memoryTx{store: s, staged: newTables(), deleted: make(map[uuid.UUID]struct{})}, nil
}

func (s *MemoryStore) GetSpecification(ctx context.Context, id uuid.UUID) (*entity.Specification, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	spec, ok := s.committed.specs[id]
	if !ok {
		return nil, fmt.Errorf("specification %s: %w", id, ErrNotFound)
	}
	return &spec, nil
}

func (s *MemoryStore) GetPath(ctx context.Context, id uuid.UUID) (*entity.Path, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.committed.paths[id]
	if !ok {
		return nil, fmt.Errorf("path %s: %w", id, ErrNotFound)
	}
	return &p, nil
}

func (s *MemoryStore) GetOperation(ctx context.Context, id uuid.UUID) (*entity.Operation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	op, ok := s.committed.ops[id]
	if !ok {
		return nil, fmt.Errorf("operation %s: %w", id, ErrNotFound)
	}
	return &op, nil
}

func (s *MemoryStore) SearchPrompts(ctx context.Context, specID uuid.UUID, vector []float32, limit int) ([]PromptMatch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matches []PromptMatch
	for _, p := range s.committed.prompts {
		if len(p.Embedding) == 0 {
			continue
		}
		op, ok := s.committed.ops[p.OperationID]
		if !ok {
			continue
		}
		server, ok := s.committed.servers[op.ServerID]
		if !ok || server.SpecID != specID {
			continue
		}
		sim, ok := cosineSimilarity(vector, p.Embedding)
		if !ok {
			continue
		}
		matches = append(matches, PromptMatch{
			PromptID:    p.ID,
			OperationID: op.ID,
			PathID:      op.PathID,
			ServerID:    op.ServerID,
			Verb:        op.Verb,
			Prompt:      p.Text,
			ToolName:    op.ToolName,
			ToolCall:    op.ToolCall,
			Similarity:  sim,
		})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].Similarity != matches[j].Similarity {
			return matches[i].Similarity > matches[j].Similarity
		}
		return bytes.Compare(matches[i].PromptID[:], matches[j].PromptID[:]) < 0
	})
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

func cosineSimilarity(a, b []float32) (float64, bool) {
	if len(a) != len(b) {
		return 0, false
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0, false
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb)), true
}

// owned adds to ids every record of t that belongs to specID. Operations
// are matched through the servers and paths already in ids.
func (t *tables) owned(specID uuid.UUID, ids map[uuid.UUID]struct{}) {
	if _, ok := t.specs[specID]; ok {
		ids[specID] = struct{}{}
	}
	for id, s := range t.servers {
		if s.SpecID == specID {
			ids[id] = struct{}{}
		}
	}
	for id, p := range t.paths {
		if p.SpecID == specID {
			ids[id] = struct{}{}
		}
	}
	for id, n := range t.nouns {
		if n.SpecID == specID {
			ids[id] = struct{}{}
		}
	}
	for id, o := range t.ops {
		_, byServer := ids[o.ServerID]
		_, byPath := ids[o.PathID]
		if byServer || byPath {
			ids[id] = struct{}{}
		}
	}
	for id, p := range t.prompts {
		if _, ok := ids[p.OperationID]; ok {
			ids[id] = struct{}{}
		}
	}
}

func (t *tables) drop(ids map[uuid.UUID]struct{}) {
	for id := range ids {
		delete(t.specs, id)
		delete(t.servers, id)
		delete(t.paths, id)
		delete(t.ops, id)
		delete(t.prompts, id)
		delete(t.nouns, id)
	}
}

type memoryTx struct {
	store   *MemoryStore
	staged  *tables
	// deleted holds committed record ids this transaction removes on Commit.
	deleted map[uuid.UUID]struct{}
	done    bool
}

// conflict reports a record that already holds key under a different id,
// looking at staged writes first. Committed records in deleted are ignored.
func conflict[T any](staged, committed map[uuid.UUID]T, deleted map[uuid.UUID]struct{}, id uuid.UUID, sameKey func(T) bool) (uuid.UUID, bool) {
	for other, rec := range staged {
		if other != id && sameKey(rec) {
			return other, true
		}
	}
	for other, rec := range committed {
		if _, gone := deleted[other]; gone {
			continue
		}
		if other != id && sameKey(rec) {
			return other, true
		}
	}
	return uuid.Nil, false
}

// committedRecord looks id up in a committed table unless the transaction
// deleted it.
func committedRecord[T any](tx *memoryTx, m map[uuid.UUID]T, id uuid.UUID) (T, bool) {
	if _, gone := tx.deleted[id]; gone {
		var zero T
		return zero, false
	}
	rec, ok := m[id]
	return rec, ok
}

func (tx *memoryTx) skip(table string, id, existing uuid.UUID) {
	tx.store.logger.Warn("skipping conflicting record",
		zap.String("table", table),
		zap.String("id", id.String()),
		zap.String("existing_id", existing.String()))
}

func (tx *memoryTx) DeleteSpecification(ctx context.Context, specID uuid.UUID) error {
	if tx.done {
		return errTxDone
	}
	tx.store.mu.RLock()
	tx.store.committed.owned(specID, tx.deleted)
	tx.store.mu.RUnlock()

	staged := maps.Clone(tx.deleted)
	tx.staged.owned(specID, staged)
	tx.staged.drop(staged)
	return nil
}

func (tx *memoryTx) UpsertSpecification(ctx context.Context, spec *entity.Specification) error {
	if tx.done {
		return errTxDone
	}
	tx.staged.specs[spec.ID] = *spec
	return nil
}

func (tx *memoryTx) UpsertServer(ctx context.Context, server *entity.Server) error {
	if tx.done {
		return errTxDone
	}
	tx.store.mu.RLock()
	other, ok := conflict(tx.staged.servers, tx.store.committed.servers, tx.deleted, server.ID, func(s entity.Server) bool {
		return s.SpecID == server.SpecID && s.URL == server.URL
	})
	tx.store.mu.RUnlock()
	if ok {
		tx.skip("openapi_server", server.ID, other)
		return nil
	}
	tx.staged.servers[server.ID] = *server
	return nil
}

func (tx *memoryTx) UpsertPath(ctx context.Context, path *entity.Path) error {
	if tx.done {
		return errTxDone
	}
	tx.store.mu.RLock()
	other, ok := conflict(tx.staged.paths, tx.store.committed.paths, tx.deleted, path.ID, func(p entity.Path) bool {
		return p.SpecID == path.SpecID && p.Templated == path.Templated
	})
	tx.store.mu.RUnlock()
	if ok {
		tx.skip("openapi_path", path.ID, other)
		return nil
	}
	tx.staged.paths[path.ID] = *path
	return nil
}

func (tx *memoryTx) UpsertOperation(ctx context.Context, op *entity.Operation) error {
	if tx.done {
		return errTxDone
	}
	tx.store.mu.RLock()
	other, ok := conflict(tx.staged.ops, tx.store.committed.ops, tx.deleted, op.ID, func(o entity.Operation) bool {
		return o.PathID == op.PathID && o.Verb == op.Verb
	})
	tx.store.mu.RUnlock()
	if ok {
		tx.skip("openapi_operation", op.ID, other)
		return nil
	}
	stored := *op
	stored.Prompts = nil
	stored.ToolCall = slices.Clone(op.ToolCall)
	tx.staged.ops[op.ID] = stored
	return nil
}

func (tx *memoryTx) UpsertSelectionPrompt(ctx context.Context, prompt *entity.SelectionPrompt) error {
	if tx.done {
		return errTxDone
	}
	stored := *prompt
	stored.Embedding = slices.Clone(prompt.Embedding)
	tx.staged.prompts[prompt.ID] = stored
	return nil
}

func (tx *memoryTx) UpsertNoun(ctx context.Context, noun *entity.Noun) error {
	if tx.done {
		return errTxDone
	}
	tx.store.mu.RLock()
	other, ok := conflict(tx.staged.nouns, tx.store.committed.nouns, tx.deleted, noun.ID, func(n entity.Noun) bool {
		return n.SpecID == noun.SpecID && n.Prompt == noun.Prompt
	})
	tx.store.mu.RUnlock()
	if ok {
		tx.skip("openapi_entity", noun.ID, other)
		return nil
	}
	tx.staged.nouns[noun.ID] = *noun
	return nil
}

func (tx *memoryTx) ListSelectionPrompts(ctx context.Context, specID uuid.UUID) ([]entity.SelectionPrompt, error) {
	if tx.done {
		return nil, errTxDone
	}
	tx.store.mu.RLock()
	defer tx.store.mu.RUnlock()

	lookup := func(id uuid.UUID) (entity.Operation, entity.Server, bool) {
		op, ok := tx.staged.ops[id]
		if !ok {
			if op, ok = committedRecord(tx, tx.store.committed.ops, id); !ok {
				return op, entity.Server{}, false
			}
		}
		server, ok := tx.staged.servers[op.ServerID]
		if !ok {
			server, ok = committedRecord(tx, tx.store.committed.servers, op.ServerID)
		}
		return op, server, ok
	}

	visible := maps.Clone(tx.store.committed.prompts)
	for id := range tx.deleted {
		delete(visible, id)
	}
	maps.Copy(visible, tx.staged.prompts)

	var out []entity.SelectionPrompt
	for _, p := range visible {
		if _, server, ok := lookup(p.OperationID); ok && server.SpecID == specID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if c := bytes.Compare(out[i].OperationID[:], out[j].OperationID[:]); c != 0 {
			return c < 0
		}
		return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0
	})
	return out, nil
}

func (tx *memoryTx) SetPromptEmbedding(ctx context.Context, promptID uuid.UUID, embedding []float32) error {
	if tx.done {
		return errTxDone
	}
	p, ok := tx.staged.prompts[promptID]
	if !ok {
		tx.store.mu.RLock()
		p, ok = committedRecord(tx, tx.store.committed.prompts, promptID)
		tx.store.mu.RUnlock()
		if !ok {
			return fmt.Errorf("selection prompt %s: %w", promptID, ErrNotFound)
		}
	}
	p.Embedding = slices.Clone(embedding)
	tx.staged.prompts[promptID] = p
	return nil
}

func (tx *memoryTx) Commit(ctx context.Context) error {
	if tx.done {
		return errTxDone
	}
	tx.done = true

	s := tx.store
	s.mu.Lock()
	defer s.mu.Unlock()
	s.committed.drop(tx.deleted)
	maps.Copy(s.committed.specs, tx.staged.specs)
	maps.Copy(s.committed.servers, tx.staged.servers)
	maps.Copy(s.committed.paths, tx.staged.paths)
	maps.Copy(s.committed.ops, tx.staged.ops)
	maps.Copy(s.committed.prompts, tx.staged.prompts)
	maps.Copy(s.committed.nouns, tx.staged.nouns)
	return nil
}

// Rollback discards staged writes. Rolling back a finished transaction is a
// no-op so callers can defer it unconditionally.
func (tx *memoryTx) Rollback(ctx context.Context) error {
	tx.done = true
	tx.staged = newTables()
	tx.deleted = make(map[uuid.UUID]struct{})
	return nil
}
