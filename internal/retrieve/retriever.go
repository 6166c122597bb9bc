// Package retrieve finds the operations whose selection prompts best match
// free text. Each sentence of the text is embedded and searched
// independently; hits are merged in sentence order and deduplicated by tool
// name, the first occurrence winning.
package retrieve

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/embedding"
	"github.com/cuecode/cuecode/internal/metrics"
	"github.com/cuecode/cuecode/internal/sentence"
	"github.com/cuecode/cuecode/internal/store"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const DefaultTopK = 10

type Retriever struct {
	store    store.Store
	embedder embedding.Embedder
	topK     int
	metrics  *metrics.Collector
	logger   *zap.Logger
}

type Option func(*Retriever)

// WithTopK sets how many prompts are fetched per sentence.
func WithTopK(k int) Option {
	return func(r *Retriever) {
		if k > 0 {
			r.topK = k
		}
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(r *Retriever) {
		r.metrics = c
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(r *Retriever) {
		r.logger = logger
	}
}

func New(st store.Store, embedder embedding.Embedder, opts ...Option) *Retriever {
	r := &Retriever{
		store:    st,
		embedder: embedder,
		topK:     DefaultTopK,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.Named("retrieve")
	return r
}

// OperationRef locates the operation behind a tool name.
type OperationRef struct {
	OperationID uuid.UUID `json:"operation_id"`
	PathID      uuid.UUID `json:"path_id"`
	Verb        string    `json:"http_verb"`
	Similarity  float64   `json:"similarity"`

	// Sentence is the part of the request text that matched.
	Sentence string `json:"sentence"`
}

type Result struct {
	// ToolCalls holds the tool-call descriptors, best match first.
	ToolCalls []json.RawMessage
	Lookup    map[string]OperationRef
}

func (r *Retriever) Retrieve(ctx context.Context, configurationID uuid.UUID, text string) (result *Result, err error) {
	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err == nil:
		case errors.Is(err, apperrors.ErrNotFound):
			outcome = metrics.OutcomeNotFound
		default:
			outcome = metrics.OutcomeError
		}
		r.metrics.ObserveRetrieval(outcome)
	}()

	specID := configurationID
	result = &Result{Lookup: make(map[string]OperationRef)}

	for _, s := range sentence.Split(text) {
		vector, err := r.embedder.Embed(ctx, s)
		if err != nil {
			return nil, fmt.Errorf("embedding request sentence: %w", err)
		}

		matches, err := r.store.SearchPrompts(ctx, specID, vector, r.topK)
		if err != nil {
			return nil, err
		}

		for _, m := range matches {
			name := m.ToolName
			if name == "" {
				name = toolName(m.ToolCall)
			}
			if name == "" {
				r.logger.Warn("Skipping operation without a tool name", zap.String("operation_id", m.OperationID.String()))
				continue
			}
			if _, seen := result.Lookup[name]; seen {
				continue
			}
			result.Lookup[name] = OperationRef{
				OperationID: m.OperationID,
				PathID:      m.PathID,
				Verb:        m.Verb,
				Similarity:  m.Similarity,
				Sentence:    s,
			}
			result.ToolCalls = append(result.ToolCalls, m.ToolCall)
		}
	}

	if len(result.ToolCalls) == 0 {
		return nil, &apperrors.NoMatchingOperationsError{
			ConfigurationID: configurationID.String(),
			Text:            strings.TrimSpace(text),
		}
	}

	r.logger.Debug("Retrieved operations",
		zap.String("configuration_id", configurationID.String()),
		zap.Int("tools", len(result.ToolCalls)))
	return result, nil
}

func toolName(raw json.RawMessage) string {
	var desc struct {
		Function struct {
			Name string `json:"name"`
		} `json:"function"`
	}
	if err := json.Unmarshal(raw, &desc); err != nil {
		return ""
	}
	return desc.Function.Name
}
