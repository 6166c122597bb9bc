// Package pipeline runs a configuration end to end: load, validate, derive,
// synthesize tool calls, stage everything in one store transaction, embed
// the selection prompts in a single batch and commit. Any failure rolls the
// transaction back, so a configuration is either fully searchable or not at
// all.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/derive"
	"github.com/cuecode/cuecode/internal/embedding"
	"github.com/cuecode/cuecode/internal/entity"
	"github.com/cuecode/cuecode/internal/loader"
	"github.com/cuecode/cuecode/internal/metrics"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/cuecode/cuecode/internal/store"
	"github.com/cuecode/cuecode/internal/toolcall"
	"github.com/cuecode/cuecode/internal/validate"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Pipeline struct {
	store      store.Store
	embedder   embedding.Embedder
	validator  *validate.Validator
	deriver    *derive.Deriver
	dimensions int
	metrics    *metrics.Collector
	logger     *zap.Logger
}

type Option func(*Pipeline)

func WithValidator(v *validate.Validator) Option {
	return func(p *Pipeline) {
		p.validator = v
	}
}

func WithDeriver(d *derive.Deriver) Option {
	return func(p *Pipeline) {
		p.deriver = d
	}
}

// WithDimensions sets the expected embedding width.
func WithDimensions(n int) Option {
	return func(p *Pipeline) {
		p.dimensions = n
	}
}

func WithMetrics(c *metrics.Collector) Option {
	return func(p *Pipeline) {
		p.metrics = c
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(p *Pipeline) {
		p.logger = logger
	}
}

func New(st store.Store, embedder embedding.Embedder, opts ...Option) (*Pipeline, error) {
	p := &Pipeline{
		store:      st,
		embedder:   embedder,
		dimensions: embedding.DefaultDimensions,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.Named("pipeline")

	if p.validator == nil {
		p.validator = validate.New(validate.WithLogger(p.logger))
	}
	if p.deriver == nil {
		d, err := derive.New(derive.WithLogger(p.logger))
		if err != nil {
			return nil, err
		}
		p.deriver = d
	}
	return p, nil
}

type Result struct {
	SpecificationID uuid.UUID
	ServerID        uuid.UUID
	Paths           []entity.Path
	Operations      []entity.Operation
	// Prompts holds every embedded prompt of the specification, including
	// rows left by earlier runs.
	Prompts  []entity.SelectionPrompt
	Nouns    []entity.Noun
	Warnings []string
}

// RunConfigurationPipeline configures rawSpec under configurationID, which
// also identifies the stored specification. baseURL resolves relative
// server URLs and backs the synthetic server of documents without one.
func (p *Pipeline) RunConfigurationPipeline(ctx context.Context, rawSpec []byte, configurationID uuid.UUID, baseURL string) (result *Result, err error) {
	start := time.Now()
	logger := p.logger.With(zap.String("configuration_id", configurationID.String()))

	defer func() {
		outcome := metrics.OutcomeSuccess
		switch {
		case err == nil:
		case isInputError(err):
			outcome = metrics.OutcomeInvalid
		default:
			outcome = metrics.OutcomeError
		}
		p.metrics.ObservePipeline(outcome, time.Since(start))
		if err != nil {
			logger.Error("Configuration pipeline failed", zap.String("outcome", outcome), zap.Error(err))
		}
	}()

	if configurationID == uuid.Nil {
		return nil, fmt.Errorf("configuration id is required")
	}

	loaded, err := loader.Load(rawSpec, loader.WithBaseURL(baseURL))
	if err != nil {
		return nil, err
	}
	for _, w := range loaded.Warnings {
		logger.Warn(w)
	}

	if err := p.validator.Validate(loaded); err != nil {
		return nil, err
	}

	specID := configurationID
	derived, err := p.deriver.Derive(loaded.Document, specID)
	if err != nil {
		return nil, err
	}

	ops, err := synthesize(derived, logger)
	if err != nil {
		return nil, err
	}

	spec := entity.Specification{
		ID:              specID,
		ConfigurationID: configurationID,
		Text:            string(rawSpec),
		BaseURL:         baseURL,
	}
	if spec.BaseURL == "" {
		spec.BaseURL = derived.Server.URL
	}

	tx, err := p.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(ctx); rbErr != nil {
				logger.Error("Failed to roll back configuration", zap.Error(rbErr))
			}
		}
	}()

	if err := stage(ctx, tx, &spec, derived, ops); err != nil {
		return nil, err
	}

	prompts, err := p.embed(ctx, tx, specID)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	logger.Info("Configuration committed",
		zap.Int("paths", len(derived.Paths)),
		zap.Int("operations", len(ops)),
		zap.Int("prompts", len(prompts)),
		zap.Int("nouns", len(derived.Nouns)),
		zap.Duration("elapsed", time.Since(start)))

	return &Result{
		SpecificationID: specID,
		ServerID:        derived.Server.ID,
		Paths:           derived.Paths,
		Operations:      ops,
		Prompts:         prompts,
		Nouns:           derived.Nouns,
		Warnings:        loaded.Warnings,
	}, nil
}

// synthesize attaches the tool-call descriptor and function name to every
// derived operation.
func synthesize(derived *derive.Result, logger *zap.Logger) ([]entity.Operation, error) {
	ops := make([]entity.Operation, 0, len(derived.Operations))
	names := make(map[string]string, len(derived.Operations))

	for _, d := range derived.Operations {
		src := d.Source
		desc, err := toolcall.Synthesize(src.Path, &src, model.Method(d.Entity.Verb))
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(desc)
		if err != nil {
			return nil, fmt.Errorf("encoding tool call for %s %s: %w", d.Entity.Verb, src.Path, err)
		}

		name := desc.Function.Name
		where := d.Entity.Verb + " " + src.Path
		if prev, ok := names[name]; ok {
			logger.Warn("Operations share a tool name; retrieval keeps the first match",
				zap.String("tool_name", name),
				zap.String("operation", where),
				zap.String("previous", prev))
		} else {
			names[name] = where
		}

		op := d.Entity
		op.ToolName = name
		op.ToolCall = data
		ops = append(ops, op)
	}
	return ops, nil
}

// stage replaces whatever an earlier run stored under the specification id
// with the records of this run.
func stage(ctx context.Context, tx store.Tx, spec *entity.Specification, derived *derive.Result, ops []entity.Operation) error {
	if err := tx.DeleteSpecification(ctx, spec.ID); err != nil {
		return err
	}
	if err := tx.UpsertSpecification(ctx, spec); err != nil {
		return err
	}
	if err := tx.UpsertServer(ctx, &derived.Server); err != nil {
		return err
	}
	for i := range derived.Paths {
		if err := tx.UpsertPath(ctx, &derived.Paths[i]); err != nil {
			return err
		}
	}
	for i := range ops {
		if err := tx.UpsertOperation(ctx, &ops[i]); err != nil {
			return err
		}
		for j := range ops[i].Prompts {
			if err := tx.UpsertSelectionPrompt(ctx, &ops[i].Prompts[j]); err != nil {
				return err
			}
		}
	}
	for i := range derived.Nouns {
		if err := tx.UpsertNoun(ctx, &derived.Nouns[i]); err != nil {
			return err
		}
	}
	return nil
}

// embed embeds every prompt of the specification in one batch and attaches
// the vectors inside tx.
func (p *Pipeline) embed(ctx context.Context, tx store.Tx, specID uuid.UUID) ([]entity.SelectionPrompt, error) {
	prompts, err := tx.ListSelectionPrompts(ctx, specID)
	if err != nil {
		return nil, err
	}

	texts := make([]string, len(prompts))
	for i, sp := range prompts {
		texts[i] = sp.Text
	}
	p.metrics.ObserveEmbeddingBatch(len(texts))

	vectors, err := embedding.EmbedAll(ctx, p.embedder, texts, p.dimensions)
	if err != nil {
		return nil, err
	}

	for i := range prompts {
		prompts[i].Embedding = vectors[i]
		if err := tx.SetPromptEmbedding(ctx, prompts[i].ID, vectors[i]); err != nil {
			return nil, err
		}
	}
	return prompts, nil
}

func isInputError(err error) bool {
	if errors.Is(err, apperrors.ErrInvariant) {
		return false
	}
	for _, target := range []error{
		apperrors.ErrParse,
		apperrors.ErrReference,
		apperrors.ErrSchemaViolation,
		apperrors.ErrValidation,
		apperrors.ErrMultiServer,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
