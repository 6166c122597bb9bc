// Package derive turns a validated document model into the entities the
// pipeline persists: one server, the paths in document order, an operation
// per (path, verb) with its selection prompts, and the domain nouns.
//
// Derivation has no side effects. The caller stages and commits the result.
package derive

import (
	"fmt"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/entity"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/cuecode/cuecode/internal/sentence"
	"github.com/cuecode/cuecode/internal/templates"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type Deriver struct {
	prompts templates.Engine
	logger  *zap.Logger
}

type Option func(*Deriver)

func WithTemplates(e templates.Engine) Option {
	return func(d *Deriver) {
		d.prompts = e
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(d *Deriver) {
		d.logger = logger
	}
}

func New(opts ...Option) (*Deriver, error) {
	d := &Deriver{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(d)
	}
	if d.prompts == nil {
		e, err := templates.New("")
		if err != nil {
			return nil, fmt.Errorf("loading prompt templates: %w", err)
		}
		d.prompts = e
	}
	return d, nil
}

type Result struct {
	Server     entity.Server
	Paths      []entity.Path
	Operations []Operation
	Nouns      []entity.Noun
}

// Operation pairs a derived entity with the model operation it came from.
// Source.Servers holds the effective servers after inheritance.
type Operation struct {
	Entity entity.Operation
	Source model.Operation
}

// Prompts returns every selection prompt of the result in operation order.
func (r *Result) Prompts() []entity.SelectionPrompt {
	var out []entity.SelectionPrompt
	for _, op := range r.Operations {
		out = append(out, op.Entity.Prompts...)
	}
	return out
}

func (d *Deriver) Derive(doc *model.Document, specID uuid.UUID) (*Result, error) {
	serverURL, err := singleServer(doc)
	if err != nil {
		return nil, err
	}
	server, err := entity.NewServer(specID, serverURL)
	if err != nil {
		return nil, err
	}

	result := &Result{Server: server}

	for i := range doc.Paths {
		p := &doc.Paths[i]
		path, err := entity.NewPath(specID, p.Path, i)
		if err != nil {
			return nil, err
		}
		result.Paths = append(result.Paths, path)

		seen := make(map[model.Method]bool)
		for j := range p.Operations {
			op := &p.Operations[j]
			switch {
			case !op.Method.Valid():
				d.logger.Warn("Skipping unsupported verb", zap.String("path", p.Path), zap.String("verb", string(op.Method)))
				continue
			case seen[op.Method]:
				d.logger.Warn("Skipping duplicate operation", zap.String("path", p.Path), zap.String("verb", string(op.Method)))
				continue
			}
			seen[op.Method] = true

			if op.Extensions.Exclude || p.Extensions.Exclude {
				d.logger.Debug("Operation excluded", zap.String("path", p.Path), zap.String("verb", string(op.Method)))
				continue
			}

			derived, err := d.operation(doc, p, op, path, server)
			if err != nil {
				return nil, err
			}
			result.Operations = append(result.Operations, derived)
		}
	}

	result.Nouns = nouns(doc, specID)

	d.logger.Debug("Derived entities",
		zap.String("server", server.URL),
		zap.Int("paths", len(result.Paths)),
		zap.Int("operations", len(result.Operations)),
		zap.Int("nouns", len(result.Nouns)))

	return result, nil
}

func (d *Deriver) operation(doc *model.Document, p *model.PathItem, op *model.Operation, path entity.Path, server entity.Server) (Operation, error) {
	selection := op.SelectionPrompt()
	e, err := entity.NewOperation(path, server, string(op.Method), selection)
	if err != nil {
		return Operation{}, err
	}

	verbPrompt, err := d.prompts.Execute(templates.HTTPVerbPrompt, map[string]string{
		"Verb": string(op.Method),
		"Path": p.Path,
	})
	if err != nil {
		return Operation{}, err
	}
	e.AddPrompt(verbPrompt)

	for _, s := range sentence.Split(selection) {
		e.AddPrompt(s)
	}
	for _, s := range op.Extensions.Prompts {
		if s = strings.TrimSpace(s); s != "" {
			e.AddPrompt(s)
		}
	}

	source := *op
	source.Servers = doc.EffectiveServers(p, op)
	return Operation{Entity: e, Source: source}, nil
}

// singleServer returns the one effective server URL shared by every
// operation, failing when any level declares more than one.
func singleServer(doc *model.Document) (string, error) {
	if len(doc.Servers) > 1 {
		return "", &apperrors.MultiServerError{Count: len(doc.Servers)}
	}

	urls := make(map[string]bool)
	var first string
	for i := range doc.Paths {
		p := &doc.Paths[i]
		if len(p.Servers) > 1 {
			return "", &apperrors.MultiServerError{Path: p.Path, Count: len(p.Servers)}
		}
		for j := range p.Operations {
			op := &p.Operations[j]
			if len(op.Servers) > 1 {
				return "", &apperrors.MultiServerError{Path: p.Path, Verb: string(op.Method), Count: len(op.Servers)}
			}
			u := doc.EffectiveServers(p, op)[0].URL
			if first == "" {
				first = u
			}
			urls[u] = true
		}
	}

	if first == "" {
		return doc.EffectiveServers(nil, nil)[0].URL, nil
	}
	if len(urls) > 1 {
		return "", &apperrors.MultiServerError{Count: len(urls)}
	}
	return first, nil
}

// nouns returns one noun per non-excluded component schema. The prompt is
// x-cuecode-noun, then the schema prompt, then the schema name.
func nouns(doc *model.Document, specID uuid.UUID) []entity.Noun {
	var out []entity.Noun
	seen := make(map[uuid.UUID]bool)
	for _, s := range doc.Schemas {
		if s.Extensions.Exclude {
			continue
		}
		prompt := s.Name
		for _, candidate := range []string{s.Extensions.Noun, s.Extensions.Prompt} {
			if strings.TrimSpace(candidate) != "" {
				prompt = candidate
				break
			}
		}
		n := entity.NewNoun(specID, prompt)
		if seen[n.ID] {
			continue
		}
		seen[n.ID] = true
		out = append(out, n)
	}
	return out
}
