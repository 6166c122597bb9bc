package loader

import (
	"fmt"
	"os"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/cuecode/cuecode/internal/normalize"
	"github.com/cuecode/cuecode/internal/refs"
	"go.yaml.in/yaml/v4"
)

type Result struct {
	Document *model.Document
	// Tree is the normalized node tree the document was built from.
	Tree     *refs.Document
	Version  string
	Warnings []string
	// RawData is the normalized document re-encoded as YAML.
	RawData []byte
}

type Option func(*options)

type options struct {
	baseURL string
}

// WithBaseURL sets the URL relative server URLs are resolved against. It is
// also the URL of the synthetic server used when none is declared.
func WithBaseURL(u string) Option {
	return func(o *options) {
		o.baseURL = strings.TrimSpace(u)
	}
}

func LoadFile(path string, opts ...Option) (*Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading spec file: %w", err)
	}
	return Load(data, opts...)
}

// Load parses, normalizes and builds the document model. It runs the
// resolver, the compatibility normalizer and model construction in that
// order; structural validation is left to the validate package.
func Load(data []byte, opts ...Option) (*Result, error) {
	parsed, err := refs.Parse(data)
	if err != nil {
		return nil, err
	}

	normalized, err := normalize.Normalize(parsed.Root())
	if err != nil {
		return nil, err
	}
	tree := refs.FromNode(normalized)

	raw, err := yaml.Marshal(normalized)
	if err != nil {
		return nil, fmt.Errorf("encoding normalized document: %w", err)
	}

	doc, err := Build(tree, opts...)
	if err != nil {
		return nil, err
	}

	version := doc.OpenAPI
	if !strings.HasPrefix(version, "3.") {
		return nil, &apperrors.SchemaViolationError{
			Field:   "openapi",
			Message: fmt.Sprintf("unsupported OpenAPI version: %s (only 3.x supported)", version),
		}
	}

	result := &Result{
		Document: doc,
		Tree:     tree,
		Version:  version,
		RawData:  raw,
	}

	if strings.HasPrefix(version, "3.0") {
		result.Warnings = append(result.Warnings, "OpenAPI 3.0.x detected; 3.1 keywords are ignored")
	}

	return result, nil
}
