package apperrors

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelMatching(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		matches []error
		misses  []error
	}{
		{
			name:    "parse",
			err:     &ParseError{Line: 3, Cause: io.ErrUnexpectedEOF},
			matches: []error{ErrParse, io.ErrUnexpectedEOF},
			misses:  []error{ErrReference},
		},
		{
			name:    "missing reference",
			err:     &ReferenceError{Ref: "#/components/schemas/Nope"},
			matches: []error{ErrReference},
			misses:  []error{ErrCircularReference},
		},
		{
			name:    "circular reference",
			err:     &ReferenceError{Ref: "#/a", IsCircular: true},
			matches: []error{ErrReference, ErrCircularReference},
		},
		{
			name:    "schema violation",
			err:     &SchemaViolationError{Path: "paths./pets.get", Field: "responses"},
			matches: []error{ErrSchemaViolation},
			misses:  []error{ErrValidation},
		},
		{
			name: "validation with server count",
			err: &ValidationError{Violations: []*Violation{
				{Kind: KindServerCount, Count: 2},
				{Kind: KindUnsupportedVerb, Path: "paths./pets.query"},
			}},
			matches: []error{ErrValidation, ErrServerCount},
			misses:  []error{ErrServerURL},
		},
		{
			name:    "multi server",
			err:     &MultiServerError{Path: "/pets", Count: 2},
			matches: []error{ErrMultiServer},
			misses:  []error{ErrInvariant},
		},
		{
			name:    "ambiguous server",
			err:     &AmbiguousServerError{Path: "/pets", Verb: "GET"},
			matches: []error{ErrInvariant, ErrMultiServer},
		},
		{
			name:    "invariant",
			err:     &InvariantError{Stage: "embedding", Message: "2 vectors for 3 texts"},
			matches: []error{ErrInvariant},
			misses:  []error{ErrNotFound},
		},
		{
			name:    "no matching operations",
			err:     &NoMatchingOperationsError{ConfigurationID: "c1"},
			matches: []error{ErrNotFound},
			misses:  []error{ErrInvariant},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := fmt.Errorf("running: %w", tt.err)
			for _, target := range tt.matches {
				assert.ErrorIs(t, wrapped, target)
			}
			for _, target := range tt.misses {
				assert.False(t, errors.Is(wrapped, target), "unexpected match for %v", target)
			}
		})
	}
}

func TestMessages(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "parse with position",
			err:  &ParseError{Line: 4, Column: 2, Message: "did not find expected key"},
			want: "parse error at line 4, column 2: did not find expected key",
		},
		{
			name: "circular chain",
			err:  &ReferenceError{Ref: "#/components/schemas/A", IsCircular: true, Chain: []string{"#/components/schemas/A", "#/components/schemas/B"}},
			want: "circular reference: #/components/schemas/A (#/components/schemas/A -> #/components/schemas/B)",
		},
		{
			name: "schema violation path",
			err:  &SchemaViolationError{Path: "paths./pets.get.parameters[0]", Field: "name", Message: "required"},
			want: "schema violation at paths./pets.get.parameters[0].name: required",
		},
		{
			name: "single violation",
			err:  &ValidationError{Violations: []*Violation{{Kind: KindServerURL, Path: "servers[0]", Message: "bad"}}},
			want: "validation failed: [server-url] servers[0]: bad",
		},
		{
			name: "multi server on operation",
			err:  &MultiServerError{Path: "/pets", Verb: "GET", Count: 3},
			want: "multi-server constraint violated at GET /pets: 3 servers declared, exactly one supported",
		},
		{
			name: "ambiguous server",
			err:  &AmbiguousServerError{Path: "/pets", Verb: "GET", Servers: []string{"https://a", "https://b"}},
			want: "ambiguous server for GET /pets: https://a, https://b",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestValidationErrorListsEveryViolation(t *testing.T) {
	err := &ValidationError{Violations: []*Violation{
		{Kind: KindServerCount, Message: "2 servers"},
		{Kind: KindDuplicateOperation, Path: "paths./pets", Message: "duplicate"},
	}}
	msg := err.Error()
	assert.Contains(t, msg, "2 violations")
	assert.Contains(t, msg, "[server-count] 2 servers")
	assert.Contains(t, msg, "[duplicate-operation] paths./pets: duplicate")
	assert.True(t, err.Has(KindDuplicateOperation))
	assert.False(t, err.Has(KindParameterLocation))
}
