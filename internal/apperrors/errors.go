// Package apperrors defines the error taxonomy shared by the configuration
// pipeline and the retrieval path.
//
// Errors fall into three categories:
//
//   - input errors (ParseError, ReferenceError, SchemaViolationError,
//     ValidationError, MultiServerError) describe a document the pipeline
//     refuses to ingest;
//   - invariant errors (InvariantError, AmbiguousServerError) mean a stage
//     broke its contract and must never be retried;
//   - NoMatchingOperationsError is a normal retrieval outcome, distinct
//     from collaborator failures.
//
// Every type matches its category sentinel with errors.Is.
package apperrors

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrParse             = errors.New("parse error")
	ErrReference         = errors.New("reference error")
	ErrCircularReference = errors.New("circular reference")
	ErrSchemaViolation   = errors.New("schema violation")
	ErrValidation        = errors.New("validation error")
	ErrServerCount       = errors.New("server count violation")
	ErrServerURL         = errors.New("server url violation")
	ErrMultiServer       = errors.New("multiple servers declared")
	ErrInvariant         = errors.New("invariant violation")
	ErrNotFound          = errors.New("not found")
)

// ParseError reports malformed JSON or YAML input.
type ParseError struct {
	Line    int
	Column  int
	Message string
	Cause   error
}

func (e *ParseError) Error() string {
	msg := "parse error"
	if e.Line > 0 {
		msg += fmt.Sprintf(" at line %d", e.Line)
		if e.Column > 0 {
			msg += fmt.Sprintf(", column %d", e.Column)
		}
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error { return e.Cause }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ReferenceError reports a $ref that cannot be followed: a missing target,
// a non-local reference or a chain that loops back on itself.
type ReferenceError struct {
	Ref        string
	IsCircular bool
	// Chain holds the pointers visited before the failure, in order.
	Chain   []string
	Message string
}

func (e *ReferenceError) Error() string {
	msg := "unresolved reference"
	if e.IsCircular {
		msg = "circular reference"
	}
	if e.Ref != "" {
		msg += ": " + e.Ref
	}
	if e.IsCircular && len(e.Chain) > 0 {
		msg += " (" + strings.Join(e.Chain, " -> ") + ")"
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	return msg
}

func (e *ReferenceError) Is(target error) bool {
	if target == ErrReference {
		return true
	}
	return target == ErrCircularReference && e.IsCircular
}

// SchemaViolationError reports a required field that is absent or has the
// wrong shape while building the document model.
type SchemaViolationError struct {
	// Path is the JSON path of the offending node, e.g. "paths./pets.get.parameters[0]".
	Path    string
	Field   string
	Message string
}

func (e *SchemaViolationError) Error() string {
	loc := e.Path
	if e.Field != "" {
		if loc != "" {
			loc += "."
		}
		loc += e.Field
	}
	if loc == "" {
		return "schema violation: " + e.Message
	}
	return fmt.Sprintf("schema violation at %s: %s", loc, e.Message)
}

func (e *SchemaViolationError) Is(target error) bool { return target == ErrSchemaViolation }

// ViolationKind classifies a structural validation failure.
type ViolationKind string

const (
	KindOpenAPISchema      ViolationKind = "openapi-schema"
	KindServerCount        ViolationKind = "server-count"
	KindServerURL          ViolationKind = "server-url"
	KindUnsupportedVerb    ViolationKind = "unsupported-verb"
	KindDuplicateOperation ViolationKind = "duplicate-operation"
	KindParameterLocation  ViolationKind = "parameter-location"
)

// Violation is a single failed structural rule.
type Violation struct {
	Kind    ViolationKind
	Path    string
	Message string
	// Count is set for server count violations.
	Count int
}

func (v *Violation) String() string {
	if v.Path == "" {
		return fmt.Sprintf("[%s] %s", v.Kind, v.Message)
	}
	return fmt.Sprintf("[%s] %s: %s", v.Kind, v.Path, v.Message)
}

// ValidationError carries every violation found in one validation pass.
type ValidationError struct {
	Violations []*Violation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 1 {
		return "validation failed: " + e.Violations[0].String()
	}
	lines := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		lines = append(lines, v.String())
	}
	return fmt.Sprintf("validation failed with %d violations:\n  %s", len(e.Violations), strings.Join(lines, "\n  "))
}

// Has reports whether any violation is of the given kind.
func (e *ValidationError) Has(kind ViolationKind) bool {
	for _, v := range e.Violations {
		if v.Kind == kind {
			return true
		}
	}
	return false
}

func (e *ValidationError) Is(target error) bool {
	switch target {
	case ErrValidation:
		return true
	case ErrServerCount:
		return e.Has(KindServerCount)
	case ErrServerURL:
		return e.Has(KindServerURL)
	}
	return false
}

// MultiServerError is raised by entity derivation when an operation or a
// path item declares more than one effective server.
type MultiServerError struct {
	Path  string
	Verb  string
	Count int
}

func (e *MultiServerError) Error() string {
	where := e.Path
	if where == "" {
		where = "document"
	}
	if e.Verb != "" {
		where = e.Verb + " " + e.Path
	}
	return fmt.Sprintf("multi-server constraint violated at %s: %d servers declared, exactly one supported", where, e.Count)
}

func (e *MultiServerError) Is(target error) bool { return target == ErrMultiServer }

// InvariantError signals a broken contract between pipeline stages.
type InvariantError struct {
	Stage   string
	Message string
}

func (e *InvariantError) Error() string {
	return fmt.Sprintf("invariant violated in %s: %s", e.Stage, e.Message)
}

func (e *InvariantError) Is(target error) bool { return target == ErrInvariant }

// AmbiguousServerError is raised when tool-call synthesis receives an
// operation with more than one effective server.
type AmbiguousServerError struct {
	Path    string
	Verb    string
	Servers []string
}

func (e *AmbiguousServerError) Error() string {
	return fmt.Sprintf("ambiguous server for %s %s: %s", e.Verb, e.Path, strings.Join(e.Servers, ", "))
}

func (e *AmbiguousServerError) Is(target error) bool {
	return target == ErrInvariant || target == ErrMultiServer
}

// NoMatchingOperationsError is returned when retrieval finds nothing for the
// given text.
type NoMatchingOperationsError struct {
	ConfigurationID string
	Text            string
}

func (e *NoMatchingOperationsError) Error() string {
	return fmt.Sprintf("no operations match the request for configuration %s", e.ConfigurationID)
}

func (e *NoMatchingOperationsError) Is(target error) bool { return target == ErrNotFound }
