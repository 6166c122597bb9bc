package model

import "maps"

// Schema is a JSON Schema fragment. Value holds the materialized form with
// local references inlined, ready to be embedded in tool-call descriptors.
type Schema struct {
	Name        string // component name for schemas under components.schemas
	Ref         string // pointer the schema was reached through, if any
	Type        string
	Description string
	Value       any
	Extensions  Extensions
}

// Object returns a shallow copy of the schema as a JSON object. Boolean
// schemas and nil yield an empty map.
func (s *Schema) Object() map[string]any {
	if s == nil {
		return map[string]any{}
	}
	if obj, ok := s.Value.(map[string]any); ok {
		return maps.Clone(obj)
	}
	return map[string]any{}
}

// Extensions carries the x-cuecode-* vendor extensions read from an object.
type Extensions struct {
	// Prompt is x-cuecode-prompt, or the shorter x-cuecode.
	Prompt string
	// Prompts is x-cuecode-prompts: extra selection prompts for an operation.
	Prompts []string
	// Exclude is x-cuecode-exclude.
	Exclude bool
	// Noun is x-cuecode-noun, overriding the noun derived from a schema.
	Noun string
	// Raw holds every other x- key.
	Raw map[string]any
}
