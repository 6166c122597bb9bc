// Package toolcall projects an operation into the function-calling descriptor
// chat-completion APIs accept:
//
//	{"type": "function", "function": {"name": ..., "description": ...,
//	  "parameters": {"type": "object", "properties": {...}, "required": [...]}}}
//
// Synthesis is a pure function of its inputs and marshals byte-identically
// for the same operation.
package toolcall

import (
	"encoding/json"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/model"
)

type Descriptor struct {
	Type     string
	Function Function
}

type Function struct {
	Name        string
	Description string
	// Parameters is a pruned JSON Schema object.
	Parameters map[string]any
}

func (d *Descriptor) MarshalJSON() ([]byte, error) {
	return json.Marshal(prune(map[string]any{
		"type": d.Type,
		"function": map[string]any{
			"name":        d.Function.Name,
			"description": d.Function.Description,
			"parameters":  d.Function.Parameters,
		},
	}))
}

// ParametersJSON returns the encoded parameter schema.
func (d *Descriptor) ParametersJSON() (json.RawMessage, error) {
	return json.Marshal(d.Function.Parameters)
}

// Synthesize builds the descriptor for op, which must already carry its
// effective servers. More than one server is an invariant violation.
func Synthesize(path string, op *model.Operation, verb model.Method) (*Descriptor, error) {
	if len(op.Servers) > 1 {
		urls := make([]string, 0, len(op.Servers))
		for _, s := range op.Servers {
			urls = append(urls, s.URL)
		}
		return nil, &apperrors.AmbiguousServerError{Path: path, Verb: string(verb), Servers: urls}
	}

	properties := make(map[string]any)
	var required []any

	for i, key := range PropertyNames(op.Parameters) {
		p := op.Parameters[i]
		schema := parameterSchema(p)
		if p.Required && prune(schema) == nil {
			schema = map[string]any{
				"type":        "string",
				"description": p.Name + " in " + string(p.In),
			}
		}
		properties[key] = schema
		if p.Required {
			required = append(required, key)
		}
	}

	if op.RequestBody != nil {
		oneOf := make(map[string]any, len(op.RequestBody.Content))
		for _, mt := range op.RequestBody.Content {
			oneOf[mt.MediaType] = mt.Schema.Object()
		}
		properties["requestBody"] = map[string]any{
			"type":  "object",
			"oneOf": oneOf,
		}
		if op.RequestBody.Required {
			required = append(required, "requestBody")
		}
	}

	params, _ := prune(map[string]any{
		"type":       "object",
		"properties": properties,
	}).(map[string]any)
	if params == nil {
		params = map[string]any{"type": "object"}
	}

	// A required key is only listed when its property survived pruning.
	if kept, ok := params["properties"].(map[string]any); ok {
		var present []any
		for _, key := range required {
			if _, ok := kept[key.(string)]; ok {
				present = append(present, key)
			}
		}
		if len(present) > 0 {
			params["required"] = present
		}
	}

	return &Descriptor{
		Type: "function",
		Function: Function{
			Name:        FunctionName(verb, path),
			Description: collapseNewlines(op.SelectionPrompt()),
			Parameters:  params,
		},
	}, nil
}

// parameterSchema copies the parameter schema and adds the description the
// model sees, preferring the prompt extension, plus any examples.
func parameterSchema(p model.Parameter) map[string]any {
	info := p.ValueSchema().Object()

	description := p.Extensions.Prompt
	if strings.TrimSpace(description) == "" {
		description = p.Description
	}
	info["description"] = description

	var examples []any
	if p.Example != nil {
		examples = append(examples, p.Example)
	}
	examples = append(examples, p.Examples...)
	if len(examples) > 0 {
		info["examples"] = examples
	}
	return info
}

func collapseNewlines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
