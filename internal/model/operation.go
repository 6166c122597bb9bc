package model

import (
	"fmt"
	"strings"
)

type Operation struct {
	Method      Method
	Path        string
	OperationID string
	Summary     string
	Description string
	Tags        []string
	Parameters  []Parameter
	RequestBody *RequestBody
	Responses   []Response
	Servers     []Server
	Security    []SecurityRequirement
	Deprecated  bool
	Extensions  Extensions
}

// SelectionPrompt is the text describing what the operation does, chosen by
// precedence: x-cuecode-prompt, description, summary, operationId, and
// finally "<VERB> <path>".
func (o *Operation) SelectionPrompt() string {
	for _, s := range []string{o.Extensions.Prompt, o.Description, o.Summary, o.OperationID} {
		if strings.TrimSpace(s) != "" {
			return s
		}
	}
	return fmt.Sprintf("%s %s", o.Method, o.Path)
}

type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodDelete  Method = "DELETE"
	MethodPatch   Method = "PATCH"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
	MethodTrace   Method = "TRACE"
)

// Methods lists the supported verbs in the order operations are emitted.
var Methods = []Method{
	MethodGet,
	MethodPost,
	MethodPut,
	MethodDelete,
	MethodPatch,
	MethodHead,
	MethodOptions,
	MethodTrace,
}

func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

func (m Method) Lower() string {
	return strings.ToLower(string(m))
}

type ParameterLocation string

const (
	LocationPath   ParameterLocation = "path"
	LocationQuery  ParameterLocation = "query"
	LocationHeader ParameterLocation = "header"
	LocationCookie ParameterLocation = "cookie"
)

func (l ParameterLocation) Valid() bool {
	switch l {
	case LocationPath, LocationQuery, LocationHeader, LocationCookie:
		return true
	}
	return false
}

type Parameter struct {
	Name        string
	In          ParameterLocation
	Description string
	Required    bool
	Deprecated  bool
	Example     any
	Examples    []any
	Extensions  Extensions
	// Value is either SchemaValue or ContentValue, never both.
	Value ParameterValue
}

// ValueSchema returns the declared schema, or the schema of the first media
// type for content-bearing parameters.
func (p *Parameter) ValueSchema() *Schema {
	return valueSchema(p.Value)
}

// ParameterValue is the closed union of the two ways a parameter or header
// can describe its value.
type ParameterValue interface {
	parameterValue()
}

type SchemaValue struct {
	Schema        *Schema
	Style         string
	Explode       bool
	AllowReserved bool
}

type ContentValue struct {
	Content []MediaType
}

func (SchemaValue) parameterValue()  {}
func (ContentValue) parameterValue() {}

func valueSchema(v ParameterValue) *Schema {
	switch v := v.(type) {
	case SchemaValue:
		return v.Schema
	case ContentValue:
		for _, mt := range v.Content {
			if mt.Schema != nil {
				return mt.Schema
			}
		}
		return nil
	case nil:
		return nil
	default:
		panic(fmt.Sprintf("unknown parameter value %T", v))
	}
}

// DefaultStyle returns the serialization style implied by the location.
func DefaultStyle(in ParameterLocation) string {
	switch in {
	case LocationQuery, LocationCookie:
		return "form"
	default:
		return "simple"
	}
}

type RequestBody struct {
	Description string
	Required    bool
	Content     []MediaType
}

type MediaType struct {
	MediaType string
	Schema    *Schema
	Example   any
}

type Response struct {
	StatusCode  string
	Description string
	Content     []MediaType
	Headers     []Header
}

type Header struct {
	Name        string
	Description string
	Required    bool
	Deprecated  bool
	Value       ParameterValue
}

func (h *Header) ValueSchema() *Schema {
	return valueSchema(h.Value)
}
