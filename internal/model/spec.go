package model

import (
	"net/url"
	"strings"
)

type Document struct {
	OpenAPI  string
	Info     Info
	Servers  []Server
	Tags     []Tag
	Paths    []PathItem
	Schemas  []Schema
	Security []SecurityScheme
	// SecurityRequirements is the document-wide default, overridden per operation.
	SecurityRequirements []SecurityRequirement
	Extensions           Extensions
	// BaseURL resolves relative server URLs and backs the synthetic server
	// used when no level declares one.
	BaseURL string
}

// SchemaByRef returns a component schema by its $ref path (e.g.,
// "#/components/schemas/Widget"), or nil.
func (d *Document) SchemaByRef(ref string) *Schema {
	name, ok := strings.CutPrefix(ref, "#/components/schemas/")
	if !ok {
		return nil
	}
	for i := range d.Schemas {
		if d.Schemas[i].Name == name {
			return &d.Schemas[i]
		}
	}
	return nil
}

// DefaultServer is the synthetic server used when neither the operation, its
// path item nor the document declares one.
func (d *Document) DefaultServer() Server {
	if d.BaseURL != "" {
		return Server{URL: d.BaseURL}
	}
	return Server{URL: "/"}
}

// EffectiveServers applies the inheritance chain operation -> path item ->
// document -> synthetic default. The result is never empty.
func (d *Document) EffectiveServers(p *PathItem, op *Operation) []Server {
	switch {
	case op != nil && len(op.Servers) > 0:
		return op.Servers
	case p != nil && len(p.Servers) > 0:
		return p.Servers
	case len(d.Servers) > 0:
		return d.Servers
	}
	return []Server{d.DefaultServer()}
}

// Operations returns every operation with its owning path item, in document order.
func (d *Document) Operations() []OperationRef {
	var out []OperationRef
	for i := range d.Paths {
		p := &d.Paths[i]
		for j := range p.Operations {
			out = append(out, OperationRef{Path: p, Operation: &p.Operations[j]})
		}
	}
	return out
}

type OperationRef struct {
	Path      *PathItem
	Operation *Operation
}

type Info struct {
	Title       string
	Description string
	Version     string
}

type Server struct {
	URL         string
	Description string
	Variables   map[string]ServerVariable
}

type ServerVariable struct {
	Default     string
	Enum        []string
	Description string
}

// ResolveServerURL expands raw against base when raw is relative. Absolute
// URLs and unparsable input are returned unchanged.
func ResolveServerURL(base, raw string) string {
	ref, err := url.Parse(raw)
	if err != nil || ref.IsAbs() || base == "" {
		return raw
	}
	b, err := url.Parse(base)
	if err != nil || !b.IsAbs() {
		return raw
	}
	if raw == "" || raw == "/" {
		return base
	}
	return b.ResolveReference(ref).String()
}

type Tag struct {
	Name        string
	Summary     string
	Description string
	Extensions  Extensions
}

type PathItem struct {
	Path        string
	Summary     string
	Description string
	Servers     []Server
	Parameters  []Parameter
	Operations  []Operation
	Extensions  Extensions
}

// Operation returns the first operation declared for method, or nil.
func (p *PathItem) Operation(method Method) *Operation {
	for i := range p.Operations {
		if p.Operations[i].Method == method {
			return &p.Operations[i]
		}
	}
	return nil
}
