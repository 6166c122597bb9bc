// Package refs parses OpenAPI text into a YAML node tree and resolves local
// JSON references on demand. A reference is only followed when something
// asks for it, and each resolved pointer is cached for the lifetime of the
// Document.
package refs

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/cuecode/cuecode/internal/apperrors"
	"go.yaml.in/yaml/v4"
)

type Document struct {
	root  *yaml.Node
	mu    sync.Mutex
	cache map[string]*yaml.Node
}

var lineRe = regexp.MustCompile(`line (\d+)`)

// Parse reads JSON or YAML text. No reference is dereferenced here, so a
// dangling $ref only surfaces when it is resolved.
func Parse(data []byte) (*Document, error) {
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		pe := &apperrors.ParseError{Cause: err}
		if m := lineRe.FindStringSubmatch(err.Error()); m != nil {
			pe.Line, _ = strconv.Atoi(m[1])
		}
		return nil, pe
	}
	if doc.Kind != yaml.DocumentNode || len(doc.Content) == 0 {
		return nil, &apperrors.ParseError{Message: "document is empty"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &apperrors.ParseError{
			Line:    root.Line,
			Column:  root.Column,
			Message: "top-level value must be an object",
		}
	}
	return FromNode(root), nil
}

// FromNode wraps an already parsed tree, e.g. the output of normalization.
func FromNode(root *yaml.Node) *Document {
	return &Document{
		root:  root,
		cache: make(map[string]*yaml.Node),
	}
}

// Root returns the top-level mapping node.
func (d *Document) Root() *yaml.Node {
	return d.root
}

// Resolve follows ref, and any chain of references its target points to,
// returning the first node that is not itself a reference.
func (d *Document) Resolve(ref string) (*yaml.Node, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.resolve(ref, nil)
}

// Deref returns n unchanged unless it is a {"$ref": ...} mapping, in which
// case the reference target is returned together with the pointer.
func (d *Document) Deref(n *yaml.Node) (*yaml.Node, string, error) {
	ref, ok := RefOf(n)
	if !ok {
		return n, "", nil
	}
	target, err := d.Resolve(ref)
	if err != nil {
		return nil, ref, err
	}
	return target, ref, nil
}

func (d *Document) resolve(ref string, chain []string) (*yaml.Node, error) {
	if n, ok := d.cache[ref]; ok {
		return n, nil
	}
	if slices.Contains(chain, ref) {
		return nil, &apperrors.ReferenceError{
			Ref:        ref,
			IsCircular: true,
			Chain:      append(slices.Clone(chain), ref),
		}
	}
	if !strings.HasPrefix(ref, "#") {
		return nil, &apperrors.ReferenceError{Ref: ref, Message: "only local references are supported"}
	}

	node, err := lookup(d.root, ref)
	if err != nil {
		return nil, err
	}
	if next, ok := RefOf(node); ok {
		node, err = d.resolve(next, append(chain, ref))
		if err != nil {
			return nil, err
		}
	}

	d.cache[ref] = node
	return node, nil
}

// RefOf reports the $ref value of a reference object.
func RefOf(n *yaml.Node) (string, bool) {
	n = unalias(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return "", false
	}
	v := Field(n, "$ref")
	if v == nil || v.Kind != yaml.ScalarNode {
		return "", false
	}
	return v.Value, true
}

// Field returns the value of key in mapping n, or nil.
func Field(n *yaml.Node, key string) *yaml.Node {
	n = unalias(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if n.Content[i].Value == key {
			return unalias(n.Content[i+1])
		}
	}
	return nil
}

// Pairs calls fn for every key/value pair of mapping n in document order.
func Pairs(n *yaml.Node, fn func(key string, value *yaml.Node) error) error {
	n = unalias(n)
	if n == nil || n.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, unalias(n.Content[i+1])); err != nil {
			return err
		}
	}
	return nil
}

func unalias(n *yaml.Node) *yaml.Node {
	for n != nil && n.Kind == yaml.AliasNode {
		n = n.Alias
	}
	return n
}
