// Package normalize rewrites known-but-technically-invalid OpenAPI shapes
// into their valid equivalents before the document model is built.
//
// Two rewrites are applied at every depth of the tree:
//
//	schema: []          becomes  schema: {}
//	security: [{}, ...] loses    every empty requirement object
//
// Everything else, including unknown keys, is copied verbatim.
package normalize

import (
	"fmt"

	"github.com/cuecode/cuecode/internal/apperrors"
	"go.yaml.in/yaml/v4"
)

// Normalize returns a rewritten deep copy of n with aliases expanded. The
// input is never mutated and Normalize(Normalize(n)) equals Normalize(n).
// Aliases that expand to more than maxAliasNodes copied nodes in total are
// rejected with a ParseError.
func Normalize(n *yaml.Node) (*yaml.Node, error) {
	r := &rewriter{}
	out := r.rewrite(n, 0)
	if r.err != nil {
		return nil, r.err
	}
	return out, nil
}

const (
	// maxAliasDepth bounds nested alias expansion.
	maxAliasDepth = 64
	// maxAliasNodes bounds the nodes copied through aliases across the
	// whole document.
	maxAliasNodes = 1 << 18
)

type rewriter struct {
	expanded int
	err      error
}

func (r *rewriter) rewrite(n *yaml.Node, aliasDepth int) *yaml.Node {
	if n == nil {
		return nil
	}
	if r.err != nil {
		return emptyMapping(n)
	}
	if aliasDepth > 0 {
		r.expanded++
		if r.expanded > maxAliasNodes {
			r.err = &apperrors.ParseError{
				Line:    n.Line,
				Column:  n.Column,
				Message: fmt.Sprintf("aliases expand to more than %d nodes", maxAliasNodes),
			}
			return emptyMapping(n)
		}
	}

	switch n.Kind {
	case yaml.AliasNode:
		if aliasDepth >= maxAliasDepth || n.Alias == nil {
			return emptyMapping(n)
		}
		return r.rewrite(n.Alias, aliasDepth+1)

	case yaml.MappingNode:
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := r.rewrite(n.Content[i], aliasDepth)
			value := r.rewrite(n.Content[i+1], aliasDepth)
			switch key.Value {
			case "schema":
				value = fixEmptySchema(value)
			case "security":
				value = fixSecurity(value)
			}
			out.Content = append(out.Content, key, value)
		}
		return out

	case yaml.SequenceNode, yaml.DocumentNode:
		out := shallowCopy(n)
		out.Content = make([]*yaml.Node, 0, len(n.Content))
		for _, c := range n.Content {
			out.Content = append(out.Content, r.rewrite(c, aliasDepth))
		}
		return out

	default:
		return shallowCopy(n)
	}
}

func fixEmptySchema(v *yaml.Node) *yaml.Node {
	if v.Kind == yaml.SequenceNode && len(v.Content) == 0 {
		return emptyMapping(v)
	}
	return v
}

func fixSecurity(v *yaml.Node) *yaml.Node {
	if v.Kind != yaml.SequenceNode {
		return v
	}
	kept := v.Content[:0]
	for _, req := range v.Content {
		if req.Kind == yaml.MappingNode && len(req.Content) == 0 {
			continue
		}
		kept = append(kept, req)
	}
	v.Content = kept
	return v
}

func shallowCopy(n *yaml.Node) *yaml.Node {
	c := *n
	c.Anchor = ""
	c.Alias = nil
	return &c
}

func emptyMapping(at *yaml.Node) *yaml.Node {
	return &yaml.Node{
		Kind:   yaml.MappingNode,
		Tag:    "!!map",
		Style:  yaml.FlowStyle,
		Line:   at.Line,
		Column: at.Column,
	}
}
