package refs

import (
	"maps"
	"slices"
	"strconv"

	"go.yaml.in/yaml/v4"
)

// Materialize converts the subtree at n into plain JSON values: map[string]any,
// []any, string, int64, float64, bool and nil. Local references are inlined
// as they are reached; a reference that recurses into one of its own
// ancestors is kept as {"$ref": pointer}. Keys next to a $ref override the
// same keys of the target.
func (d *Document) Materialize(n *yaml.Node) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.materialize(n, nil)
}

func (d *Document) materialize(n *yaml.Node, stack []string) (any, error) {
	n = unalias(n)
	if n == nil {
		return nil, nil
	}

	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return nil, nil
		}
		return d.materialize(n.Content[0], stack)

	case yaml.MappingNode:
		if ref, ok := RefOf(n); ok {
			return d.materializeRef(n, ref, stack)
		}
		out := make(map[string]any, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			v, err := d.materialize(n.Content[i+1], stack)
			if err != nil {
				return nil, err
			}
			out[n.Content[i].Value] = v
		}
		return out, nil

	case yaml.SequenceNode:
		out := make([]any, 0, len(n.Content))
		for _, item := range n.Content {
			v, err := d.materialize(item, stack)
			if err != nil {
				return nil, err
			}
			out = append(out, v)
		}
		return out, nil

	default:
		return scalarValue(n), nil
	}
}

func (d *Document) materializeRef(n *yaml.Node, ref string, stack []string) (any, error) {
	if slices.Contains(stack, ref) {
		return map[string]any{"$ref": ref}, nil
	}
	target, err := d.resolve(ref, nil)
	if err != nil {
		return nil, err
	}
	value, err := d.materialize(target, append(stack, ref))
	if err != nil {
		return nil, err
	}

	obj, ok := value.(map[string]any)
	if !ok || len(n.Content) <= 2 {
		return value, nil
	}
	merged := maps.Clone(obj)
	for i := 0; i+1 < len(n.Content); i += 2 {
		key := n.Content[i].Value
		if key == "$ref" {
			continue
		}
		v, err := d.materialize(n.Content[i+1], stack)
		if err != nil {
			return nil, err
		}
		merged[key] = v
	}
	return merged, nil
}

func scalarValue(n *yaml.Node) any {
	switch n.ShortTag() {
	case "!!null":
		return nil
	case "!!bool":
		if b, err := strconv.ParseBool(n.Value); err == nil {
			return b
		}
	case "!!int":
		if i, err := strconv.ParseInt(n.Value, 0, 64); err == nil {
			return i
		}
	case "!!float":
		if f, err := strconv.ParseFloat(n.Value, 64); err == nil {
			return f
		}
	}
	return n.Value
}
