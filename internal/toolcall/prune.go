package toolcall

// prune removes map keys whose value is nil, an empty string, an empty map
// or an empty slice, recursively. Slice elements are pruned but never
// removed, and false or zero values are kept. A value that prunes to nothing
// is returned as nil.
func prune(v any) any {
	switch v := v.(type) {
	case nil:
		return nil
	case string:
		if v == "" {
			return nil
		}
		return v
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, child := range v {
			if pruned := prune(child); pruned != nil {
				out[k] = pruned
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		if len(v) == 0 {
			return nil
		}
		out := make([]any, len(v))
		for i, item := range v {
			if m, ok := item.(map[string]any); ok {
				if pruned, ok := prune(m).(map[string]any); ok {
					out[i] = pruned
				} else {
					out[i] = map[string]any{}
				}
				continue
			}
			out[i] = item
		}
		return out
	case []string:
		if len(v) == 0 {
			return nil
		}
		return v
	default:
		return v
	}
}
