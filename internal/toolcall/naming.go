package toolcall

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"

	"github.com/cuecode/cuecode/internal/model"
)

// maxNameLength is the longest function name chat-completion APIs accept.
const maxNameLength = 64

// FunctionName derives a tool name from the verb and templated path, e.g.
// GET /widgets/{id} -> get_widgets_-id-. Path separators become '_' and
// template braces become '-', so /widgets/id and /widgets/{id} stay distinct.
// Names over 64 characters are truncated and suffixed with a short hash of
// the full name.
func FunctionName(verb model.Method, path string) string {
	var b strings.Builder
	b.WriteString(verb.Lower())
	b.WriteByte('_')
	for _, r := range strings.TrimPrefix(path, "/") {
		switch {
		case r == '/':
			b.WriteByte('_')
		case r == '{' || r == '}':
			b.WriteByte('-')
		case isNameRune(r):
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return truncate(b.String())
}

// PropertyName namespaces a parameter by its location so that a header and
// a query parameter with the same name do not collide.
func PropertyName(name string, in model.ParameterLocation) string {
	return sanitize(name + "_in_" + string(in))
}

// PropertyNames returns the property name of every parameter, in order.
// When sanitizing maps two different parameters onto the same name, the
// later one gets a short hash of its raw name appended.
func PropertyNames(params []model.Parameter) []string {
	names := make([]string, len(params))
	owners := make(map[string]string, len(params))
	for i, p := range params {
		raw := p.Name + "_in_" + string(p.In)
		name := PropertyName(p.Name, p.In)
		if owner, taken := owners[name]; taken && owner != raw {
			sum := sha1.Sum([]byte(raw))
			name += "_" + hex.EncodeToString(sum[:])[:8]
		}
		owners[name] = raw
		names[i] = name
	}
	return names
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range s {
		if isNameRune(r) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func truncate(name string) string {
	if len(name) <= maxNameLength {
		return name
	}
	sum := sha1.Sum([]byte(name))
	return name[:maxNameLength-9] + "_" + hex.EncodeToString(sum[:])[:8]
}

func isNameRune(r rune) bool {
	return r == '_' || r == '-' ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		(r >= '0' && r <= '9')
}
