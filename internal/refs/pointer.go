package refs

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"go.yaml.in/yaml/v4"
)

// lookup walks an RFC 6901 pointer carried in a URI fragment ("#/a/b~1c").
func lookup(root *yaml.Node, ref string) (*yaml.Node, error) {
	fragment := strings.TrimPrefix(ref, "#")
	if unescaped, err := url.PathUnescape(fragment); err == nil {
		fragment = unescaped
	}
	if fragment == "" || fragment == "/" {
		return root, nil
	}
	if !strings.HasPrefix(fragment, "/") {
		return nil, &apperrors.ReferenceError{Ref: ref, Message: "pointer must start with '/'"}
	}

	parts := strings.Split(fragment[1:], "/")
	current := root
	for i, part := range parts {
		part = unescapeToken(part)
		current = unalias(current)

		switch current.Kind {
		case yaml.MappingNode:
			next := Field(current, part)
			if next == nil {
				return nil, &apperrors.ReferenceError{
					Ref:     ref,
					Message: fmt.Sprintf("missing key %q at /%s", part, strings.Join(parts[:i], "/")),
				}
			}
			current = next
		case yaml.SequenceNode:
			index, err := strconv.Atoi(part)
			if err != nil || index < 0 || index >= len(current.Content) {
				return nil, &apperrors.ReferenceError{
					Ref:     ref,
					Message: fmt.Sprintf("invalid array index %q at /%s", part, strings.Join(parts[:i], "/")),
				}
			}
			current = current.Content[index]
		default:
			return nil, &apperrors.ReferenceError{
				Ref:     ref,
				Message: fmt.Sprintf("cannot traverse into scalar at /%s", strings.Join(parts[:i], "/")),
			}
		}
	}
	return unalias(current), nil
}

// ~1 must be replaced before ~0 so that "~01" decodes to "~1".
func unescapeToken(token string) string {
	token = strings.ReplaceAll(token, "~1", "/")
	return strings.ReplaceAll(token, "~0", "~")
}

// EscapeToken encodes a mapping key for use inside a pointer.
func EscapeToken(token string) string {
	token = strings.ReplaceAll(token, "~", "~0")
	return strings.ReplaceAll(token, "/", "~1")
}
