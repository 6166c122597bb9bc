package refs

import (
	"errors"
	"testing"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const refDoc = `{
  "openapi": "3.1.0",
  "paths": {
    "/widgets/{id}": {
      "get": {"parameters": [{"$ref": "#/components/parameters/WidgetId"}]}
    }
  },
  "components": {
    "parameters": {
      "WidgetId": {"name": "id", "in": "path", "required": true, "schema": {"$ref": "#/components/schemas/Id"}},
      "Alias": {"$ref": "#/components/parameters/WidgetId"}
    },
    "schemas": {
      "Id": {"type": "integer", "minimum": 1},
      "Node": {"type": "object", "properties": {"child": {"$ref": "#/components/schemas/Node"}}},
      "LoopA": {"$ref": "#/components/schemas/LoopB"},
      "LoopB": {"$ref": "#/components/schemas/LoopA"},
      "Dangling": {"$ref": "#/components/schemas/Missing"},
      "Described": {"$ref": "#/components/schemas/Id", "description": "widget id"},
      "a/b": {"type": "string"},
      "t~n": {"type": "boolean"}
    }
  }
}`

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "malformed json", input: `{"openapi": "3.1.0",`},
		{name: "empty", input: ``},
		{name: "top-level array", input: `[1, 2]`},
		{name: "top-level scalar", input: `"openapi"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.input))
			require.Error(t, err)
			require.ErrorIs(t, err, apperrors.ErrParse)
		})
	}
}

func TestParseIsLazy(t *testing.T) {
	// A dangling reference does not fail parsing.
	doc, err := Parse([]byte(refDoc))
	require.NoError(t, err)
	require.NotNil(t, doc.Root())

	_, err = doc.Resolve("#/components/schemas/Dangling")
	require.ErrorIs(t, err, apperrors.ErrReference)
	require.NotErrorIs(t, err, apperrors.ErrCircularReference)
}

func TestResolve(t *testing.T) {
	doc, err := Parse([]byte(refDoc))
	require.NoError(t, err)

	t.Run("direct", func(t *testing.T) {
		n, err := doc.Resolve("#/components/schemas/Id")
		require.NoError(t, err)
		assert.Equal(t, "integer", Field(n, "type").Value)
	})

	t.Run("chained", func(t *testing.T) {
		n, err := doc.Resolve("#/components/parameters/Alias")
		require.NoError(t, err)
		assert.Equal(t, "id", Field(n, "name").Value)
	})

	t.Run("cached", func(t *testing.T) {
		first, err := doc.Resolve("#/components/parameters/WidgetId")
		require.NoError(t, err)
		second, err := doc.Resolve("#/components/parameters/WidgetId")
		require.NoError(t, err)
		assert.Same(t, first, second)
	})

	t.Run("escaped tokens", func(t *testing.T) {
		n, err := doc.Resolve("#/components/schemas/a~1b")
		require.NoError(t, err)
		assert.Equal(t, "string", Field(n, "type").Value)

		n, err = doc.Resolve("#/components/schemas/t~0n")
		require.NoError(t, err)
		assert.Equal(t, "boolean", Field(n, "type").Value)
	})

	t.Run("path key", func(t *testing.T) {
		n, err := doc.Resolve("#/paths/~1widgets~1%7Bid%7D/get")
		require.NoError(t, err)
		require.NotNil(t, Field(n, "parameters"))
	})

	t.Run("array index", func(t *testing.T) {
		n, err := doc.Resolve("#/paths/~1widgets~1{id}/get/parameters/0")
		require.NoError(t, err)
		assert.Equal(t, "id", Field(n, "name").Value)

		_, err = doc.Resolve("#/paths/~1widgets~1{id}/get/parameters/7")
		require.ErrorIs(t, err, apperrors.ErrReference)
	})

	t.Run("circular chain", func(t *testing.T) {
		_, err := doc.Resolve("#/components/schemas/LoopA")
		require.ErrorIs(t, err, apperrors.ErrCircularReference)

		var refErr *apperrors.ReferenceError
		require.True(t, errors.As(err, &refErr))
		assert.True(t, refErr.IsCircular)
		assert.Equal(t, []string{
			"#/components/schemas/LoopA",
			"#/components/schemas/LoopB",
			"#/components/schemas/LoopA",
		}, refErr.Chain)
	})

	t.Run("external", func(t *testing.T) {
		_, err := doc.Resolve("other.yaml#/components/schemas/Id")
		require.ErrorIs(t, err, apperrors.ErrReference)
	})
}

func TestDeref(t *testing.T) {
	doc, err := Parse([]byte(refDoc))
	require.NoError(t, err)

	param, err := doc.Resolve("#/paths/~1widgets~1{id}/get/parameters/0")
	require.NoError(t, err)

	n, ref, err := doc.Deref(Field(param, "schema"))
	require.NoError(t, err)
	assert.Equal(t, "#/components/schemas/Id", ref)
	assert.Equal(t, "integer", Field(n, "type").Value)

	plain := Field(n, "type")
	same, ref, err := doc.Deref(plain)
	require.NoError(t, err)
	assert.Empty(t, ref)
	assert.Same(t, plain, same)
}

func TestMaterialize(t *testing.T) {
	doc, err := Parse([]byte(refDoc))
	require.NoError(t, err)

	t.Run("inlines references", func(t *testing.T) {
		n, err := doc.Resolve("#/components/parameters/WidgetId")
		require.NoError(t, err)
		v, err := doc.Materialize(n)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{
			"name":     "id",
			"in":       "path",
			"required": true,
			"schema":   map[string]any{"type": "integer", "minimum": int64(1)},
		}, v)
	})

	t.Run("recursive schema keeps reference", func(t *testing.T) {
		n, err := doc.Resolve("#/components/schemas/Node")
		require.NoError(t, err)
		v, err := doc.Materialize(n)
		require.NoError(t, err)

		child := v.(map[string]any)["properties"].(map[string]any)["child"].(map[string]any)
		grandchild := child["properties"].(map[string]any)["child"]
		assert.Equal(t, map[string]any{"$ref": "#/components/schemas/Node"}, grandchild)
	})

	t.Run("sibling keys override target", func(t *testing.T) {
		n := Field(Field(Field(doc.Root(), "components"), "schemas"), "Described")
		v, err := doc.Materialize(n)
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"type": "integer", "minimum": int64(1), "description": "widget id"}, v)

		target, err := doc.Resolve("#/components/schemas/Id")
		require.NoError(t, err)
		original, err := doc.Materialize(target)
		require.NoError(t, err)
		assert.NotContains(t, original, "description")
	})

	t.Run("unresolved reference fails", func(t *testing.T) {
		n := Field(Field(Field(doc.Root(), "components"), "schemas"), "Dangling")
		_, err := doc.Materialize(n)
		require.ErrorIs(t, err, apperrors.ErrReference)
	})
}

func TestParseYAML(t *testing.T) {
	doc, err := Parse([]byte("openapi: 3.1.0\ninfo:\n  title: Widgets\n  version: \"1\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "Widgets", Field(Field(doc.Root(), "info"), "title").Value)
}
