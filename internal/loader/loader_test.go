package loader

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetsSpec = `{
  "openapi": "3.1.0",
  "info": {"title": "Widgets", "version": "1.0.0"},
  "servers": [{"url": "https://api.example.com"}],
  "security": [{}, {"apiKey": []}],
  "paths": {
    "/widgets/{id}": {
      "parameters": [
        {"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}
      ],
      "get": {
        "operationId": "getWidget",
        "summary": "Fetch a widget",
        "x-cuecode-prompts": ["Look up one widget"],
        "parameters": [
          {"name": "verbose", "in": "query", "schema": [], "x-cuecode-prompt": "Include details"}
        ],
        "responses": {"200": {"description": "ok"}}
      },
      "DELETE": {"x-cuecode-exclude": true, "responses": {"204": {"description": "gone"}}}
    },
    "/widgets": {
      "$ref": "#/components/pathItems/Widgets"
    }
  },
  "components": {
    "pathItems": {
      "Widgets": {
        "post": {
          "description": "Create a widget. The widget is stored.",
          "requestBody": {
            "required": true,
            "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Widget"}}}
          },
          "responses": {"201": {"description": "created"}}
        }
      }
    },
    "schemas": {
      "Widget": {"type": "object", "x-cuecode-prompt": "gadget", "properties": {"name": {"type": "string"}}}
    },
    "securitySchemes": {
      "apiKey": {"type": "apiKey", "name": "X-Key", "in": "header"},
      "bearer": {"type": "http", "scheme": "bearer", "bearerFormat": "JWT"},
      "oauth": {"type": "oauth2", "flows": {"clientCredentials": {"tokenUrl": "https://auth.example.com/token", "scopes": {"read": "read"}}}},
      "oidc": {"type": "openIdConnect", "openIdConnectUrl": "https://auth.example.com/.well-known"}
    }
  }
}`

func TestLoad(t *testing.T) {
	result, err := Load([]byte(widgetsSpec))
	require.NoError(t, err)
	require.Equal(t, "3.1.0", result.Version)
	require.Empty(t, result.Warnings)
	require.NotEmpty(t, result.RawData)

	doc := result.Document
	assert.Equal(t, "Widgets", doc.Info.Title)
	require.Len(t, doc.Servers, 1)
	assert.Equal(t, "https://api.example.com", doc.Servers[0].URL)

	// Empty security requirements are dropped by normalization.
	require.Len(t, doc.SecurityRequirements, 1)
	assert.Equal(t, "apiKey", doc.SecurityRequirements[0].Schemes[0].Name)

	require.Len(t, doc.Paths, 2)
	assert.Equal(t, "/widgets/{id}", doc.Paths[0].Path)
	assert.Equal(t, "/widgets", doc.Paths[1].Path)

	item := doc.Paths[0]
	require.Len(t, item.Operations, 2)
	get := item.Operations[0]
	assert.Equal(t, model.MethodGet, get.Method)
	assert.Equal(t, "getWidget", get.OperationID)
	assert.Equal(t, []string{"Look up one widget"}, get.Extensions.Prompts)

	del := item.Operations[1]
	assert.Equal(t, model.MethodDelete, del.Method)
	assert.True(t, del.Extensions.Exclude)

	require.Len(t, get.Parameters, 2)
	id := get.Parameters[0]
	assert.Equal(t, "id", id.Name)
	assert.Equal(t, model.LocationPath, id.In)
	assert.True(t, id.Required)
	sv, ok := id.Value.(model.SchemaValue)
	require.True(t, ok)
	assert.Equal(t, "simple", sv.Style)
	assert.False(t, sv.Explode)
	assert.Equal(t, map[string]any{"type": "string"}, sv.Schema.Value)

	verbose := get.Parameters[1]
	assert.Equal(t, "Include details", verbose.Extensions.Prompt)
	sv, ok = verbose.Value.(model.SchemaValue)
	require.True(t, ok)
	assert.Equal(t, "form", sv.Style)
	assert.True(t, sv.Explode)
	assert.Equal(t, map[string]any{}, sv.Schema.Value)

	post := doc.Paths[1].Operations[0]
	assert.Equal(t, model.MethodPost, post.Method)
	require.NotNil(t, post.RequestBody)
	assert.True(t, post.RequestBody.Required)
	require.Len(t, post.RequestBody.Content, 1)
	body := post.RequestBody.Content[0].Schema
	assert.Equal(t, "Widget", body.Name)
	assert.Equal(t, "#/components/schemas/Widget", body.Ref)
	assert.Equal(t, "object", body.Type)

	require.Len(t, doc.Schemas, 1)
	assert.Equal(t, "gadget", doc.Schemas[0].Extensions.Prompt)

	require.Len(t, doc.Security, 4)
	assert.Equal(t, model.APIKeyScheme{ParamName: "X-Key", In: model.LocationHeader}, doc.Security[0].Value)
	assert.Equal(t, "http", doc.Security[1].Type())
	assert.Equal(t, "oauth2", doc.Security[2].Type())
	assert.Equal(t, model.OpenIDConnectScheme{URL: "https://auth.example.com/.well-known"}, doc.Security[3].Value)
}

func TestLoadServers(t *testing.T) {
	tests := []struct {
		name    string
		spec    string
		baseURL string
		want    []string
	}{
		{
			name:    "no servers falls back to base url",
			spec:    `{"openapi": "3.1.0", "paths": {"/a": {"get": {}}}}`,
			baseURL: "https://base.example.com",
			want:    []string{"https://base.example.com"},
		},
		{
			name: "empty array counts as absent",
			spec: `{"openapi": "3.1.0", "servers": [], "paths": {"/a": {"get": {}}}}`,
			want: []string{"/"},
		},
		{
			name:    "relative server resolved against base url",
			spec:    `{"openapi": "3.1.0", "servers": [{"url": "/v2"}], "paths": {"/a": {"get": {}}}}`,
			baseURL: "https://base.example.com",
			want:    []string{"https://base.example.com/v2"},
		},
		{
			name: "variables substituted with defaults",
			spec: `{"openapi": "3.1.0", "servers": [{"url": "https://{env}.example.com", "variables": {"env": {"default": "prod"}}}], "paths": {"/a": {"get": {}}}}`,
			want: []string{"https://prod.example.com"},
		},
		{
			name: "operation overrides document",
			spec: `{"openapi": "3.1.0", "servers": [{"url": "https://doc.example.com"}], "paths": {"/a": {"get": {"servers": [{"url": "https://op.example.com"}]}}}}`,
			want: []string{"https://op.example.com"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := Load([]byte(tt.spec), WithBaseURL(tt.baseURL))
			require.NoError(t, err)
			doc := result.Document
			p := &doc.Paths[0]
			var got []string
			for _, s := range doc.EffectiveServers(p, &p.Operations[0]) {
				got = append(got, s.URL)
			}
			require.Equal(t, tt.want, got)
		})
	}
}

func TestLoadSchemaViolations(t *testing.T) {
	tests := []struct {
		name      string
		spec      string
		wantPath  string
		wantField string
	}{
		{
			name:      "missing openapi",
			spec:      `{"paths": {}}`,
			wantField: "openapi",
		},
		{
			name:      "parameter without name",
			spec:      `{"openapi": "3.1.0", "paths": {"/a": {"get": {"parameters": [{"in": "query", "schema": {}}]}}}}`,
			wantPath:  "paths./a.get.parameters[0]",
			wantField: "name",
		},
		{
			name:      "parameter with schema and content",
			spec:      `{"openapi": "3.1.0", "paths": {"/a": {"get": {"parameters": [{"name": "q", "in": "query", "schema": {}, "content": {"text/plain": {}}}]}}}}`,
			wantPath:  "paths./a.get.parameters[0]",
			wantField: "schema",
		},
		{
			name:      "parameter with neither schema nor content",
			spec:      `{"openapi": "3.1.0", "paths": {"/a": {"get": {"parameters": [{"name": "q", "in": "query"}]}}}}`,
			wantPath:  "paths./a.get.parameters[0]",
			wantField: "schema",
		},
		{
			name:      "server without url",
			spec:      `{"openapi": "3.1.0", "servers": [{"description": "prod"}]}`,
			wantPath:  "servers[0]",
			wantField: "url",
		},
		{
			name:      "request body without content",
			spec:      `{"openapi": "3.1.0", "paths": {"/a": {"post": {"requestBody": {"required": true}}}}}`,
			wantPath:  "paths./a.post.requestBody",
			wantField: "content",
		},
		{
			name:      "wrong-shaped exclude flag",
			spec:      `{"openapi": "3.1.0", "paths": {"/a": {"get": {"x-cuecode-exclude": "maybe"}}}}`,
			wantPath:  "paths./a.get",
			wantField: "x-cuecode-exclude",
		},
		{
			name:      "unknown security scheme type",
			spec:      `{"openapi": "3.1.0", "components": {"securitySchemes": {"s": {"type": "magic"}}}}`,
			wantPath:  "components.securitySchemes.s",
			wantField: "type",
		},
		{
			name:      "unsupported version",
			spec:      `{"openapi": "2.0"}`,
			wantField: "openapi",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.spec))
			require.ErrorIs(t, err, apperrors.ErrSchemaViolation)

			var sv *apperrors.SchemaViolationError
			require.True(t, errors.As(err, &sv))
			assert.Equal(t, tt.wantPath, sv.Path)
			assert.Equal(t, tt.wantField, sv.Field)
		})
	}
}

func TestLoadContentParameter(t *testing.T) {
	spec := `{"openapi": "3.1.0", "paths": {"/search": {"get": {"parameters": [
		{"name": "filter", "in": "query", "content": {"application/json": {"schema": {"type": "object"}}}}
	]}}}}`

	result, err := Load([]byte(spec))
	require.NoError(t, err)

	p := result.Document.Paths[0].Operations[0].Parameters[0]
	cv, ok := p.Value.(model.ContentValue)
	require.True(t, ok)
	require.Len(t, cv.Content, 1)
	assert.Equal(t, "application/json", cv.Content[0].MediaType)
	assert.Equal(t, "object", p.ValueSchema().Type)
}

func TestLoadUnsupportedVerbKept(t *testing.T) {
	spec := `{"openapi": "3.1.0", "paths": {"/a": {"connect": {}, "get": {}, "Get": {}}}}`

	result, err := Load([]byte(spec))
	require.NoError(t, err)

	ops := result.Document.Paths[0].Operations
	require.Len(t, ops, 3)
	assert.Equal(t, model.MethodGet, ops[0].Method)
	assert.Equal(t, model.MethodGet, ops[1].Method)
	assert.Equal(t, model.Method("CONNECT"), ops[2].Method)
}

func TestLoadSkipsPathsExtensions(t *testing.T) {
	tests := []struct {
		name string
		ext  string
	}{
		{name: "scalar", ext: `"x-internal": true`},
		{name: "object", ext: `"x-meta": {"owner": {"description": "Team widgets"}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := `{"openapi": "3.1.0", "paths": {` + tt.ext + `, "/a": {"get": {"summary": "A"}}}}`

			result, err := Load([]byte(spec))
			require.NoError(t, err)
			require.Len(t, result.Document.Paths, 1)
			assert.Equal(t, "/a", result.Document.Paths[0].Path)
			require.Len(t, result.Document.Paths[0].Operations, 1)
			assert.Equal(t, model.MethodGet, result.Document.Paths[0].Operations[0].Method)
		})
	}
}

func TestLoadAliases(t *testing.T) {
	spec := "openapi: 3.1.0\n" +
		"x-shared: &id {name: id, in: path, required: true, schema: []}\n" +
		"paths:\n" +
		"  /a/{id}:\n" +
		"    get: {parameters: [*id]}\n" +
		"  /b/{id}:\n" +
		"    get: {parameters: [*id]}\n"

	result, err := Load([]byte(spec))
	require.NoError(t, err)
	require.Len(t, result.Document.Paths, 2)
	for _, p := range result.Document.Paths {
		require.Len(t, p.Operations[0].Parameters, 1)
		assert.Equal(t, "id", p.Operations[0].Parameters[0].Name)
	}

	var bomb strings.Builder
	bomb.WriteString("openapi: 3.1.0\npaths: {}\nx-l0: &l0 [a, a, a, a, a, a, a, a, a, a]\n")
	for i := 1; i <= 7; i++ {
		fmt.Fprintf(&bomb, "x-l%d: &l%d [", i, i)
		for j := range 10 {
			if j > 0 {
				bomb.WriteString(", ")
			}
			fmt.Fprintf(&bomb, "*l%d", i-1)
		}
		bomb.WriteString("]\n")
	}

	_, err = Load([]byte(bomb.String()))
	require.ErrorIs(t, err, apperrors.ErrParse)
}

func TestLoadReferenceErrors(t *testing.T) {
	spec := `{"openapi": "3.1.0", "paths": {"/a": {"get": {"parameters": [{"$ref": "#/components/parameters/Missing"}]}}}}`

	_, err := Load([]byte(spec))
	require.ErrorIs(t, err, apperrors.ErrReference)
}

func TestLoadWarnsOn30(t *testing.T) {
	result, err := Load([]byte(`{"openapi": "3.0.3", "paths": {}}`))
	require.NoError(t, err)
	require.Len(t, result.Warnings, 1)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "spec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("openapi: 3.1.0\npaths:\n  /a:\n    get:\n      summary: A\n"), 0644))

	result, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "A", result.Document.Paths[0].Operations[0].Summary)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
