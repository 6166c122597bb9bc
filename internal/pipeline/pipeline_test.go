package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/embedding"
	"github.com/cuecode/cuecode/internal/entity"
	"github.com/cuecode/cuecode/internal/metrics"
	"github.com/cuecode/cuecode/internal/store"
	"github.com/cuecode/cuecode/internal/validate"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const widgetsSpec = `{
  "openapi": "3.1.0",
  "info": {"title": "Widgets", "version": "1.0.0"},
  "servers": [{"url": "https://api.example.com"}],
  "paths": {
    "/widgets/{id}": {
      "get": {
        "description": "Fetch a widget.",
        "parameters": [{"name": "id", "in": "path", "required": true, "schema": {"type": "string"}}],
        "responses": {"200": {"description": "OK"}}
      }
    },
    "/widgets": {
      "post": {
        "summary": "Create a widget",
        "requestBody": {"required": true, "content": {"application/json": {"schema": {"$ref": "#/components/schemas/Widget"}}}},
        "responses": {"201": {"description": "Created"}}
      }
    }
  },
  "components": {"schemas": {"Widget": {"type": "object", "properties": {"name": {"type": "string"}}}}}
}`

var configID = uuid.MustParse("7d4f3c2a-1b0e-4f8d-9c6b-5a4e3d2c1b0a")

func newPipeline(t *testing.T, st store.Store, e embedding.Embedder, opts ...Option) *Pipeline {
	t.Helper()
	opts = append([]Option{WithValidator(validate.New(validate.WithOpenAPISchema(false)))}, opts...)
	p, err := New(st, e, opts...)
	require.NoError(t, err)
	return p
}

func TestRunConfigurationPipeline(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil)
	emb := embedding.NewMock()
	reg := prometheus.NewRegistry()
	p := newPipeline(t, st, emb, WithMetrics(metrics.New(reg)))

	result, err := p.RunConfigurationPipeline(ctx, []byte(widgetsSpec), configID, "")
	require.NoError(t, err)

	assert.Equal(t, configID, result.SpecificationID)
	assert.Equal(t, entity.ServerID(configID, "https://api.example.com"), result.ServerID)
	require.Len(t, result.Paths, 2)
	require.Len(t, result.Operations, 2)
	assert.Equal(t, 1, emb.EmbedBatchCalls)

	get := result.Operations[0]
	assert.Equal(t, "get_widgets_-id-", get.ToolName)

	var desc map[string]any
	require.NoError(t, json.Unmarshal(get.ToolCall, &desc))
	assert.Equal(t, "function", desc["type"])
	params := desc["function"].(map[string]any)["parameters"].(map[string]any)
	assert.Equal(t, []any{"id_in_path"}, params["required"])

	post := result.Operations[1]
	require.NoError(t, json.Unmarshal(post.ToolCall, &desc))
	params = desc["function"].(map[string]any)["parameters"].(map[string]any)
	assert.Equal(t, []any{"requestBody"}, params["required"])

	// Verb sentence plus description or summary per operation.
	require.Len(t, result.Prompts, 4)
	for _, sp := range result.Prompts {
		assert.Len(t, sp.Embedding, embedding.DefaultDimensions)
	}

	matches, err := st.SearchPrompts(ctx, configID, queryVector(), 10)
	require.NoError(t, err)
	assert.Len(t, matches, 4)

	path, err := st.GetPath(ctx, get.PathID)
	require.NoError(t, err)
	assert.Equal(t, "/widgets/{id}", path.Templated)

	assert.Equal(t, 1.0, runs(t, reg, metrics.OutcomeSuccess))
}

func TestRunConfigurationPipelineIsIdempotent(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil)
	p := newPipeline(t, st, embedding.NewMock())

	first, err := p.RunConfigurationPipeline(ctx, []byte(widgetsSpec), configID, "")
	require.NoError(t, err)
	second, err := p.RunConfigurationPipeline(ctx, []byte(widgetsSpec), configID, "")
	require.NoError(t, err)

	assert.Equal(t, first.Paths, second.Paths)
	assert.Equal(t, first.Operations, second.Operations)
	assert.Equal(t, first.Prompts, second.Prompts)

	matches, err := st.SearchPrompts(ctx, configID, queryVector(), 10)
	require.NoError(t, err)
	assert.Len(t, matches, 4)
}

func TestRunConfigurationPipelineReplacesEarlierDocument(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil)
	p := newPipeline(t, st, embedding.NewMock())

	v1 := `{
  "openapi": "3.1.0",
  "servers": [{"url": "https://api.example.com"}],
  "paths": {
    "/old": {"delete": {"description": "Remove every record forever.", "responses": {"204": {"description": "Gone"}}}},
    "/w": {"get": {"description": "Old wording.", "responses": {"200": {"description": "OK"}}}}
  }
}`
	v2 := `{
  "openapi": "3.1.0",
  "servers": [{"url": "https://api.example.com"}],
  "paths": {
    "/w": {"get": {"description": "New wording.", "responses": {"200": {"description": "OK"}}}}
  }
}`

	first, err := p.RunConfigurationPipeline(ctx, []byte(v1), configID, "")
	require.NoError(t, err)
	require.Len(t, first.Prompts, 4)

	second, err := p.RunConfigurationPipeline(ctx, []byte(v2), configID, "")
	require.NoError(t, err)
	require.Len(t, second.Operations, 1)
	require.Len(t, second.Prompts, 2)
	for _, sp := range second.Prompts {
		assert.NotEqual(t, "Old wording.", sp.Text)
		assert.NotEqual(t, "Remove every record forever.", sp.Text)
	}

	matches, err := st.SearchPrompts(ctx, configID, queryVector(), 10)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, "get_w", m.ToolName)
	}

	oldPath := entity.PathID(configID, "/old")
	_, err = st.GetPath(ctx, oldPath)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetOperation(ctx, entity.OperationID(oldPath, "DELETE"))
	require.ErrorIs(t, err, store.ErrNotFound)

	spec, err := st.GetSpecification(ctx, configID)
	require.NoError(t, err)
	assert.Equal(t, v2, spec.Text)
}

func TestRunConfigurationPipelineRecordsBaseURL(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		want    string
	}{
		{name: "derived from the document", want: "https://api.example.com"},
		{name: "caller supplied", baseURL: "https://base.example.com", want: "https://base.example.com"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore(nil)
			p := newPipeline(t, st, embedding.NewMock())

			_, err := p.RunConfigurationPipeline(ctx, []byte(widgetsSpec), configID, tt.baseURL)
			require.NoError(t, err)

			spec, err := st.GetSpecification(ctx, configID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, spec.BaseURL)
		})
	}
}

func TestRunConfigurationPipelineRollsBackOnShortEmbeddingBatch(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil)
	emb := embedding.NewMock()
	emb.EmbedBatchFunc = func(ctx context.Context, texts []string) ([][]float32, error) {
		out := make([][]float32, len(texts)-1)
		for i := range out {
			out[i] = make([]float32, embedding.DefaultDimensions)
		}
		return out, nil
	}
	reg := prometheus.NewRegistry()
	p := newPipeline(t, st, emb, WithMetrics(metrics.New(reg)))

	result, err := p.RunConfigurationPipeline(ctx, []byte(widgetsSpec), configID, "")
	require.ErrorIs(t, err, apperrors.ErrInvariant)
	assert.Nil(t, result)

	_, err = st.GetPath(ctx, entity.PathID(configID, "/widgets"))
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = st.GetOperation(ctx, entity.OperationID(entity.PathID(configID, "/widgets"), "POST"))
	require.ErrorIs(t, err, store.ErrNotFound)

	assert.Equal(t, 1.0, runs(t, reg, metrics.OutcomeError))
}

func TestRunConfigurationPipelineRejectsInvalidDocuments(t *testing.T) {
	tests := []struct {
		name   string
		spec   string
		target error
	}{
		{
			name:   "malformed",
			spec:   `{"openapi": `,
			target: apperrors.ErrParse,
		},
		{
			name:   "two servers",
			spec:   `{"openapi": "3.1.0", "servers": [{"url": "https://a.example.com"}, {"url": "https://b.example.com"}], "paths": {}}`,
			target: apperrors.ErrServerCount,
		},
		{
			name:   "relative server without base url",
			spec:   `{"openapi": "3.1.0", "servers": [{"url": "/v1"}], "paths": {}}`,
			target: apperrors.ErrServerURL,
		},
		{
			name:   "missing parameter name",
			spec:   `{"openapi": "3.1.0", "paths": {"/a": {"get": {"parameters": [{"in": "query", "schema": {}}]}}}}`,
			target: apperrors.ErrSchemaViolation,
		},
		{
			name:   "dangling reference",
			spec:   `{"openapi": "3.1.0", "paths": {"/a": {"get": {"parameters": [{"$ref": "#/components/parameters/Missing"}]}}}}`,
			target: apperrors.ErrReference,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			st := store.NewMemoryStore(nil)
			emb := embedding.NewMock()
			reg := prometheus.NewRegistry()
			p := newPipeline(t, st, emb, WithMetrics(metrics.New(reg)))

			_, err := p.RunConfigurationPipeline(ctx, []byte(tt.spec), configID, "")
			require.ErrorIs(t, err, tt.target)
			assert.Equal(t, 0, emb.EmbedBatchCalls)
			assert.Equal(t, 1.0, runs(t, reg, metrics.OutcomeInvalid))
		})
	}
}

func TestRunConfigurationPipelineUsesBaseURLServer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore(nil)
	p := newPipeline(t, st, embedding.NewMock())

	result, err := p.RunConfigurationPipeline(ctx,
		[]byte(`{"openapi": "3.1.0", "paths": {"/ping": {"get": {"parameters": [{"name": "q", "in": "query", "schema": []}]}}}}`),
		configID, "https://base.example.com")
	require.NoError(t, err)
	assert.Equal(t, entity.ServerID(configID, "https://base.example.com"), result.ServerID)
}

func TestRunConfigurationPipelineRequiresConfigurationID(t *testing.T) {
	p := newPipeline(t, store.NewMemoryStore(nil), embedding.NewMock())
	_, err := p.RunConfigurationPipeline(context.Background(), []byte(widgetsSpec), uuid.Nil, "")
	require.Error(t, err)
}

// queryVector matches the constant vectors the default mock returns.
func queryVector() []float32 {
	v := make([]float32, embedding.DefaultDimensions)
	v[0] = 1
	return v
}

func runs(t *testing.T, reg *prometheus.Registry, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() != "cuecode_pipeline_runs_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				if l.GetName() == "outcome" && l.GetValue() == outcome {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
