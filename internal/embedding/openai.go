package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// Config holds the settings for an OpenAI-compatible embeddings endpoint.
type Config struct {
	Endpoint string // Base URL, e.g. "http://localhost:11434/v1"
	Model    string
	APIKey   string // Optional for local endpoints
}

// OpenAIEmbedder calls the /embeddings endpoint of OpenAI, Ollama, vLLM or
// any other server speaking the same protocol.
type OpenAIEmbedder struct {
	client   *openai.Client
	endpoint string
	model    string
	logger   *zap.Logger
}

var _ Embedder = (*OpenAIEmbedder)(nil)

func NewOpenAIEmbedder(cfg *Config, logger *zap.Logger) (*OpenAIEmbedder, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &OpenAIEmbedder{
		client:   openai.NewClientWithConfig(clientConfig),
		endpoint: cfg.Endpoint,
		model:    cfg.Model,
		logger:   logger.Named("embedding"),
	}, nil
}

func (e *OpenAIEmbedder) Model() string { return e.model }

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}
	return vectors[0], nil
}

// EmbedBatch returns the vectors in input order; the response is reordered
// by its index field since servers are not required to preserve order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: texts,
	})
	if err != nil {
		return nil, fmt.Errorf("create embeddings: %w", err)
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		idx := d.Index
		if idx < 0 || idx >= len(out) || out[idx] != nil {
			// Malformed indexes fall back to response order.
			idx = i
		}
		out[idx] = d.Embedding
	}

	e.logger.Debug("embedded batch",
		zap.String("model", e.model),
		zap.Int("inputs", len(texts)),
		zap.Int("outputs", len(out)),
		zap.Int("total_tokens", resp.Usage.TotalTokens))

	return out, nil
}
