// Package payload turns free text into concrete HTTP requests against a
// configured document. Candidate operations come from the retriever; a chat
// model first picks which of them to call and then fills in each call's
// arguments, one forced tool call at a time.
package payload

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/cuecode/cuecode/internal/apperrors"
	"github.com/cuecode/cuecode/internal/loader"
	"github.com/cuecode/cuecode/internal/model"
	"github.com/cuecode/cuecode/internal/retrieve"
	"github.com/cuecode/cuecode/internal/store"
	"github.com/cuecode/cuecode/internal/templates"
	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

type Config struct {
	Endpoint string
	Model    string
	APIKey   string
}

// Payload is one generated call.
type Payload struct {
	ToolName      string          `json:"tool_name"`
	Arguments     json.RawMessage `json:"arguments"`
	Verb          string          `json:"verb"`
	PathID        uuid.UUID       `json:"path_id"`
	PathTemplated string          `json:"path"`
	Similarity    float64         `json:"similarity"`
	Sentence      string          `json:"sentence,omitempty"`
	Request       *Request        `json:"request,omitempty"`

	// ValidationErrors lists the rules the generated request breaks. The
	// payload is still returned so the caller can decide.
	ValidationErrors []string `json:"validation_errors,omitempty"`
}

type Generator struct {
	client    *openai.Client
	model     string
	retriever *retrieve.Retriever
	store     store.Store
	prompts   templates.Engine
	validate  bool
	logger    *zap.Logger
}

type Option func(*Generator)

func WithTemplates(e templates.Engine) Option {
	return func(g *Generator) {
		g.prompts = e
	}
}

// WithRequestValidation toggles checking generated requests against the
// stored document. It is on by default.
func WithRequestValidation(enabled bool) Option {
	return func(g *Generator) {
		g.validate = enabled
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Generator) {
		g.logger = logger
	}
}

func NewGenerator(cfg Config, retriever *retrieve.Retriever, st store.Store, opts ...Option) (*Generator, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("chat endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("chat model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	g := &Generator{
		client:    openai.NewClientWithConfig(clientConfig),
		model:     cfg.Model,
		retriever: retriever,
		store:     st,
		validate:  true,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.prompts == nil {
		engine, err := templates.New("")
		if err != nil {
			return nil, err
		}
		g.prompts = engine
	}
	g.logger = g.logger.Named("payload")
	return g, nil
}

// Generate retrieves candidate operations for text and asks the chat model
// for one payload per operation it decides to call.
func (g *Generator) Generate(ctx context.Context, configurationID uuid.UUID, text string) ([]Payload, error) {
	candidates, err := g.retriever.Retrieve(ctx, configurationID, text)
	if err != nil {
		return nil, err
	}

	tools, err := buildTools(candidates.ToolCalls)
	if err != nil {
		return nil, err
	}

	system, err := g.prompts.Execute(templates.PayloadSystem, nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: text},
		},
		Tools:      tools,
		ToolChoice: "required",
	})
	if err != nil {
		return nil, fmt.Errorf("selecting operations: %w", err)
	}

	var selected []string
	for _, choice := range resp.Choices {
		for _, tc := range choice.Message.ToolCalls {
			selected = append(selected, tc.Function.Name)
		}
	}
	g.logger.Debug("Model selected operations", zap.Strings("tools", selected))

	spec := &specCache{store: g.store, id: configurationID}
	var payloads []Payload
	for _, name := range selected {
		ref, ok := candidates.Lookup[name]
		if !ok {
			g.logger.Warn("Model called an unknown tool", zap.String("tool", name))
			continue
		}
		tool, ok := findTool(tools, name)
		if !ok {
			g.logger.Warn("Tool has no stored descriptor", zap.String("tool", name))
			continue
		}

		p, err := g.generateOne(ctx, text, tool, ref)
		if err != nil {
			g.logger.Warn("Skipping payload", zap.String("tool", name), zap.Error(err))
			continue
		}
		if err := g.attachRequest(ctx, spec, p); err != nil {
			g.logger.Warn("Could not build request", zap.String("tool", name), zap.Error(err))
		}
		payloads = append(payloads, *p)
	}

	if len(payloads) == 0 {
		return nil, &apperrors.NoMatchingOperationsError{
			ConfigurationID: configurationID.String(),
			Text:            strings.TrimSpace(text),
		}
	}
	return payloads, nil
}

// generateOne forces a single tool call so the model only has to fill in
// arguments for an operation already chosen.
func (g *Generator) generateOne(ctx context.Context, text string, tool openai.Tool, ref retrieve.OperationRef) (*Payload, error) {
	prompt, err := g.prompts.Execute(templates.PayloadStructured, struct{ Text string }{Text: text})
	if err != nil {
		return nil, err
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Tools: []openai.Tool{tool},
		ToolChoice: openai.ToolChoice{
			Type:     openai.ToolTypeFunction,
			Function: openai.ToolFunction{Name: tool.Function.Name},
		},
	})
	if err != nil {
		return nil, err
	}

	var args string
	for _, choice := range resp.Choices {
		for _, tc := range choice.Message.ToolCalls {
			if tc.Function.Name == tool.Function.Name {
				args = tc.Function.Arguments
				break
			}
		}
	}
	if args == "" {
		return nil, errors.New("model returned no arguments")
	}
	if !json.Valid([]byte(args)) {
		return nil, fmt.Errorf("model returned malformed arguments: %q", args)
	}

	path, err := g.store.GetPath(ctx, ref.PathID)
	if err != nil {
		return nil, fmt.Errorf("loading path %s: %w", ref.PathID, err)
	}

	return &Payload{
		ToolName:      tool.Function.Name,
		Arguments:     json.RawMessage(args),
		Verb:          ref.Verb,
		PathID:        ref.PathID,
		PathTemplated: path.Templated,
		Similarity:    ref.Similarity,
		Sentence:      ref.Sentence,
	}, nil
}

func (g *Generator) attachRequest(ctx context.Context, spec *specCache, p *Payload) error {
	loaded, err := spec.load(ctx)
	if err != nil {
		return err
	}

	pathItem, op := findOperation(loaded.Document, p.PathTemplated, p.Verb)
	if op == nil {
		return fmt.Errorf("operation %s %s not found in stored document", p.Verb, p.PathTemplated)
	}
	server := loaded.Document.EffectiveServers(pathItem, op)[0]

	var args map[string]any
	if err := json.Unmarshal(p.Arguments, &args); err != nil {
		return fmt.Errorf("decoding arguments: %w", err)
	}

	req, err := BuildRequest(model.ResolveServerURL(loaded.Document.BaseURL, server.URL), op, args)
	if err != nil {
		return err
	}
	p.Request = req

	if !g.validate {
		return nil
	}
	v, err := spec.validator()
	if err != nil {
		return err
	}
	httpReq, err := req.HTTPRequest(ctx)
	if err != nil {
		return err
	}
	var reqErr *RequestError
	if err := v.Validate(httpReq); errors.As(err, &reqErr) {
		p.ValidationErrors = reqErr.Details()
		g.logger.Info("Generated request does not conform",
			zap.String("tool", p.ToolName),
			zap.Strings("errors", p.ValidationErrors))
	}
	return nil
}

// specCache loads the stored document at most once per Generate call.
type specCache struct {
	store  store.Store
	id     uuid.UUID
	result *loader.Result
	v      *RequestValidator
}

func (c *specCache) load(ctx context.Context) (*loader.Result, error) {
	if c.result != nil {
		return c.result, nil
	}
	spec, err := c.store.GetSpecification(ctx, c.id)
	if err != nil {
		return nil, fmt.Errorf("loading specification: %w", err)
	}
	result, err := loader.Load([]byte(spec.Text), loader.WithBaseURL(spec.BaseURL))
	if err != nil {
		return nil, err
	}
	c.result = result
	return result, nil
}

func (c *specCache) validator() (*RequestValidator, error) {
	if c.v != nil {
		return c.v, nil
	}
	v, err := NewRequestValidator(c.result.RawData)
	if err != nil {
		return nil, err
	}
	c.v = v
	return v, nil
}

func findOperation(doc *model.Document, path, verb string) (*model.PathItem, *model.Operation) {
	for _, ref := range doc.Operations() {
		if ref.Path.Path == path && strings.EqualFold(string(ref.Operation.Method), verb) {
			return ref.Path, ref.Operation
		}
	}
	return nil, nil
}

func buildTools(descriptors []json.RawMessage) ([]openai.Tool, error) {
	tools := make([]openai.Tool, 0, len(descriptors))
	for _, raw := range descriptors {
		var desc struct {
			Function struct {
				Name        string          `json:"name"`
				Description string          `json:"description"`
				Parameters  json.RawMessage `json:"parameters"`
			} `json:"function"`
		}
		if err := json.Unmarshal(raw, &desc); err != nil {
			return nil, fmt.Errorf("decoding stored tool call: %w", err)
		}
		params := desc.Function.Parameters
		if len(params) == 0 {
			params = json.RawMessage(`{"type":"object"}`)
		}
		tools = append(tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        desc.Function.Name,
				Description: desc.Function.Description,
				Parameters:  params,
			},
		})
	}
	return tools, nil
}

func findTool(tools []openai.Tool, name string) (openai.Tool, bool) {
	for _, t := range tools {
		if t.Function != nil && t.Function.Name == name {
			return t, true
		}
	}
	return openai.Tool{}, false
}
