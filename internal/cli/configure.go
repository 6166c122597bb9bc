package cli

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/cuecode/cuecode/internal/derive"
	"github.com/cuecode/cuecode/internal/embedding"
	"github.com/cuecode/cuecode/internal/pipeline"
	"github.com/cuecode/cuecode/internal/store"
	"github.com/cuecode/cuecode/internal/templates"
	"github.com/cuecode/cuecode/internal/validate"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func ConfigureCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Load an OpenAPI document and store its operations for retrieval",
		RunE:  runConfigure,
	}

	flags := cmd.Flags()
	flags.StringP("spec", "s", "", "OpenAPI document path")
	flags.String("configuration-id", "", "Configuration UUID the records are stored under")
	flags.String("base-url", "", "URL relative server URLs are resolved against")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.String("templates", "", "Custom templates directory")
	flags.Bool("skip-openapi-schema", false, "Skip libopenapi baseline validation")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")
	flags.Bool("dry-run", false, "Use an in-memory store and print the synthesized tool calls")

	return cmd
}

type configureOutput struct {
	SpecificationID string            `json:"specification_id"`
	ServerID        string            `json:"server_id"`
	Paths           int               `json:"paths"`
	Operations      int               `json:"operations"`
	Prompts         int               `json:"prompts"`
	Nouns           int               `json:"nouns"`
	Warnings        []string          `json:"warnings,omitempty"`
	ToolCalls       []json.RawMessage `json:"tool_calls,omitempty"`
}

func runConfigure(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	if err := cfg.RequireSpec(); err != nil {
		return err
	}
	configurationID, err := cfg.ConfigurationUUID()
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(cfg.Spec)
	if err != nil {
		return fmt.Errorf("reading spec file: %w", err)
	}

	ctx := cmd.Context()
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	var st store.Store
	var emb embedding.Embedder
	if dryRun {
		st = store.NewMemoryStore(a.logger)
		if cfg.RequireEmbedding() == nil {
			if emb, err = a.embedder(ctx); err != nil {
				return err
			}
		} else {
			a.logger.Info("No embedding endpoint configured, using placeholder vectors")
			mock := embedding.NewMock()
			mock.Dimensions = cfg.Embedding.Dimensions
			emb = mock
		}
	} else {
		if st, err = a.postgresStore(ctx); err != nil {
			return err
		}
		if emb, err = a.embedder(ctx); err != nil {
			return err
		}
	}

	engine, err := templates.New(cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}
	deriver, err := derive.New(derive.WithTemplates(engine), derive.WithLogger(a.logger))
	if err != nil {
		return err
	}

	p, err := pipeline.New(st, emb,
		pipeline.WithValidator(validate.New(
			validate.WithOpenAPISchema(cfg.Validation.OpenAPISchema),
			validate.WithLogger(a.logger),
		)),
		pipeline.WithDeriver(deriver),
		pipeline.WithDimensions(cfg.Embedding.Dimensions),
		pipeline.WithMetrics(a.metrics),
		pipeline.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	result, err := p.RunConfigurationPipeline(ctx, raw, configurationID, cfg.BaseURL)
	if err != nil {
		return err
	}

	for _, w := range result.Warnings {
		cmd.PrintErrf("Warning: %s\n", w)
	}
	a.logger.Info("Configuration stored",
		zap.String("configuration_id", configurationID.String()),
		zap.Int("operations", len(result.Operations)),
		zap.Bool("dry_run", dryRun))

	out := configureOutput{
		SpecificationID: result.SpecificationID.String(),
		ServerID:        result.ServerID.String(),
		Paths:           len(result.Paths),
		Operations:      len(result.Operations),
		Prompts:         len(result.Prompts),
		Nouns:           len(result.Nouns),
		Warnings:        result.Warnings,
	}
	if dryRun {
		for _, op := range result.Operations {
			out.ToolCalls = append(out.ToolCalls, op.ToolCall)
		}
	}
	return printJSON(cmd, out)
}
