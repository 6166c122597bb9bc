package cli

import (
	"fmt"

	"github.com/cuecode/cuecode/internal/payload"
	"github.com/cuecode/cuecode/internal/templates"
	"github.com/spf13/cobra"
)

func GenerateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate HTTP request payloads from free text",
		RunE:  runGenerate,
	}

	flags := cmd.Flags()
	flags.String("configuration-id", "", "Configuration UUID to generate against")
	flags.StringP("text", "t", "", "Request text")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.Int("top-k", 0, "Prompts fetched per sentence")
	flags.String("templates", "", "Custom templates directory")
	flags.Bool("no-request-validation", false, "Do not check generated requests against the document")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func runGenerate(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	cfg := a.cfg
	configurationID, err := cfg.ConfigurationUUID()
	if err != nil {
		return err
	}
	if err := cfg.RequireChat(); err != nil {
		return err
	}
	text, _ := cmd.Flags().GetString("text")
	skipValidation, _ := cmd.Flags().GetBool("no-request-validation")

	r, err := newRetriever(cmd, a)
	if err != nil {
		return err
	}
	st, err := a.postgresStore(cmd.Context())
	if err != nil {
		return err
	}
	engine, err := templates.New(cfg.Templates.Dir)
	if err != nil {
		return fmt.Errorf("loading templates: %w", err)
	}

	g, err := payload.NewGenerator(payload.Config{
		Endpoint: cfg.Chat.Endpoint,
		Model:    cfg.Chat.Model,
		APIKey:   cfg.Chat.APIKey,
	}, r, st,
		payload.WithTemplates(engine),
		payload.WithRequestValidation(!skipValidation),
		payload.WithLogger(a.logger),
	)
	if err != nil {
		return err
	}

	payloads, err := g.Generate(cmd.Context(), configurationID, text)
	if err != nil {
		return err
	}
	return printJSON(cmd, payloads)
}
