package cli

import (
	"github.com/cuecode/cuecode/internal/retrieve"
	"github.com/spf13/cobra"
)

func RetrieveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retrieve",
		Short: "Find the operations matching free text",
		RunE:  runRetrieve,
	}

	flags := cmd.Flags()
	flags.String("configuration-id", "", "Configuration UUID to search")
	flags.StringP("text", "t", "", "Request text")
	flags.String("database-url", "", "PostgreSQL connection string")
	flags.Int("top-k", 0, "Prompts fetched per sentence")
	flags.String("metrics-textfile", "", "Write Prometheus metrics to this file on exit")
	_ = cmd.MarkFlagRequired("text")

	return cmd
}

func newRetriever(cmd *cobra.Command, a *app) (*retrieve.Retriever, error) {
	ctx := cmd.Context()
	st, err := a.postgresStore(ctx)
	if err != nil {
		return nil, err
	}
	emb, err := a.embedder(ctx)
	if err != nil {
		return nil, err
	}
	return retrieve.New(st, emb,
		retrieve.WithTopK(a.cfg.Retrieval.TopK),
		retrieve.WithMetrics(a.metrics),
		retrieve.WithLogger(a.logger),
	), nil
}

func runRetrieve(cmd *cobra.Command, args []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.close()

	configurationID, err := a.cfg.ConfigurationUUID()
	if err != nil {
		return err
	}
	text, _ := cmd.Flags().GetString("text")

	r, err := newRetriever(cmd, a)
	if err != nil {
		return err
	}

	result, err := r.Retrieve(cmd.Context(), configurationID, text)
	if err != nil {
		return err
	}

	return printJSON(cmd, map[string]any{
		"tool_calls": result.ToolCalls,
		"lookup":     result.Lookup,
	})
}
