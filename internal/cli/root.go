package cli

import (
	"github.com/cuecode/cuecode/internal/config"
	"github.com/spf13/cobra"
)

func RootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cuecode",
		Short:         "CueCode - natural language to OpenAPI requests",
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,

		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	config.BindCommonFlags(root)
	root.AddCommand(
		ConfigureCommand(),
		RetrieveCommand(),
		GenerateCommand(),
		MigrateCommand(),
		ValidateCommand(),
	)

	return root
}
