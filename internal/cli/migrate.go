package cli

import (
	"github.com/cuecode/cuecode/internal/store"
	"github.com/spf13/cobra"
)

func MigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd)
			if err != nil {
				return err
			}
			defer a.close()

			pool, err := a.openPool(cmd.Context())
			if err != nil {
				return err
			}
			if err := store.RunMigrations(pool, a.logger); err != nil {
				return err
			}
			cmd.PrintErrln("Database is up to date")
			return nil
		},
	}

	cmd.Flags().String("database-url", "", "PostgreSQL connection string")
	return cmd
}
