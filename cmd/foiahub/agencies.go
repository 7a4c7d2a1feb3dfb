package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"foiahub/internal/directory"
)

func loadAgenciesCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "load-agencies <dir>",
		Short: "Create or update agencies and offices from a directory of YAML contact files",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := bootstrap(cmd.Context(), *envFile)
			if err != nil {
				return err
			}
			defer closeApp(a, &err)

			summary, err := directory.NewLoader(a.store, a.logger.Named("directory")).LoadDir(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "agencies: %d created, %d updated; offices: %d created, %d updated\n",
				summary.AgenciesCreated, summary.AgenciesUpdated, summary.OfficesCreated, summary.OfficesUpdated)
			return nil
		},
	}
}
