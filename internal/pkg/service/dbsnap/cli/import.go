package cli

import (
	"github.com/spf13/cobra"

	"github.com/keboola/dbsnap/internal/pkg/service/common/configmap"
	dbimport "github.com/keboola/dbsnap/pkg/lib/operation/dbsnap/import"
)

type ImportFlags struct {
	CreateStores bool `configKey:"createStores" configUsage:"Create the database and its stores from the file metadata, if the database does not exist."`
}

func ImportCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Import a file to a database.",
		Long:  "Import records from a file created by the \"export\" command.\nThe target database is taken from the file metadata, existing records with the same key are overwritten.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ImportFlags{}
			if err := configmap.Bind(configmap.BindSpec{Flags: cmd.Flags()}, &f); err != nil {
				return err
			}

			d := root.Dependencies()
			bar := newProgressBar(cmd.ErrOrStderr(), "importing")
			defer bar.Finish()

			return dbimport.Run(cmd.Context(), dbimport.Options{
				Input:          args[0],
				ReadBufferSize: d.Config().Import.ReadBufferSize,
				CreateStores:   f.CreateStores,
				OnProgress:     bar.OnProgress,
			}, d)
		},
	}

	configmap.MustGenerateFlags(cmd.Flags(), ImportFlags{})

	return cmd
}
