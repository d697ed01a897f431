package cli

import (
	"github.com/spf13/cobra"

	"github.com/keboola/dbsnap/pkg/lib/operation/dbsnap/inspect"
)

func InspectCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file>",
		Short: "Check a file without importing it.",
		Long:  "Read the whole file, decode all records and compare record counts with the file metadata.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			d := root.Dependencies()
			_, err := inspect.Run(cmd.Context(), inspect.Options{
				Input:          args[0],
				ReadBufferSize: d.Config().Import.ReadBufferSize,
			}, d)
			return err
		},
	}
}
