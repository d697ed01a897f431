package cli

import (
	"github.com/spf13/cobra"

	"github.com/keboola/dbsnap/pkg/lib/operation/dbsnap/list"
)

func ListCommand(root *RootCommand) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List databases and their stores.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := list.Run(cmd.Context(), root.Dependencies())
			return err
		},
	}
}
