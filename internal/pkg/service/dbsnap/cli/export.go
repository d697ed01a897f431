package cli

import (
	"github.com/spf13/cobra"

	"github.com/keboola/dbsnap/internal/pkg/service/common/configmap"
	"github.com/keboola/dbsnap/pkg/lib/operation/dbsnap/export"
)

type ExportFlags struct {
	Output string   `configKey:"output" configShorthand:"o" configUsage:"Output file, \"<database>.idb\" by default."`
	Stores []string `configKey:"stores" configShorthand:"s" configUsage:"Export only the listed stores, all by default."`
}

func ExportCommand(root *RootCommand) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export <database>",
		Short: "Export a database to a file.",
		Long:  "Export all records of the database, or of the selected stores, to a newline delimited JSON file.\nThe first line contains the database metadata.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := ExportFlags{}
			if err := configmap.Bind(configmap.BindSpec{Flags: cmd.Flags()}, &f); err != nil {
				return err
			}

			d := root.Dependencies()
			bar := newProgressBar(cmd.ErrOrStderr(), "exporting")
			defer bar.Finish()

			_, err := export.Run(cmd.Context(), export.Options{
				Database:        args[0],
				Output:          f.Output,
				Stores:          f.Stores,
				BatchSize:       d.Config().Export.BatchSize,
				ChannelCapacity: d.Config().Export.ChannelCapacity,
				OnProgress:      bar.OnProgress,
			}, d)
			return err
		},
	}

	configmap.MustGenerateFlags(cmd.Flags(), ExportFlags{})

	return cmd
}
