package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the event catalog to an Excel workbook",
	Long:  "Write every catalog event plus one ranked sheet per stage to an .xlsx file.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		r, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		n, err := r.Export(ctx, exportOutput)
		if err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintf(cmd.OutOrStdout(), "Exported %d events to %s\n", n, exportOutput)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "o", "catalog.xlsx", "output file")
	rootCmd.AddCommand(exportCmd)
}
