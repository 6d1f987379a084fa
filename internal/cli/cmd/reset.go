package cmd

import (
	"context"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Delete the stored checkpoint so the next run starts fresh",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		r, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		if err := r.Reset(ctx); err != nil {
			return err
		}
		color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "Checkpoint cleared")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resetCmd)
}
