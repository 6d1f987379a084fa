package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the stored checkpoint",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		r, err := openRunner(ctx)
		if err != nil {
			return err
		}
		defer r.Close()

		st, err := r.Status(ctx)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if statusJSON {
			data, err := json.MarshalIndent(st, "", "  ")
			if err != nil {
				return err
			}
			fmt.Fprintln(out, string(data))
			return nil
		}

		if !st.Exists {
			color.New(color.FgYellow).Fprintf(out, "No checkpoint stored at %s\n", st.Key)
			return nil
		}
		title := color.New(color.FgCyan, color.Bold)
		label := color.New(color.FgGreen)

		title.Fprintf(out, "Checkpoint %s\n\n", st.Key)
		row := func(name, value string) {
			label.Fprintf(out, "%-18s", name+":")
			fmt.Fprintln(out, value)
		}
		row("Run ID", st.RunID)
		row("Campaign", st.CampaignID)
		row("Stages", strings.Join(st.StageIDs, ", "))
		row("Phase", string(st.Phase))
		row("Run count", fmt.Sprint(st.RunCount))
		row("Riders processed", fmt.Sprint(st.RidersProcessed))
		row("Events", fmt.Sprintf("%d discovered, %d fetched, %d pending", st.EventsDiscovered, st.EventsFetched, st.EventsPending))
		row("Started", formatTime(st.StartedAt))
		row("Last updated", formatTime(st.LastUpdated))
		row("Completed", formatTime(st.CompletedAt))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "print the status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}
