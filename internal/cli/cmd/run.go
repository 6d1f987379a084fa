package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/withObsrvr/tour-discovery/pkg/discovery"
)

var (
	payload      string
	forceRestart bool
	stageID      string
	budget       time.Duration

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run one bounded discovery invocation",
		Long: `Resume the checkpointed discovery pipeline, work until the execution budget
is nearly spent and print the result as JSON.`,
		Args: cobra.NoArgs,
		Example: `  tourdiscovery run
  tourdiscovery run --budget 14m
  tourdiscovery run --stage 3 --force-restart
  tourdiscovery run --payload '{"force_restart":true,"stage_override":"3"}'`,
		RunE: runDiscovery,
	}
)

func init() {
	runCmd.Flags().StringVar(&payload, "payload", "", `trigger payload, e.g. {"force_restart":true,"stage_override":"3"}`)
	runCmd.Flags().BoolVar(&forceRestart, "force-restart", false, "clear the checkpoint before running")
	runCmd.Flags().StringVar(&stageID, "stage", "", "run for this stage instead of the active stages")
	runCmd.Flags().DurationVar(&budget, "budget", 0, "execution budget (0 means unlimited)")
	rootCmd.AddCommand(runCmd)
}

// parseRequest merges the JSON payload with flags; flags win when set.
func parseRequest(payload string, force bool, stage string, budget time.Duration) (discovery.Request, error) {
	var req discovery.Request
	if payload != "" {
		if err := json.Unmarshal([]byte(payload), &req); err != nil {
			return req, fmt.Errorf("invalid payload: %w", err)
		}
	}
	if force {
		req.ForceRestart = true
	}
	if stage != "" {
		req.StageOverride = stage
	}
	if budget > 0 {
		req.Budget = discovery.NewDeadlineBudget(budget)
	}
	return req, nil
}

func runDiscovery(cmd *cobra.Command, args []string) error {
	req, err := parseRequest(payload, forceRestart, stageID, budget)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	r, err := openRunner(ctx)
	if err != nil {
		return err
	}
	defer r.Close()

	fmt.Fprintln(os.Stderr, color.GreenString("Starting discovery for %s", r.Campaign().Name))
	res, err := r.Run(ctx, req)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))

	switch res.Status {
	case discovery.StatusComplete:
		fmt.Fprintln(os.Stderr, color.GreenString("Discovery complete: %d events in catalog (%d new)", res.CatalogSize, res.EventsMerged))
	case discovery.StatusPartial:
		fmt.Fprintln(os.Stderr, color.YellowString("Progress saved in phase %s, run again to continue", res.Phase))
	case discovery.StatusNoWork:
		fmt.Fprintln(os.Stderr, color.CyanString("Nothing to do: %s", res.Message))
	case discovery.StatusError:
		return fmt.Errorf("discovery failed: %s", res.Error)
	}
	return nil
}
