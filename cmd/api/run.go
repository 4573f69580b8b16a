package main

import (
	"context"
	"encoding/json"

	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one job once and print its result",
	Long:  "Executes a single pass of a scheduler job or the board backfill outside the server, e.g. from cron.",
}

var runInitialCmd = &cobra.Command{
	Use:   "initial",
	Short: "Send due welcome messages",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
			return a.scheduler.RunInitialMessages(ctx)
		})
	},
}

var runFollowupsCmd = &cobra.Command{
	Use:   "followups",
	Short: "Send or abort due follow-ups",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
			return a.scheduler.RunFollowups(ctx)
		})
	},
}

var runSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Create leads for board items still labelled new",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOnce(cmd, func(ctx context.Context, a *app) (any, error) {
			return a.sync.SyncNewLeads(ctx)
		})
	},
}

func runOnce(cmd *cobra.Command, job func(context.Context, *app) (any, error)) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, cfg, logger, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close()

	result, err := job(ctx, a)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func init() {
	runCmd.AddCommand(runInitialCmd, runFollowupsCmd, runSyncCmd)
	rootCmd.AddCommand(runCmd)
}
