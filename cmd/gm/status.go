package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitmarks/gitmarks/internal/ui"
)

var statusRemote bool

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "sync",
	Short:   "Show sync state and pending changes",
	Long: `Display the state of the last sync and what changed since.

Shows:
  - Last sync time and commit
  - Number of files in the last synced state
  - Local changes not yet synced
  - Remote changes not yet synced (with --remote)`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, logs, appOptions{})
		if err != nil {
			return fail(cmd, err)
		}
		defer a.Close()

		report, err := a.orch.Inspect(ctx, statusRemote)
		if err != nil {
			return fail(cmd, err)
		}
		fmt.Fprint(cmd.OutOrStdout(), ui.FormatReport(report))
		return nil
	},
}

func init() {
	statusCmd.Flags().BoolVarP(&statusRemote, "remote", "r", false, "also fetch the repository to count remote changes")
	rootCmd.AddCommand(statusCmd)
}
