package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	gmsync "github.com/gitmarks/gitmarks/internal/sync"
	"github.com/gitmarks/gitmarks/internal/ui"
)

var pushCmd = &cobra.Command{
	Use:     "push",
	GroupID: "sync",
	Short:   "Make the repository match local bookmarks",
	Long: `Write the local bookmark tree to the repository as one commit.

Files in the repository that no longer correspond to a local bookmark or
folder are deleted. Remote changes that were never pulled are overwritten.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, gmsync.OpPush)
	},
}

var pullCmd = &cobra.Command{
	Use:     "pull",
	GroupID: "sync",
	Short:   "Make local bookmarks match the repository",
	Long: `Replace the synchronized local folders with the repository's contents.

Local changes that were never pushed are lost.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, gmsync.OpPull)
	},
}

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Merge local and remote changes",
	Long: `Merge changes made locally and in the repository since the last sync.

Changes on one side are copied to the other. Folders edited on both sides
have their entries merged. Bookmarks changed differently on both sides are
reported as conflicts and nothing is written; run 'gm resolve' to keep one
side.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runOperation(cmd, gmsync.OpSync)
	},
}

func runOperation(cmd *cobra.Command, op gmsync.Operation) error {
	ctx := cmd.Context()
	a, err := openApp(ctx, cfg, logs, appOptions{})
	if err != nil {
		return fail(cmd, err)
	}
	defer a.Close()

	res := execute(ctx, a.orch, op)
	fmt.Fprint(cmd.OutOrStdout(), ui.FormatResult(op, res))
	if !res.Success() {
		return fmt.Errorf("%s: %s", op, res.Status)
	}
	return nil
}

func execute(ctx context.Context, o *gmsync.Orchestrator, op gmsync.Operation) *gmsync.Result {
	switch op {
	case gmsync.OpPush:
		return o.Push(ctx)
	case gmsync.OpPull:
		return o.Pull(ctx)
	default:
		return o.Sync(ctx)
	}
}

func init() {
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(syncCmd)
}
