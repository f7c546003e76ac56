package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	gmsync "github.com/gitmarks/gitmarks/internal/sync"
	"github.com/gitmarks/gitmarks/internal/ui"
)

const (
	keepLocal  = "local"
	keepRemote = "remote"
)

var resolveKeep string

var resolveCmd = &cobra.Command{
	Use:     "resolve",
	GroupID: "sync",
	Short:   "Settle a conflict by keeping one side",
	Long: `Settle a blocked sync by choosing which side wins.

Keeping local bookmarks pushes them over the repository. Keeping the
repository pulls it over local bookmarks. Without --keep the choice is
asked interactively.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		a, err := openApp(ctx, cfg, logs, appOptions{})
		if err != nil {
			return fail(cmd, err)
		}
		defer a.Close()

		out := cmd.OutOrStdout()
		res := a.orch.Sync(ctx)
		fmt.Fprint(out, ui.FormatResult(gmsync.OpSync, res))
		switch res.Status {
		case gmsync.StatusConflict, gmsync.StatusFirstSyncConflict:
		default:
			if !res.Success() {
				return fmt.Errorf("sync: %s", res.Status)
			}
			fmt.Fprintln(out, "Nothing to resolve.")
			return nil
		}

		keep := resolveKeep
		if keep == "" {
			if !ui.IsTerminal(os.Stdin) {
				return fail(cmd, errors.New("no terminal to ask on: pass --keep local or --keep remote"))
			}
			keep, err = askKeep()
			if errors.Is(err, huh.ErrUserAborted) || (err == nil && keep == "") {
				fmt.Fprintln(out, "Cancelled.")
				return nil
			}
			if err != nil {
				return fail(cmd, err)
			}
		}

		op := gmsync.OpPush
		if keep == keepRemote {
			op = gmsync.OpPull
		}
		res = execute(ctx, a.orch, op)
		fmt.Fprint(out, ui.FormatResult(op, res))
		if !res.Success() {
			return fmt.Errorf("%s: %s", op, res.Status)
		}
		return nil
	},
}

func askKeep() (string, error) {
	var keep string
	confirmed := true
	form := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Which bookmarks should be kept?").
				Options(
					huh.NewOption("Local bookmarks (push over the repository)", keepLocal),
					huh.NewOption("Repository bookmarks (pull over local)", keepRemote),
					huh.NewOption("Cancel", ""),
				).
				Value(&keep),
		),
		huh.NewGroup(
			huh.NewConfirm().
				Title("The other side's conflicting changes will be lost. Continue?").
				Value(&confirmed),
		).WithHideFunc(func() bool { return keep == "" }),
	)
	if err := form.Run(); err != nil {
		return "", err
	}
	if !confirmed {
		return "", nil
	}
	return keep, nil
}

func init() {
	resolveCmd.Flags().StringVar(&resolveKeep, "keep", "", "side to keep: local or remote")
	resolveCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		switch resolveKeep {
		case "", keepLocal, keepRemote:
			return nil
		default:
			return fmt.Errorf("--keep must be %q or %q, got %q", keepLocal, keepRemote, resolveKeep)
		}
	}
	rootCmd.AddCommand(resolveCmd)
}
