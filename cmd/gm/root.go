package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/gitmarks/gitmarks/internal/config"
	"github.com/gitmarks/gitmarks/internal/logging"
	"github.com/gitmarks/gitmarks/internal/ui"
)

var (
	configPath string
	profile    string
	noColor    bool
	verbose    bool

	// Set by PersistentPreRunE for every command.
	cfg  *config.Config
	logs *logging.Logging
)

var rootCmd = &cobra.Command{
	Use:   "gm",
	Short: "Sync bookmarks with a Git repository",
	Long: `gm keeps a bookmark collection in sync with a Git repository that stores
one file per bookmark and one ordering file per folder.

Changes made on several machines are merged three ways against the state of
the last sync. Edits that cannot be merged are reported, never overwritten.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		ui.Init(noColor)

		loaded, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if profile != "" {
			loaded.Profile = profile
		}
		if verbose {
			loaded.Logging.Level = "debug"
		}
		cfg = loaded

		logs, err = logging.Setup(logging.Options{
			Level:      cfg.Logging.Level,
			Output:     cfg.Logging.Output,
			MaxSizeMB:  cfg.Logging.MaxSizeMB,
			MaxBackups: cfg.Logging.MaxBackups,
			MaxAgeDays: cfg.Logging.MaxAgeDays,
			Compress:   cfg.Logging.Compress,
		})
		if err != nil {
			return fmt.Errorf("failed to set up logging: %w", err)
		}
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if logs != nil {
			return logs.Close()
		}
		return nil
	},
}

func init() {
	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Sync Commands:"},
		&cobra.Group{ID: "advanced", Title: "Advanced Commands:"},
	)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default "+config.GetDefaultConfigPath()+")")
	flags.StringVar(&profile, "profile", "", "profile name, overrides the config file")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug output")
}

// fail prints err the way every command reports errors and returns it so
// cobra exits non-zero.
func fail(cmd *cobra.Command, err error) error {
	fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", ui.RenderFail("Error:"), err)
	return err
}
