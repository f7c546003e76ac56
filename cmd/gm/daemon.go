package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/gitmarks/gitmarks/internal/daemon"
	"github.com/gitmarks/gitmarks/internal/dashboard"
	"github.com/gitmarks/gitmarks/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "advanced",
	Short:   "Sync automatically when bookmarks change (foreground)",
	Long: `Run in the foreground and sync whenever the local bookmarks change.

The daemon will:
  1. Sync once at startup (sync.sync_on_start)
  2. Watch the bookmark document for changes
  3. Sync after sync.debounce of quiet, or sync.max_wait after the first
     unsynced change at the latest
  4. Sync every sync.poll_interval to pick up remote changes, if set
  5. Ignore changes caused by its own writes

With dashboard.enabled, sync results are streamed over WebSocket:
  ws://<dashboard.host>:<dashboard.port>/ws
and Prometheus metrics are served at /metrics.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		out := cmd.OutOrStdout()
		opts := appOptions{watch: true}

		var server *dashboard.Server
		if cfg.Dashboard.Enabled {
			server = dashboard.NewServer(&dashboard.Config{
				Host:   cfg.Dashboard.Host,
				Port:   cfg.Dashboard.Port,
				Logger: logs.New("dashboard"),
			})
			handler := dashboard.NewHandler(server, logs.New("dashboard"))
			opts.onResult = handler.OnResult
			if err := server.Start(); err != nil {
				return fail(cmd, err)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					fmt.Fprintf(os.Stderr, "Error during dashboard shutdown: %v\n", err)
				}
			}()
		}

		a, err := openApp(ctx, cfg, logs, opts)
		if err != nil {
			return fail(cmd, err)
		}
		defer a.Close()

		// Without watching, the host only reports its own in-process edits,
		// and nothing edits in-process here.
		events := a.host.Events()
		if !cfg.Host.Watch {
			events = nil
		}

		d, err := daemon.New(a.orch, events, &daemon.Config{
			Debounce:     cfg.Sync.Debounce,
			MaxWait:      cfg.Sync.MaxWait,
			PollInterval: cfg.Sync.PollInterval,
			SyncOnStart:  cfg.Sync.SyncOnStart,
			Logger:       logs.New("daemon"),
		})
		if err != nil {
			return fail(cmd, err)
		}

		fmt.Fprintf(out, "%s Starting sync daemon...\n", ui.RenderAccent("🚀"))
		fmt.Fprintf(out, "   Bookmarks: %s\n", cfg.Host.Path)
		fmt.Fprintf(out, "   Remote: %s %s:%s\n", cfg.Remote.Backend, cfg.Remote.Branch, cfg.Remote.BasePath)
		if server != nil {
			fmt.Fprintf(out, "   Dashboard: http://%s\n", server.GetAddr())
		}
		fmt.Fprintf(out, "\nPress Ctrl+C to stop\n\n")

		if err := d.Start(ctx); err != nil && err != context.Canceled {
			return fail(cmd, fmt.Errorf("daemon stopped with error: %w", err))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(daemonCmd)
}
