package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inkwell-app/inkwell/internal/daemon"
	"github.com/inkwell-app/inkwell/internal/dashboard"
	"github.com/inkwell-app/inkwell/internal/syncengine"
	"github.com/inkwell-app/inkwell/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run one sync cycle for the project",
	Long: `Scan the project for unsynced content, enqueue it, and drain the
sync queue once. Exits when the cycle completes.

Example usage:
  inkwell sync
  inkwell sync --project ~/writing/novel`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := context.Background()

		e, err := openEnv(ctx, cmd, nil, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		d, err := daemon.New(e.engine, e.layout, nil)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := d.EnqueueBacklog(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		if err := e.engine.RunDrainCycle(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Print(ui.RenderSnapshot(e.engine.Snapshot()))
		if e.engine.Status() == syncengine.StatusFailed {
			os.Exit(1)
		}
	},
}

var syncDaemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Run the background sync daemon",
	Long: `Watch the project for file changes and keep it synced with the
cloud. Changed chapters and entities are enqueued (debounced), the queue
drains on a schedule, and a local dashboard serves real-time sync state.

Example usage:
  inkwell sync daemon
  inkwell sync daemon --no-dashboard

Connect a WebSocket client to receive sync updates:
  ws://localhost:8470/ws`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := loadConfig(cmd)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		logger := daemonLogger(cfg, "[inkwell] ")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer cancel()

		// The server is created after the engine, so the status hook
		// late-binds through this variable.
		var server *dashboard.Server
		onStatus := func(prev, next syncengine.Status) {
			if server != nil {
				server.BroadcastStatus(prev, next)
			}
		}

		e, err := openEnv(ctx, cmd, logger, onStatus)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		defer e.Close()

		noDashboard, _ := cmd.Flags().GetBool("no-dashboard")
		if !noDashboard {
			server = dashboard.NewServer(e.engine.Snapshot, &dashboard.Config{
				Port:   cfg.DashboardPort,
				Logger: log.New(logger.Writer(), "[dashboard] ", log.LstdFlags),
			})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error: failed to start dashboard: %v\n", err)
				os.Exit(1)
			}
			defer func() {
				if err := server.Stop(); err != nil {
					logger.Printf("Error during dashboard shutdown: %v", err)
				}
			}()
			fmt.Printf("Dashboard: http://localhost:%d\n", cfg.DashboardPort)
		}

		dcfg := daemon.DefaultConfig()
		dcfg.DrainInterval = cfg.DrainInterval
		dcfg.DebounceInterval = cfg.DebounceInterval
		dcfg.Logger = log.New(logger.Writer(), "[daemon] ", log.LstdFlags)

		d, err := daemon.New(e.engine, e.layout, dcfg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("Syncing %q (press Ctrl+C to stop)\n", e.proj.Title)

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	},
}

func init() {
	syncDaemonCmd.Flags().Bool("no-dashboard", false, "Disable the local dashboard server")
	syncCmd.AddCommand(syncDaemonCmd)
	rootCmd.AddCommand(syncCmd)
}
