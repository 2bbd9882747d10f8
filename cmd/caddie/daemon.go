package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/dashboard"
	"github.com/fairwaylabs/caddie/internal/syncd"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var daemonCmd = &cobra.Command{
	Use:     "daemon",
	GroupID: "sync",
	Short:   "Background sync daemon",
}

var daemonRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the sync daemon in the foreground",
	Long: `Run the sync daemon. While it runs it:

1. Drains the sync queue on an interval
2. Returns failed queue items to pending so they retry
3. Re-imports course files when the catalog directory changes
4. Applies live score updates from other devices via the relay
5. Publishes queue counts and push outcomes to the dashboard

One daemon runs per store; starting a second against the same database
fails. Intervals come from the config file's daemon section. Stop with
Ctrl+C.

Examples:
  caddie daemon run
  caddie daemon run --dashboard`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		if cfg.RemoteURL == "" {
			fmt.Printf("%s No remote configured; queued changes stay local\n", ui.RenderWarn("⚠"))
			fmt.Printf("   Set remote.url in %s and restart to sync\n", cfg.Path)
		}
		syncer, closeRemote := syncerFor(ctx, cfg, database)
		defer closeRemote()

		daemonConfig := &syncd.Config{
			DrainInterval:      cfg.DrainInterval,
			RetrySweepInterval: cfg.RetrySweepInterval,
			StatusInterval:     cfg.StatusInterval,
			CatalogDebounce:    cfg.CatalogDebounce,
			CatalogDir:         cfg.CatalogDir,
			RelayURL:           cfg.RelayURL,
		}
		if cfg.DaemonLogFile != "" {
			daemonConfig.Logger = syncd.NewRotatingLogger(cfg.DaemonLogFile)
		}

		withDashboard, _ := cmd.Flags().GetBool("dashboard")
		if withDashboard {
			server := dashboard.NewServer(&dashboard.Config{Port: cfg.DashboardPort})
			if err := server.Start(); err != nil {
				fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
				os.Exit(1)
			}
			defer server.Stop()
			daemonConfig.Events = dashboard.NewHandler(server, daemonConfig.Logger)
			_, port, _ := net.SplitHostPort(server.GetAddr())
			fmt.Printf("%s Dashboard: http://localhost:%s\n", ui.RenderAccent("📊"), port)
		}

		d, err := syncd.NewWithConfig(database, syncer, cfg.DataDir(), daemonConfig)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating daemon: %v\n", err)
			os.Exit(1)
		}

		fmt.Printf("%s Sync daemon running on %s\n", ui.RenderAccent("🚀"), cfg.StorePath)
		fmt.Println("   Press Ctrl+C to stop...")

		if err := d.Start(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s Daemon stopped\n", ui.RenderPass("✓"))
	},
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the daemon is running, and its recent activity",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig(cmd)

		// The daemon holds an flock on its lock file; failing to take it
		// means a daemon is alive.
		lock := syncd.NewFileLock(syncd.LockPath(cfg.DataDir()))
		err := lock.Acquire()
		switch {
		case err == nil:
			lock.Release()
			fmt.Printf("%s Daemon not running\n", ui.RenderMuted("○"))
		case errors.Is(err, syncd.ErrLocked):
			fmt.Printf("%s Daemon running\n", ui.RenderPass("●"))
		default:
			fmt.Fprintf(os.Stderr, "Error checking lock: %v\n", err)
			os.Exit(1)
		}

		n, _ := cmd.Flags().GetInt("tail")
		entries, err := syncd.Tail(syncd.JournalPath(cfg.DataDir()), n)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error reading journal: %v\n", err)
			os.Exit(1)
		}
		if len(entries) == 0 {
			return
		}

		fmt.Println()
		for _, e := range entries {
			line := fmt.Sprintf("   %s  %-5s", e.Time.Local().Format("Jan _2 15:04:05"), e.Op)
			switch e.Op {
			case syncd.OpDrain:
				line += fmt.Sprintf("  synced=%d failed=%d", e.Synced, e.Failed)
				if e.Trigger != "" {
					line += fmt.Sprintf(" (%s)", e.Trigger)
				}
			case syncd.OpSweep:
				line += fmt.Sprintf("  swept=%d", e.Swept)
			}
			if e.Error != "" {
				line += "  " + ui.RenderWarn(e.Error)
			}
			fmt.Println(line)
		}
	},
}

func init() {
	daemonRunCmd.Flags().Bool("dashboard", false, "serve the live dashboard alongside the daemon")
	daemonStatusCmd.Flags().IntP("tail", "n", 10, "journal entries to show")

	daemonCmd.AddCommand(daemonRunCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	rootCmd.AddCommand(daemonCmd)
}
