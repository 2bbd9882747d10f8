package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/fairwaylabs/caddie/internal/dashboard"
	"github.com/fairwaylabs/caddie/internal/live"
	"github.com/fairwaylabs/caddie/internal/ui"
)

var dashboardCmd = &cobra.Command{
	Use:     "dashboard",
	GroupID: "advanced",
	Short:   "Serve the live scoring dashboard",
	Long: `Serve a local web dashboard that shows match scores as they happen.

The dashboard pushes updates to connected browsers over a websocket.
With a relay configured, score updates from other devices are applied
and broadcast too, so a clubhouse screen stays current without anyone
touching it.

Run 'caddie daemon run --dashboard' instead to feed the dashboard sync
queue activity alongside the scores.

Examples:
  caddie dashboard
  caddie dashboard --port 9000`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		cfg := loadConfig(cmd)
		database := openStore(cfg)
		defer database.Close()

		port := cfg.DashboardPort
		if cmd.Flags().Changed("port") {
			port, _ = cmd.Flags().GetInt("port")
		}

		server := dashboard.NewServer(&dashboard.Config{Port: port})
		if err := server.Start(); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting dashboard: %v\n", err)
			os.Exit(1)
		}

		var consumer *live.Consumer
		if cfg.RelayURL != "" {
			handler := dashboard.NewHandler(server, nil)
			c, err := live.New(database, cfg.RelayURL, handler, nil)
			if err != nil {
				server.Stop()
				fmt.Fprintf(os.Stderr, "Error connecting to relay: %v\n", err)
				os.Exit(1)
			}
			consumer = c
			consumer.Start()
		}

		_, p, _ := net.SplitHostPort(server.GetAddr())
		fmt.Printf("%s Dashboard running at:\n", ui.RenderPass("✓"))
		fmt.Printf("   Web UI:    http://localhost:%s\n", p)
		fmt.Printf("   WebSocket: ws://localhost:%s/ws\n", p)
		fmt.Printf("   Health:    http://localhost:%s/health\n", p)
		if consumer != nil {
			fmt.Printf("   Relay:     %s\n", cfg.RelayURL)
		}
		fmt.Println("\nPress Ctrl+C to stop...")

		<-ctx.Done()
		fmt.Println("\nShutting down dashboard...")
		if consumer != nil {
			consumer.Stop()
		}
		server.Stop()
	},
}

func init() {
	dashboardCmd.Flags().IntP("port", "p", 8080, "port for the dashboard server")
	rootCmd.AddCommand(dashboardCmd)
}
